package notice

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

// Service owns the ComplianceNotice lifecycle: drafting, review, sending,
// delivery confirmation, and deletion.
type Service struct {
	store      store.Store
	clock      clock.Clock
	drafter    Drafter // nil when the drafting collaborator is disabled
	dispatcher Dispatcher
	orgName    string
}

// NewService creates a notice lifecycle manager. drafter may be nil; manual
// content entry then becomes the only drafting path.
func NewService(st store.Store, clk clock.Clock, drafter Drafter, dispatcher Dispatcher, orgName string) *Service {
	return &Service{
		store:      st,
		clock:      clk,
		drafter:    drafter,
		dispatcher: dispatcher,
		orgName:    orgName,
	}
}

// DraftRequest describes a notice to be drafted against a deadline.
type DraftRequest struct {
	DeadlineID     string `json:"deadline_id"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	// Content, when set, is used verbatim and the drafting collaborator is
	// not consulted.
	Content     string `json:"content,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	Author      string `json:"author,omitempty"`
}

// Draft creates a notice for a deadline, resolves the required delivery
// methods from the clause, and advances the deadline to NOTICE_DRAFTED.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (*model.ComplianceNotice, error) {
	d, err := s.store.GetDeadline(ctx, req.DeadlineID)
	if err != nil {
		return nil, err
	}
	if d.NoticeID != nil {
		return nil, eris.Wrapf(model.ErrAlreadyLinked, "notice: deadline %s", d.ID)
	}
	if !d.Status.CanTransition(model.DeadlineNoticeDrafted) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot draft against deadline in %s", d.Status)
	}

	clause, err := s.store.GetClause(ctx, d.ClauseID)
	if err != nil {
		return nil, err
	}

	noticeType := model.NoticeTypeFor(clause.Kind)
	content := req.Content
	aiGenerated := false
	if content == "" {
		if s.drafter == nil {
			return nil, eris.New("notice: no content supplied and drafting is disabled")
		}
		content, err = s.drafter.DraftLetter(ctx, DraftContext{
			Clause:        *clause,
			Deadline:      *d,
			NoticeType:    noticeType,
			RecipientName: req.RecipientName,
			ProjectName:   req.ProjectName,
			OrgName:       s.orgName,
		})
		if err != nil {
			return nil, err
		}
		aiGenerated = true
	}

	now := s.clock.Now()
	n := &model.ComplianceNotice{
		ProjectID:      d.ProjectID,
		DeadlineID:     &d.ID,
		Type:           noticeType,
		Status:         model.NoticeDraft,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		Channels:       model.NewChannels(model.RequiredDeliveryMethods(clause.NoticeMethod)),
		Content:        content,
		AIGenerated:    aiGenerated,
		DueAt:          d.DeadlineAt,
	}

	priorStatus := d.Status
	d.Status = model.DeadlineNoticeDrafted

	audits := []model.AuditLogEntry{
		{
			ProjectID:  d.ProjectID,
			EventType:  "notice_drafted",
			EntityType: model.EntityNotice,
			ActorType:  actorTypeFor(req.Author),
			Actor:      req.Author,
			Action:     "draft",
			Details: map[string]any{
				"deadline_id":  d.ID,
				"notice_type":  noticeType,
				"ai_generated": aiGenerated,
			},
			Timestamp: now,
		},
		{
			ProjectID:  d.ProjectID,
			EventType:  "deadline_notice_drafted",
			EntityType: model.EntityDeadline,
			EntityID:   d.ID,
			ActorType:  actorTypeFor(req.Author),
			Actor:      req.Author,
			Action:     "transition",
			Details: map[string]any{
				"prior_status": priorStatus,
				"new_status":   model.DeadlineNoticeDrafted,
			},
			Timestamp: now,
		},
	}

	created, err := s.store.InsertNotice(ctx, n, d, audits)
	if err != nil {
		return nil, err
	}

	zap.L().Info("notice drafted",
		zap.String("notice_id", created.ID),
		zap.String("deadline_id", d.ID),
		zap.Bool("ai_generated", aiGenerated),
	)
	return created, nil
}

// Edit replaces the notice content. Permitted only in DRAFT/PENDING_REVIEW.
func (s *Service) Edit(ctx context.Context, noticeID, content, actor string) (*model.ComplianceNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !n.Status.Editable() {
		return nil, eris.Wrapf(model.ErrNotEditable, "notice: %s in %s", n.ID, n.Status)
	}

	n.Content = content
	n.AIGenerated = false

	audit := &model.AuditLogEntry{
		ProjectID:  n.ProjectID,
		EventType:  "notice_edited",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "edit",
		Timestamp:  s.clock.Now(),
	}
	if err := s.store.UpdateNotice(ctx, n, audit); err != nil {
		return nil, err
	}
	return n, nil
}

// SubmitForReview moves a draft into human review.
func (s *Service) SubmitForReview(ctx context.Context, noticeID, actor string) (*model.ComplianceNotice, error) {
	return s.transition(ctx, noticeID, model.NoticePendingReview, "notice_submitted_for_review", actor)
}

// Void retires a notice that was never sent.
func (s *Service) Void(ctx context.Context, noticeID, actor string) (*model.ComplianceNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !n.Status.CanTransition(model.NoticeVoid) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot void from %s", n.Status)
	}

	now := s.clock.Now()
	prior := n.Status
	n.Status = model.NoticeVoid

	audits := []model.AuditLogEntry{{
		ProjectID:  n.ProjectID,
		EventType:  "notice_voided",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "void",
		Details:    map[string]any{"prior_status": prior},
		Timestamp:  now,
	}}

	// A voided notice releases its deadline: the obligation is still open
	// and needs a fresh draft.
	d, err := s.reopenedDeadline(ctx, n, actor, now, &audits)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateNoticeAndDeadline(ctx, n, d, audits); err != nil {
		return nil, err
	}
	return n, nil
}

// MarkFailed records that a sent notice's delivery cannot be confirmed.
func (s *Service) MarkFailed(ctx context.Context, noticeID, reason, actor string) (*model.ComplianceNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !n.Status.CanTransition(model.NoticeFailed) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot fail from %s", n.Status)
	}
	n.Status = model.NoticeFailed

	audit := &model.AuditLogEntry{
		ProjectID:  n.ProjectID,
		EventType:  "notice_failed",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "fail",
		Details:    map[string]any{"reason": reason},
		Timestamp:  s.clock.Now(),
	}
	if err := s.store.UpdateNotice(ctx, n, audit); err != nil {
		return nil, err
	}
	return n, nil
}

// SendResult enumerates per-method dispatch outcomes. Partial failure is
// data, not an error.
type SendResult struct {
	Notice    *model.ComplianceNotice `json:"notice"`
	Succeeded []model.DeliveryKind    `json:"succeeded"`
	Failed    []Dispatch              `json:"failed,omitempty"`
}

// Send dispatches the notice on every required delivery method. Email is
// synchronous; physical methods are recorded pending manual confirmation.
// At least one success moves the notice to SENT and the deadline to
// NOTICE_SENT; total failure leaves the notice in DRAFT.
func (s *Service) Send(ctx context.Context, noticeID, actor string) (*SendResult, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !n.Status.CanTransition(model.NoticeSent) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot send from %s", n.Status)
	}

	now := s.clock.Now()
	result := &SendResult{Notice: n}

	for i := range n.Channels {
		ch := &n.Channels[i]
		if ch.State == model.ChannelDelivered {
			continue
		}
		disp := s.dispatcher.Dispatch(ctx, ch.Method, n)
		if disp.Accepted {
			at := now
			ch.DispatchedAt = &at
			ch.Error = ""
			if ch.Method == model.DeliveryEmail {
				ch.State = model.ChannelSent
			} else {
				// Pending: confirmation arrives out-of-band.
				ch.State = model.ChannelPending
			}
			result.Succeeded = append(result.Succeeded, ch.Method)
		} else {
			ch.State = model.ChannelFailed
			ch.Error = disp.Error
			result.Failed = append(result.Failed, disp)
		}
	}

	if len(result.Succeeded) == 0 {
		// Nothing went out; keep DRAFT but persist the per-method errors.
		audit := &model.AuditLogEntry{
			ProjectID:  n.ProjectID,
			EventType:  "notice_send_failed",
			EntityType: model.EntityNotice,
			EntityID:   n.ID,
			ActorType:  actorTypeFor(actor),
			Actor:      actor,
			Action:     "send",
			Details:    map[string]any{"failed_methods": methodNames(result.Failed)},
			Timestamp:  now,
		}
		if err := s.store.UpdateNotice(ctx, n, audit); err != nil {
			return nil, err
		}
		return result, nil
	}

	prior := n.Status
	n.Status = model.NoticeSent
	n.SentAt = &now

	audits := []model.AuditLogEntry{{
		ProjectID:  n.ProjectID,
		EventType:  "notice_sent",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "send",
		Details: map[string]any{
			"prior_status":      prior,
			"succeeded_methods": result.Succeeded,
			"failed_methods":    methodNames(result.Failed),
		},
		Timestamp: now,
	}}

	var d *model.ComplianceDeadline
	if n.DeadlineID != nil {
		d, err = s.store.GetDeadline(ctx, *n.DeadlineID)
		if err != nil {
			return nil, err
		}
		if d.Status.CanTransition(model.DeadlineNoticeSent) {
			priorDeadline := d.Status
			d.Status = model.DeadlineNoticeSent
			audits = append(audits, model.AuditLogEntry{
				ProjectID:  d.ProjectID,
				EventType:  "deadline_notice_sent",
				EntityType: model.EntityDeadline,
				EntityID:   d.ID,
				ActorType:  actorTypeFor(actor),
				Actor:      actor,
				Action:     "transition",
				Details: map[string]any{
					"prior_status": priorDeadline,
					"new_status":   model.DeadlineNoticeSent,
				},
				Timestamp: now,
			})
		} else {
			d = nil // deadline already terminal; leave it alone
		}
	}

	if err := s.store.UpdateNoticeAndDeadline(ctx, n, d, audits); err != nil {
		return nil, err
	}

	zap.L().Info("notice sent",
		zap.String("notice_id", n.ID),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// ConfirmDelivery records one method's delivery confirmation. When every
// required method is confirmed the notice is acknowledged, on-time status is
// derived from sentAt vs dueAt, and the deadline completes.
func (s *Service) ConfirmDelivery(ctx context.Context, noticeID string, conf model.Confirmation, actor string) (*model.ComplianceNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if n.Status != model.NoticeSent {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot confirm delivery in %s", n.Status)
	}

	ch := n.Channel(conf.Kind())
	if ch == nil {
		return nil, eris.Errorf("notice: method %s not required for notice %s", conf.Kind(), n.ID)
	}

	now := s.clock.Now()
	ch.State = model.ChannelDelivered
	ch.Confirmation = conf
	ch.Error = ""

	audits := []model.AuditLogEntry{{
		ProjectID:  n.ProjectID,
		EventType:  "notice_delivery_confirmed",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "confirm_delivery",
		Details: map[string]any{
			"method":       conf.Kind(),
			"confirmed_at": conf.ConfirmedAt(),
		},
		Timestamp: now,
	}}

	var d *model.ComplianceDeadline
	if model.AllDelivered(n.Channels) {
		onTime := n.SentAt != nil && !n.SentAt.After(n.DueAt)
		n.OnTime = &onTime
		n.Status = model.NoticeAcknowledged
		deliveredAt := latestConfirmation(n.Channels)
		n.DeliveredAt = &deliveredAt

		audits = append(audits, model.AuditLogEntry{
			ProjectID:  n.ProjectID,
			EventType:  "notice_acknowledged",
			EntityType: model.EntityNotice,
			EntityID:   n.ID,
			ActorType:  model.ActorSystem,
			Action:     "acknowledge",
			Details: map[string]any{
				"on_time":      onTime,
				"delivered_at": deliveredAt,
			},
			Timestamp: now,
		})

		if n.DeadlineID != nil {
			d, err = s.store.GetDeadline(ctx, *n.DeadlineID)
			if err != nil {
				return nil, err
			}
			if d.Status.CanTransition(model.DeadlineCompleted) {
				prior := d.Status
				d.Status = model.DeadlineCompleted
				audits = append(audits, model.AuditLogEntry{
					ProjectID:  d.ProjectID,
					EventType:  "deadline_completed",
					EntityType: model.EntityDeadline,
					EntityID:   d.ID,
					ActorType:  model.ActorSystem,
					Action:     "transition",
					Details: map[string]any{
						"prior_status": prior,
						"new_status":   model.DeadlineCompleted,
					},
					Timestamp: now,
				})
			} else {
				d = nil // expired before full confirmation; expiry stands
			}
		}
	}

	if err := s.store.UpdateNoticeAndDeadline(ctx, n, d, audits); err != nil {
		return nil, err
	}

	zap.L().Info("delivery confirmed",
		zap.String("notice_id", n.ID),
		zap.String("method", string(conf.Kind())),
		zap.String("status", string(n.Status)),
	)
	return n, nil
}

// Delete removes a notice that was never sent. The linked deadline reverts
// to ACTIVE: a deadline without a notice cannot remain NOTICE_DRAFTED.
func (s *Service) Delete(ctx context.Context, noticeID, actor string) error {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return err
	}
	if !n.Status.Editable() {
		return eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot delete in %s", n.Status)
	}

	now := s.clock.Now()
	audits := []model.AuditLogEntry{{
		ProjectID:  n.ProjectID,
		EventType:  "notice_deleted",
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "delete",
		Details:    map[string]any{"prior_status": n.Status},
		Timestamp:  now,
	}}

	d, err := s.reopenedDeadline(ctx, n, actor, now, &audits)
	if err != nil {
		return err
	}
	return s.store.DeleteNotice(ctx, n.ID, d, audits)
}

// Get returns one notice.
func (s *Service) Get(ctx context.Context, id string) (*model.ComplianceNotice, error) {
	return s.store.GetNotice(ctx, id)
}

// List returns notices matching the filter.
func (s *Service) List(ctx context.Context, filter store.NoticeFilter) ([]model.ComplianceNotice, error) {
	return s.store.ListNotices(ctx, filter)
}

// transition applies a simple status move with a single audit entry.
func (s *Service) transition(ctx context.Context, noticeID string, to model.NoticeStatus, eventType, actor string) (*model.ComplianceNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !n.Status.CanTransition(to) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"notice: cannot move %s to %s", n.Status, to)
	}
	prior := n.Status
	n.Status = to

	audit := &model.AuditLogEntry{
		ProjectID:  n.ProjectID,
		EventType:  eventType,
		EntityType: model.EntityNotice,
		EntityID:   n.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "transition",
		Details:    map[string]any{"prior_status": prior, "new_status": to},
		Timestamp:  s.clock.Now(),
	}
	if err := s.store.UpdateNotice(ctx, n, audit); err != nil {
		return nil, err
	}
	return n, nil
}

// reopenedDeadline loads the linked deadline and reverts it to ACTIVE when
// permitted, appending the matching audit entry. Returns nil when there is
// no deadline to reopen or the deadline is already terminal.
func (s *Service) reopenedDeadline(ctx context.Context, n *model.ComplianceNotice, actor string, now time.Time, audits *[]model.AuditLogEntry) (*model.ComplianceDeadline, error) {
	if n.DeadlineID == nil {
		return nil, nil
	}
	d, err := s.store.GetDeadline(ctx, *n.DeadlineID)
	if err != nil {
		return nil, eris.Wrap(err, "notice: load linked deadline")
	}
	if !d.Status.CanTransition(model.DeadlineActive) {
		return nil, nil
	}
	prior := d.Status
	d.Status = model.DeadlineActive
	d.NoticeID = nil
	*audits = append(*audits, model.AuditLogEntry{
		ProjectID:  d.ProjectID,
		EventType:  "deadline_reopened",
		EntityType: model.EntityDeadline,
		EntityID:   d.ID,
		ActorType:  actorTypeFor(actor),
		Actor:      actor,
		Action:     "transition",
		Details: map[string]any{
			"prior_status": prior,
			"new_status":   model.DeadlineActive,
		},
		Timestamp: now,
	})
	return d, nil
}

func actorTypeFor(actor string) model.ActorType {
	if actor == "" {
		return model.ActorSystem
	}
	return model.ActorUser
}

func methodNames(dispatches []Dispatch) []string {
	names := make([]string, 0, len(dispatches))
	for _, d := range dispatches {
		names = append(names, string(d.Method))
	}
	return names
}

func latestConfirmation(channels []model.DeliveryChannel) time.Time {
	var latest time.Time
	for _, ch := range channels {
		if ch.Confirmation != nil && ch.Confirmation.ConfirmedAt().After(latest) {
			latest = ch.Confirmation.ConfirmedAt()
		}
	}
	return latest
}
