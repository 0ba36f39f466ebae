package deadline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

// Service owns the ComplianceDeadline lifecycle: creation from trigger
// events, waiver, and the periodic severity re-evaluation sweep.
type Service struct {
	store       store.Store
	clock       clock.Clock
	cal         *HolidayCalendar
	cooldown    time.Duration
	concurrency int
}

// Options tunes the service.
type Options struct {
	Calendar      *HolidayCalendar
	AlertCooldown time.Duration // default 24h
	Concurrency   int           // sweep parallelism, default 8
}

// NewService creates a deadline lifecycle manager.
func NewService(st store.Store, clk clock.Clock, opts Options) *Service {
	cooldown := opts.AlertCooldown
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Service{
		store:       st,
		clock:       clk,
		cal:         opts.Calendar,
		cooldown:    cooldown,
		concurrency: concurrency,
	}
}

// TriggerRequest describes a project event that may spawn a deadline.
type TriggerRequest struct {
	ProjectID          string    `json:"project_id"`
	ClauseID           string    `json:"clause_id"`
	TriggerEventType   string    `json:"trigger_event_type"`
	TriggerEventID     string    `json:"trigger_event_id,omitempty"`
	TriggerDescription string    `json:"trigger_description"`
	TriggeredAt        time.Time `json:"triggered_at"`
	TriggeredBy        string    `json:"triggered_by,omitempty"`
	EstimatedValueUSD  float64   `json:"estimated_value_usd,omitempty"`
}

// NotifyTrigger creates a deadline for a trigger event against a confirmed
// clause. Re-delivery of the same (clause, trigger event) is idempotent: the
// existing non-terminal deadline is returned, never a duplicate.
func (s *Service) NotifyTrigger(ctx context.Context, req TriggerRequest) (*model.ComplianceDeadline, error) {
	clause, err := s.store.GetClause(ctx, req.ClauseID)
	if err != nil {
		return nil, err
	}
	if !clause.Confirmed {
		return nil, eris.Wrapf(model.ErrInvalidClauseConfiguration,
			"deadline: clause %s not confirmed", clause.ID)
	}

	triggeredAt := req.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = s.clock.Now()
	}

	deadlineAt, err := Calculate(triggeredAt, clause, s.cal)
	if err != nil {
		return nil, err
	}

	if req.TriggerEventID != "" {
		existing, err := s.store.FindOpenDeadline(ctx, req.ClauseID, req.TriggerEventID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := s.clock.Now()
	cls := Classify(deadlineAt, now)

	d := &model.ComplianceDeadline{
		ProjectID:          req.ProjectID,
		ClauseID:           req.ClauseID,
		TriggerEventType:   req.TriggerEventType,
		TriggerEventID:     req.TriggerEventID,
		TriggerDescription: req.TriggerDescription,
		TriggeredAt:        triggeredAt,
		TriggeredBy:        req.TriggeredBy,
		DeadlineAt:         deadlineAt,
		Severity:           cls.Severity,
		Status:             model.DeadlineActive,
		EstimatedValueUSD:  req.EstimatedValueUSD,
	}

	actorType := model.ActorSystem
	if req.TriggeredBy != "" {
		actorType = model.ActorUser
	}
	audit := &model.AuditLogEntry{
		ProjectID:  req.ProjectID,
		EventType:  "deadline_created",
		EntityType: model.EntityDeadline,
		ActorType:  actorType,
		Actor:      req.TriggeredBy,
		Action:     "create",
		Details: map[string]any{
			"clause_id":          req.ClauseID,
			"trigger_event_type": req.TriggerEventType,
			"trigger_event_id":   req.TriggerEventID,
			"deadline_at":        deadlineAt,
			"severity":           cls.Severity,
		},
		Timestamp: now,
	}

	created, err := s.store.InsertDeadline(ctx, d, audit)
	if err != nil {
		// Lost a race against a concurrent trigger delivery; the constraint
		// caught it, return the winner.
		if eris.Is(err, model.ErrDuplicateTrigger) && req.TriggerEventID != "" {
			existing, findErr := s.store.FindOpenDeadline(ctx, req.ClauseID, req.TriggerEventID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	zap.L().Info("deadline created",
		zap.String("deadline_id", created.ID),
		zap.String("project_id", created.ProjectID),
		zap.String("severity", string(created.Severity)),
		zap.Time("deadline_at", created.DeadlineAt),
	)
	return created, nil
}

// Waive irreversibly waives a deadline. Reason and actor are mandatory; the
// deadline must be in a waivable (non-terminal) state.
func (s *Service) Waive(ctx context.Context, deadlineID, reason, actor string) (*model.ComplianceDeadline, error) {
	if reason == "" {
		return nil, eris.New("deadline: waiver reason is required")
	}
	if actor == "" {
		return nil, eris.New("deadline: waiver actor is required")
	}

	d, err := s.store.GetDeadline(ctx, deadlineID)
	if err != nil {
		return nil, err
	}
	if !d.Status.CanTransition(model.DeadlineWaived) {
		return nil, eris.Wrapf(model.ErrInvalidTransition,
			"deadline: cannot waive from %s", d.Status)
	}

	now := s.clock.Now()
	prior := d.Status
	d.Status = model.DeadlineWaived
	d.WaiverReason = reason
	d.WaivedBy = actor
	d.WaivedAt = &now

	audit := &model.AuditLogEntry{
		ProjectID:  d.ProjectID,
		EventType:  "deadline_waived",
		EntityType: model.EntityDeadline,
		EntityID:   d.ID,
		ActorType:  model.ActorUser,
		Actor:      actor,
		Action:     "waive",
		Details: map[string]any{
			"reason":       reason,
			"prior_status": prior,
		},
		Timestamp: now,
	}

	if err := s.store.UpdateDeadline(ctx, d, audit); err != nil {
		return nil, err
	}

	zap.L().Info("deadline waived",
		zap.String("deadline_id", d.ID),
		zap.String("actor", actor),
	)
	return d, nil
}

// Escalation is one deadline whose severity warrants a proactive alert.
type Escalation struct {
	Deadline       model.ComplianceDeadline `json:"deadline"`
	Classification Classification           `json:"classification"`
}

// SweepFailure records a single deadline the sweep could not process.
type SweepFailure struct {
	DeadlineID string `json:"deadline_id"`
	Error      string `json:"error"`
}

// SweepResult aggregates one re-evaluation pass. Failures are data, not
// errors: one bad deadline never aborts the batch.
type SweepResult struct {
	Evaluated       int            `json:"evaluated"`
	SeverityChanges int            `json:"severity_changes"`
	Expired         int            `json:"expired"`
	Escalations     []Escalation   `json:"escalations,omitempty"`
	Failures        []SweepFailure `json:"failures,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}

// ReEvaluateAll re-classifies every non-terminal deadline against the current
// clock. Each deadline is processed independently in its own transaction;
// re-running with no elapsed time is a no-op. Returns the aggregate result;
// the error covers only listing, never individual deadlines.
func (s *Service) ReEvaluateAll(ctx context.Context) (*SweepResult, error) {
	log := zap.L().With(zap.String("component", "deadline.sweep"))
	now := s.clock.Now()

	open, err := s.store.ListOpenDeadlines(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "deadline: list open deadlines")
	}

	result := &SweepResult{StartedAt: now, Evaluated: len(open)}
	if len(open) == 0 {
		result.FinishedAt = s.clock.Now()
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range open {
		d := open[i]
		g.Go(func() error {
			changed, expired, esc, err := s.reEvaluateOne(gctx, d, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, SweepFailure{
					DeadlineID: d.ID,
					Error:      err.Error(),
				})
				log.Error("sweep step failed",
					zap.String("deadline_id", d.ID),
					zap.Error(err),
				)
				return nil // collected, never aborts the batch
			}
			if changed {
				result.SeverityChanges++
			}
			if expired {
				result.Expired++
			}
			if esc != nil {
				result.Escalations = append(result.Escalations, *esc)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = s.clock.Now()
	log.Info("sweep complete",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("severity_changes", result.SeverityChanges),
		zap.Int("expired", result.Expired),
		zap.Int("escalations", len(result.Escalations)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// reEvaluateOne handles a single deadline: severity drift, forced expiry, and
// alert eligibility. Persists only when something changed.
func (s *Service) reEvaluateOne(ctx context.Context, d model.ComplianceDeadline, now time.Time) (changed, expired bool, esc *Escalation, err error) {
	cls := Classify(d.DeadlineAt, now)

	changed = cls.Severity != d.Severity
	// The clock ran out before delivery completed. A sent-but-undelivered
	// notice is still a compliance failure; expiry applies from any
	// non-terminal state, including deadlines born EXPIRED off a backdated
	// trigger whose severity never drifted.
	expired = cls.Severity == model.SeverityExpired && !d.Status.Terminal()

	if changed || expired {
		prior := d.Severity
		priorStatus := d.Status
		d.Severity = cls.Severity

		details := map[string]any{
			"prior_severity": prior,
			"new_severity":   cls.Severity,
			"days_remaining": cls.DaysRemaining,
		}
		eventType := "deadline_severity_changed"
		action := "reclassify"

		if expired {
			d.Status = model.DeadlineExpired
			eventType = "deadline_expired"
			action = "expire"
			details["prior_status"] = priorStatus
			details["claim_forfeiture_risk"] = true
		}

		audit := &model.AuditLogEntry{
			ProjectID:  d.ProjectID,
			EventType:  eventType,
			EntityType: model.EntityDeadline,
			EntityID:   d.ID,
			ActorType:  model.ActorSystem,
			Action:     action,
			Details:    details,
			Timestamp:  now,
		}
		if err := s.store.UpdateDeadline(ctx, &d, audit); err != nil {
			return false, false, nil, err
		}
	}

	if ShouldAlert(cls.Severity, d.LastAlertAt, now, s.cooldown) {
		esc = &Escalation{Deadline: d, Classification: cls}
	}
	return changed, expired, esc, nil
}

// MarkAlerted stamps the deadline's last-alert time, feeding the cooldown.
func (s *Service) MarkAlerted(ctx context.Context, deadlineID string) error {
	return s.store.TouchDeadlineAlert(ctx, deadlineID, s.clock.Now())
}

// Get returns one deadline.
func (s *Service) Get(ctx context.Context, id string) (*model.ComplianceDeadline, error) {
	return s.store.GetDeadline(ctx, id)
}

// List returns deadlines matching the filter.
func (s *Service) List(ctx context.Context, filter store.DeadlineFilter) ([]model.ComplianceDeadline, error) {
	return s.store.ListDeadlines(ctx, filter)
}
