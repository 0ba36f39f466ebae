// Package storetest provides an in-memory Store for service-level tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

// Mem implements store.Store over maps. It honors the same constraint
// semantics as the SQL drivers: duplicate open triggers, exclusive notice
// linkage, and audit entries written atomically with their mutations.
type Mem struct {
	mu        sync.Mutex
	clauses   map[string]model.ContractClause
	deadlines map[string]model.ComplianceDeadline
	notices   map[string]model.ComplianceNotice
	scores    map[string]model.ComplianceScore
	snapshots map[string]model.ScoreSnapshot
	audits    []model.AuditLogEntry
	nextAudit int64
}

func NewMem() *Mem {
	return &Mem{
		clauses:   make(map[string]model.ContractClause),
		deadlines: make(map[string]model.ComplianceDeadline),
		notices:   make(map[string]model.ComplianceNotice),
		scores:    make(map[string]model.ComplianceScore),
		snapshots: make(map[string]model.ScoreSnapshot),
	}
}

// ---- clauses ----

func (m *Mem) CreateClause(_ context.Context, c *model.ContractClause) (*model.ContractClause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.clauses[c.ID] = *c
	return c, nil
}

func (m *Mem) GetClause(_ context.Context, id string) (*model.ContractClause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clauses[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrClauseNotFound, "mem: %s", id)
	}
	return &c, nil
}

func (m *Mem) ListClauses(_ context.Context, projectID string) ([]model.ContractClause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ContractClause
	for _, c := range m.clauses {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Mem) ConfirmClause(_ context.Context, id, actor string, updates *model.ContractClause) (*model.ContractClause, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clauses[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrClauseNotFound, "mem: %s", id)
	}
	now := time.Now().UTC()
	c.DeadlineDays = updates.DeadlineDays
	c.DeadlineType = updates.DeadlineType
	c.CureDays = updates.CureDays
	c.CureType = updates.CureType
	c.NoticeMethod = updates.NoticeMethod
	c.Confirmed = true
	c.ConfirmedBy = actor
	c.ConfirmedAt = &now
	c.UpdatedAt = now
	m.clauses[id] = c
	return &c, nil
}

// ---- deadlines ----

func (m *Mem) InsertDeadline(_ context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) (*model.ComplianceDeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.TriggerEventID != "" {
		for _, existing := range m.deadlines {
			if existing.ClauseID == d.ClauseID && existing.TriggerEventID == d.TriggerEventID && !existing.Status.Terminal() {
				return nil, eris.Wrapf(model.ErrDuplicateTrigger, "mem: clause %s event %s", d.ClauseID, d.TriggerEventID)
			}
		}
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	m.deadlines[d.ID] = *d
	if audit != nil {
		audit.EntityID = d.ID
		m.appendAuditLocked(audit)
	}
	return d, nil
}

func (m *Mem) GetDeadline(_ context.Context, id string) (*model.ComplianceDeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deadlines[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrDeadlineNotFound, "mem: %s", id)
	}
	return &d, nil
}

func (m *Mem) FindOpenDeadline(_ context.Context, clauseID, triggerEventID string) (*model.ComplianceDeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deadlines {
		if d.ClauseID == clauseID && d.TriggerEventID == triggerEventID && !d.Status.Terminal() {
			out := d
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Mem) ListDeadlines(_ context.Context, filter store.DeadlineFilter) ([]model.ComplianceDeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ComplianceDeadline
	for _, d := range m.deadlines {
		if filter.ProjectID != "" && d.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if len(filter.Severities) > 0 && !containsSeverity(filter.Severities, d.Severity) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	return out, nil
}

func (m *Mem) ListOpenDeadlines(_ context.Context) ([]model.ComplianceDeadline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ComplianceDeadline
	for _, d := range m.deadlines {
		if !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	return out, nil
}

func (m *Mem) UpdateDeadline(_ context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDeadlineLocked(d, audit)
}

func (m *Mem) updateDeadlineLocked(d *model.ComplianceDeadline, audit *model.AuditLogEntry) error {
	if _, ok := m.deadlines[d.ID]; !ok {
		return eris.Wrapf(model.ErrDeadlineNotFound, "mem: %s", d.ID)
	}
	d.UpdatedAt = time.Now().UTC()
	m.deadlines[d.ID] = *d
	if audit != nil {
		m.appendAuditLocked(audit)
	}
	return nil
}

func (m *Mem) TouchDeadlineAlert(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deadlines[id]
	if !ok {
		return eris.Wrapf(model.ErrDeadlineNotFound, "mem: %s", id)
	}
	at = at.UTC()
	d.LastAlertAt = &at
	d.UpdatedAt = at
	m.deadlines[id] = d
	return nil
}

// ---- notices ----

func (m *Mem) InsertNotice(_ context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) (*model.ComplianceNotice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	if d != nil {
		existing, ok := m.deadlines[d.ID]
		if !ok {
			return nil, eris.Wrapf(model.ErrDeadlineNotFound, "mem: %s", d.ID)
		}
		if existing.NoticeID != nil {
			return nil, eris.Wrapf(model.ErrAlreadyLinked, "mem: deadline %s", d.ID)
		}
		d.NoticeID = &n.ID
		d.UpdatedAt = now
		m.deadlines[d.ID] = *d
	}
	m.notices[n.ID] = *n

	for i := range audits {
		if audits[i].EntityType == model.EntityNotice && audits[i].EntityID == "" {
			audits[i].EntityID = n.ID
		}
		m.appendAuditLocked(&audits[i])
	}
	return n, nil
}

func (m *Mem) GetNotice(_ context.Context, id string) (*model.ComplianceNotice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notices[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNoticeNotFound, "mem: %s", id)
	}
	out := n
	out.Channels = append([]model.DeliveryChannel(nil), n.Channels...)
	return &out, nil
}

func (m *Mem) ListNotices(_ context.Context, filter store.NoticeFilter) ([]model.ComplianceNotice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ComplianceNotice
	for _, n := range m.notices {
		if filter.ProjectID != "" && n.ProjectID != filter.ProjectID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, n.Status) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Mem) UpdateNotice(_ context.Context, n *model.ComplianceNotice, audit *model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateNoticeLocked(n, audit)
}

func (m *Mem) updateNoticeLocked(n *model.ComplianceNotice, audit *model.AuditLogEntry) error {
	if _, ok := m.notices[n.ID]; !ok {
		return eris.Wrapf(model.ErrNoticeNotFound, "mem: %s", n.ID)
	}
	n.UpdatedAt = time.Now().UTC()
	m.notices[n.ID] = *n
	if audit != nil {
		m.appendAuditLocked(audit)
	}
	return nil
}

func (m *Mem) UpdateNoticeAndDeadline(_ context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateNoticeLocked(n, nil); err != nil {
		return err
	}
	if d != nil {
		if err := m.updateDeadlineLocked(d, nil); err != nil {
			return err
		}
	}
	for i := range audits {
		m.appendAuditLocked(&audits[i])
	}
	return nil
}

func (m *Mem) DeleteNotice(_ context.Context, noticeID string, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notices[noticeID]; !ok {
		return eris.Wrapf(model.ErrNoticeNotFound, "mem: %s", noticeID)
	}
	if d != nil {
		if err := m.updateDeadlineLocked(d, nil); err != nil {
			return err
		}
	}
	delete(m.notices, noticeID)
	for i := range audits {
		m.appendAuditLocked(&audits[i])
	}
	return nil
}

// ---- scores ----

func (m *Mem) GetScoreCache(_ context.Context, projectID string) (*model.ComplianceScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[projectID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Mem) SaveScoreCache(_ context.Context, score *model.ComplianceScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[score.ProjectID] = *score
	return nil
}

func (m *Mem) UpsertSnapshot(_ context.Context, snap *model.ScoreSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snap.ProjectID + "|" + snap.Date.Format("2006-01-02") + "|" + string(snap.Granularity)
	if existing, ok := m.snapshots[key]; ok {
		snap.ID = existing.ID
	} else if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	m.snapshots[key] = *snap
	return nil
}

func (m *Mem) ListSnapshots(_ context.Context, projectID string, g model.Granularity, limit int) ([]model.ScoreSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ScoreSnapshot
	for _, s := range m.snapshots {
		if s.ProjectID == projectID && s.Granularity == g {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Mem) ListProjectIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, d := range m.deadlines {
		if !seen[d.ProjectID] {
			seen[d.ProjectID] = true
			ids = append(ids, d.ProjectID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ---- audit ----

func (m *Mem) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAuditLocked(e)
	return nil
}

func (m *Mem) appendAuditLocked(e *model.AuditLogEntry) {
	m.nextAudit++
	e.ID = m.nextAudit
	m.audits = append(m.audits, *e)
}

func (m *Mem) ListAudit(_ context.Context, projectID, entityType, entityID string, limit int) ([]model.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLogEntry
	for i := len(m.audits) - 1; i >= 0; i-- {
		e := m.audits[i]
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AuditEntries returns a copy of every entry, oldest first.
func (m *Mem) AuditEntries() []model.AuditLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditLogEntry(nil), m.audits...)
}

// ---- lifecycle ----

func (m *Mem) Migrate(context.Context) error { return nil }
func (m *Mem) Close() error                  { return nil }

func containsSeverity(list []model.Severity, s model.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsStatus(list []model.NoticeStatus, s model.NoticeStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
