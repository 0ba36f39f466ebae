package store

import (
	"context"
	"time"

	"github.com/sells-group/compliance-cli/internal/model"
)

// DeadlineFilter specifies criteria for listing deadlines.
type DeadlineFilter struct {
	ProjectID  string                 `json:"project_id,omitempty"`
	Status     model.DeadlineStatus   `json:"status,omitempty"`
	Severities []model.Severity       `json:"severities,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset,omitempty"`
}

// NoticeFilter specifies criteria for listing notices.
type NoticeFilter struct {
	ProjectID string               `json:"project_id,omitempty"`
	Statuses  []model.NoticeStatus `json:"statuses,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
}

// Store defines the persistence interface for the compliance engine.
// Mutating operations that carry audit entries are atomic: the entity change
// and its audit write commit together or not at all.
type Store interface {
	// Clauses
	CreateClause(ctx context.Context, c *model.ContractClause) (*model.ContractClause, error)
	GetClause(ctx context.Context, id string) (*model.ContractClause, error)
	ListClauses(ctx context.Context, projectID string) ([]model.ContractClause, error)
	ConfirmClause(ctx context.Context, id, actor string, updates *model.ContractClause) (*model.ContractClause, error)

	// Deadlines. InsertDeadline returns ErrDuplicateTrigger when another
	// non-terminal deadline for the same (clause, trigger event) exists;
	// the uniqueness is a database constraint, not an application check.
	InsertDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) (*model.ComplianceDeadline, error)
	GetDeadline(ctx context.Context, id string) (*model.ComplianceDeadline, error)
	FindOpenDeadline(ctx context.Context, clauseID, triggerEventID string) (*model.ComplianceDeadline, error)
	ListDeadlines(ctx context.Context, filter DeadlineFilter) ([]model.ComplianceDeadline, error)
	ListOpenDeadlines(ctx context.Context) ([]model.ComplianceDeadline, error)
	UpdateDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) error
	TouchDeadlineAlert(ctx context.Context, id string, at time.Time) error

	// Notices. InsertNotice links the notice to its deadline and advances
	// the deadline in the same transaction; it returns ErrAlreadyLinked when
	// the deadline already carries a notice.
	InsertNotice(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) (*model.ComplianceNotice, error)
	GetNotice(ctx context.Context, id string) (*model.ComplianceNotice, error)
	ListNotices(ctx context.Context, filter NoticeFilter) ([]model.ComplianceNotice, error)
	UpdateNotice(ctx context.Context, n *model.ComplianceNotice, audit *model.AuditLogEntry) error
	UpdateNoticeAndDeadline(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error
	DeleteNotice(ctx context.Context, noticeID string, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error

	// Scores
	GetScoreCache(ctx context.Context, projectID string) (*model.ComplianceScore, error)
	SaveScoreCache(ctx context.Context, score *model.ComplianceScore) error
	UpsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error
	ListSnapshots(ctx context.Context, projectID string, g model.Granularity, limit int) ([]model.ScoreSnapshot, error)
	ListProjectIDs(ctx context.Context) ([]string, error)

	// Audit trail (append-only)
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
	ListAudit(ctx context.Context, projectID, entityType, entityID string, limit int) ([]model.AuditLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
