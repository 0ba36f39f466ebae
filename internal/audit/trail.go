package audit

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

// Trail is the append-only compliance history. Entries are written alongside
// the mutations they describe; this type covers standalone writes (manual
// annotations, external events) and all reads. There is no update or delete.
type Trail struct {
	store store.Store
	clock clock.Clock
}

func NewTrail(st store.Store, clk clock.Clock) *Trail {
	return &Trail{store: st, clock: clk}
}

// Record appends one entry. Timestamp is stamped here when unset.
func (t *Trail) Record(ctx context.Context, e *model.AuditLogEntry) error {
	if e.ProjectID == "" {
		return eris.New("audit: project id required")
	}
	if e.EventType == "" {
		return eris.New("audit: event type required")
	}
	if e.ActorType == "" {
		e.ActorType = model.ActorSystem
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = t.clock.Now()
	}
	return t.store.AppendAudit(ctx, e)
}

// ForEntity returns the history of a single deadline, notice, or clause,
// newest first.
func (t *Trail) ForEntity(ctx context.Context, projectID, entityType, entityID string, limit int) ([]model.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.store.ListAudit(ctx, projectID, entityType, entityID, limit)
}

// ForProject returns the project-wide history, newest first.
func (t *Trail) ForProject(ctx context.Context, projectID string, limit int) ([]model.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.store.ListAudit(ctx, projectID, "", "", limit)
}
