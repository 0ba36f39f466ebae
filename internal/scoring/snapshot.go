package scoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/model"
)

// PeriodStart truncates t to the start of the period the granularity covers:
// midnight for daily, Monday for weekly, the first of the month for monthly.
// Snapshots taken anywhere inside a period share a key and overwrite.
func PeriodStart(t time.Time, g model.Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case model.GranularityWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // days since Monday
		return day.AddDate(0, 0, -offset)
	case model.GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// SnapshotDue reports whether a new period has started since the last
// snapshot. A nil last means no snapshot has ever been taken.
func SnapshotDue(last *time.Time, now time.Time, g model.Granularity) bool {
	if last == nil {
		return true
	}
	return PeriodStart(now, g).After(PeriodStart(*last, g))
}

// Snapshot recomputes the project score and upserts a snapshot for the
// current period. Re-running inside the same period overwrites the row.
func (e *Engine) Snapshot(ctx context.Context, projectID string, g model.Granularity) (*model.ScoreSnapshot, error) {
	now := e.clock.Now()
	score, err := e.compute(ctx, projectID, now)
	if err != nil {
		return nil, err
	}
	snap := &model.ScoreSnapshot{
		ProjectID:   projectID,
		Date:        PeriodStart(now, g),
		Granularity: g,
		Score:       *score,
		CreatedAt:   now,
	}
	if err := e.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	e.log.Info("score snapshot taken",
		zap.String("project_id", projectID),
		zap.String("granularity", string(g)),
		zap.Time("date", snap.Date),
	)
	return snap, nil
}

// SnapshotAll takes a snapshot for every known project. Per-project failures
// are collected; one bad project never aborts the batch.
func (e *Engine) SnapshotAll(ctx context.Context, g model.Granularity) (int, []error) {
	projects, err := e.store.ListProjectIDs(ctx)
	if err != nil {
		return 0, []error{err}
	}
	var errs []error
	taken := 0
	for _, projectID := range projects {
		if _, err := e.Snapshot(ctx, projectID, g); err != nil {
			e.log.Warn("snapshot failed",
				zap.String("project_id", projectID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		taken++
	}
	return taken, errs
}

// Trend returns the most recent snapshots for a project at one granularity,
// oldest first, for chart rendering.
func (e *Engine) Trend(ctx context.Context, projectID string, g model.Granularity, limit int) ([]model.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	return e.store.ListSnapshots(ctx, projectID, g, limit)
}
