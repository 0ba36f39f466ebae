package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/alert"
	"github.com/sells-group/compliance-cli/internal/deadline"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/scoring"
)

// Activities bundles the service dependencies Temporal activities close over.
type Activities struct {
	Deadlines *deadline.Service
	Scoring   *scoring.Engine
	Alerter   *alert.Alerter
}

// SweepActivityResult is the serializable subset of a sweep the workflow
// cares about.
type SweepActivityResult struct {
	Evaluated       int `json:"evaluated"`
	SeverityChanges int `json:"severity_changes"`
	Expired         int `json:"expired"`
	Alerted         int `json:"alerted"`
	Failures        int `json:"failures"`
}

// RunSweep re-evaluates every open deadline and routes escalations to the
// alerter. Idempotent: with no elapsed time it changes nothing.
func (a *Activities) RunSweep(ctx context.Context) (*SweepActivityResult, error) {
	result, err := a.Deadlines.ReEvaluateAll(ctx)
	if err != nil {
		return nil, err
	}

	alerted := a.Alerter.SendAll(ctx, result.Escalations)
	for _, id := range alerted {
		if err := a.Deadlines.MarkAlerted(ctx, id); err != nil {
			zap.L().Error("failed to stamp alert time",
				zap.String("deadline_id", id),
				zap.Error(err),
			)
		}
	}

	return &SweepActivityResult{
		Evaluated:       result.Evaluated,
		SeverityChanges: result.SeverityChanges,
		Expired:         result.Expired,
		Alerted:         len(alerted),
		Failures:        len(result.Failures),
	}, nil
}

// SnapshotActivityResult reports one snapshot pass.
type SnapshotActivityResult struct {
	Granularity string `json:"granularity"`
	Taken       int    `json:"taken"`
	Failed      int    `json:"failed"`
}

// TakeSnapshots upserts a score snapshot for every project at the given
// granularity. Per-project failures are counted, never fatal.
func (a *Activities) TakeSnapshots(ctx context.Context, granularity string) (*SnapshotActivityResult, error) {
	taken, errs := a.Scoring.SnapshotAll(ctx, model.Granularity(granularity))
	return &SnapshotActivityResult{
		Granularity: granularity,
		Taken:       taken,
		Failed:      len(errs),
	}, nil
}
