package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ComplianceSweepWorkflow runs one severity re-evaluation pass. Scheduled on
// a cron; safe to re-run because the sweep itself is idempotent.
func ComplianceSweepWorkflow(ctx workflow.Context) (*SweepActivityResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	var result SweepActivityResult
	if err := workflow.ExecuteActivity(ctx, a.RunSweep).Get(ctx, &result); err != nil {
		return nil, err
	}

	workflow.GetLogger(ctx).Info("sweep workflow complete",
		"evaluated", result.Evaluated,
		"severity_changes", result.SeverityChanges,
		"expired", result.Expired,
		"alerted", result.Alerted,
	)
	return &result, nil
}

// ScoreSnapshotWorkflow takes one round of score snapshots. The granularity
// is an argument so daily/weekly/monthly crons share the workflow.
func ScoreSnapshotWorkflow(ctx workflow.Context, granularity string) (*SnapshotActivityResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 30 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	var result SnapshotActivityResult
	if err := workflow.ExecuteActivity(ctx, a.TakeSnapshots, granularity).Get(ctx, &result); err != nil {
		return nil, err
	}

	workflow.GetLogger(ctx).Info("snapshot workflow complete",
		"granularity", result.Granularity,
		"taken", result.Taken,
		"failed", result.Failed,
	)
	return &result, nil
}
