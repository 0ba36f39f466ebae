package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/config"
)

// Runner owns the Temporal client and worker for the compliance task queue.
type Runner struct {
	client client.Client
	cfg    config.TemporalConfig
	acts   *Activities
}

// NewRunner dials the Temporal frontend and prepares a runner.
func NewRunner(cfg config.TemporalConfig, acts *Activities) (*Runner, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "worker: dial temporal")
	}
	return &Runner{client: c, cfg: cfg, acts: acts}, nil
}

// Run registers the workflows and activities and blocks serving the task
// queue until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	w := worker.New(r.client, r.cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(ComplianceSweepWorkflow)
	w.RegisterWorkflow(ScoreSnapshotWorkflow)
	w.RegisterActivity(r.acts)

	zap.L().Info("temporal worker starting",
		zap.String("task_queue", r.cfg.TaskQueue),
		zap.String("namespace", r.cfg.Namespace),
	)
	if err := w.Run(interruptFrom(ctx)); err != nil {
		return eris.Wrap(err, "worker: run")
	}
	return nil
}

// Schedule starts the cron workflows. Existing crons with the same workflow
// id are left running; the AlreadyStarted error is expected on redeploy.
func (r *Runner) Schedule(ctx context.Context) error {
	crons := []struct {
		id       string
		cron     string
		workflow any
		args     []any
	}{
		{"compliance-sweep", r.cfg.SweepCron, ComplianceSweepWorkflow, nil},
		{"score-snapshot-daily", r.cfg.SnapshotCron, ScoreSnapshotWorkflow, []any{"daily"}},
	}

	for _, c := range crons {
		if c.cron == "" {
			continue
		}
		opts := client.StartWorkflowOptions{
			ID:           c.id,
			TaskQueue:    r.cfg.TaskQueue,
			CronSchedule: c.cron,
		}
		_, err := r.client.ExecuteWorkflow(ctx, opts, c.workflow, c.args...)
		if err != nil {
			zap.L().Warn("cron start skipped",
				zap.String("workflow_id", c.id),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("cron workflow scheduled",
			zap.String("workflow_id", c.id),
			zap.String("cron", c.cron),
		)
	}
	return nil
}

// Close releases the Temporal client.
func (r *Runner) Close() {
	r.client.Close()
}

// interruptFrom adapts a context cancellation into the channel worker.Run
// expects.
func interruptFrom(ctx context.Context) <-chan interface{} {
	ch := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
