package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/config"
	"github.com/sells-group/compliance-cli/internal/deadline"
)

// Checker runs the severity sweep on a fixed interval and routes the
// resulting escalations through the alerter.
type Checker struct {
	deadlines *deadline.Service
	alerter   *Alerter
	cfg       config.AlertConfig
}

func NewChecker(deadlines *deadline.Service, alerter *Alerter, cfg config.AlertConfig) *Checker {
	return &Checker{deadlines: deadlines, alerter: alerter, cfg: cfg}
}

// Run starts the periodic sweep loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "alert.checker"))
	log.Info("starting deadline checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("deadline checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	result, err := c.deadlines.ReEvaluateAll(ctx)
	if err != nil {
		log.Error("sweep failed", zap.Error(err))
		return
	}
	for _, f := range result.Failures {
		log.Error("sweep step failed",
			zap.String("deadline_id", f.DeadlineID),
			zap.String("error", f.Error),
		)
	}
	if len(result.Escalations) == 0 {
		log.Debug("no escalations")
		return
	}

	alerted := c.alerter.SendAll(ctx, result.Escalations)
	for _, id := range alerted {
		if err := c.deadlines.MarkAlerted(ctx, id); err != nil {
			log.Error("failed to stamp alert time",
				zap.String("deadline_id", id),
				zap.Error(err),
			)
		}
	}
	log.Info("check complete",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("escalations", len(result.Escalations)),
		zap.Int("alerted", len(alerted)),
	)
}
