package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/config"
	"github.com/sells-group/compliance-cli/internal/deadline"
	"github.com/sells-group/compliance-cli/internal/resilience"
)

// Alert is a single escalation notification sent to the webhook.
type Alert struct {
	DeadlineID    string         `json:"deadline_id"`
	ProjectID     string         `json:"project_id"`
	Severity      string         `json:"severity"`
	Message       string         `json:"message"`
	DaysRemaining int            `json:"days_remaining"`
	Details       map[string]any `json:"details,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Alerter converts sweep escalations into webhook alerts. The in-app channel
// is the structured log stream; the webhook channel posts JSON to the
// configured endpoint.
type Alerter struct {
	cfg    config.AlertConfig
	client *http.Client
	retry  resilience.Policy
}

func NewAlerter(cfg config.AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DeliveryPolicy(),
	}
}

// Build maps one escalation to its alert payload.
func (a *Alerter) Build(esc deadline.Escalation) Alert {
	d := esc.Deadline
	cls := esc.Classification
	return Alert{
		DeadlineID:    d.ID,
		ProjectID:     d.ProjectID,
		Severity:      string(cls.Severity),
		Message:       fmt.Sprintf("%s: %s (due %s)", cls.Label, d.TriggerDescription, d.DeadlineAt.Format(time.RFC3339)),
		DaysRemaining: cls.DaysRemaining,
		Details: map[string]any{
			"clause_id":           d.ClauseID,
			"trigger_event_type":  d.TriggerEventType,
			"status":              d.Status,
			"estimated_value_usd": d.EstimatedValueUSD,
		},
		Timestamp: time.Now().UTC(),
	}
}

// SendAll delivers alerts for every escalation and returns the deadline ids
// that were successfully alerted, so the caller can stamp cooldowns.
func (a *Alerter) SendAll(ctx context.Context, escalations []deadline.Escalation) []string {
	log := zap.L().With(zap.String("component", "alert"))
	var alerted []string
	for _, esc := range escalations {
		alert := a.Build(esc)

		// In-app channel: the log stream the dashboard tails.
		log.Warn("deadline escalation",
			zap.String("deadline_id", alert.DeadlineID),
			zap.String("project_id", alert.ProjectID),
			zap.String("severity", alert.Severity),
			zap.Int("days_remaining", alert.DaysRemaining),
			zap.String("message", alert.Message),
		)

		if hasChannel(esc.Classification.Channels, deadline.ChannelWebhook) && a.cfg.WebhookURL != "" {
			if err := a.sendWebhook(ctx, alert); err != nil {
				log.Error("alert webhook failed",
					zap.String("deadline_id", alert.DeadlineID),
					zap.Error(err),
				)
				continue
			}
		}
		alerted = append(alerted, alert.DeadlineID)
	}
	return alerted
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "alert: marshal payload")
	}

	return resilience.Do(ctx, a.retry, "alert-webhook", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "alert: create webhook request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "alert: webhook request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 400 {
			err := eris.Errorf("alert: webhook returned status %d", resp.StatusCode)
			if resilience.RetryableStatus(resp.StatusCode) {
				return resilience.MarkTransient(err, resp.StatusCode)
			}
			return err
		}
		return nil
	})
}

func hasChannel(channels []deadline.AlertChannel, want deadline.AlertChannel) bool {
	for _, c := range channels {
		if c == want {
			return true
		}
	}
	return false
}
