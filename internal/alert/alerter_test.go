package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compliance-cli/internal/config"
	"github.com/sells-group/compliance-cli/internal/deadline"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/resilience"
)

func testEscalation(severity model.Severity, days int) deadline.Escalation {
	return deadline.Escalation{
		Deadline: model.ComplianceDeadline{
			ID:                 "deadline-1",
			ProjectID:          "proj-1",
			ClauseID:           "clause-1",
			TriggerEventType:   "change_order",
			TriggerDescription: "CO-042 differing site conditions",
			DeadlineAt:         time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC),
			Status:             model.DeadlineActive,
			Severity:           severity,
			EstimatedValueUSD:  48000,
		},
		Classification: deadline.Classify(
			time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 15, 17, 0, 0, 0, time.UTC).AddDate(0, 0, -days),
		),
	}
}

func TestAlerter_Build(t *testing.T) {
	a := NewAlerter(config.AlertConfig{})
	esc := testEscalation(model.SeverityCritical, 2)

	alert := a.Build(esc)
	assert.Equal(t, "deadline-1", alert.DeadlineID)
	assert.Equal(t, "proj-1", alert.ProjectID)
	assert.Equal(t, string(model.SeverityCritical), alert.Severity)
	assert.Equal(t, 2, alert.DaysRemaining)
	assert.Contains(t, alert.Message, "CO-042")
	assert.Contains(t, alert.Message, "2026-03-15T17:00:00Z")
	assert.Equal(t, "clause-1", alert.Details["clause_id"])
}

func TestAlerter_SendAll_PostsWebhook(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		received = append(received, a)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewAlerter(config.AlertConfig{WebhookURL: srv.URL})
	alerted := a.SendAll(context.Background(), []deadline.Escalation{
		testEscalation(model.SeverityCritical, 2),
	})

	assert.Equal(t, []string{"deadline-1"}, alerted)
	require.Len(t, received, 1)
	assert.Equal(t, "deadline-1", received[0].DeadlineID)
}

func TestAlerter_SendAll_WebhookFailureSkipsCooldown(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.AlertConfig{WebhookURL: srv.URL})
	a.retry = resilience.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	alerted := a.SendAll(context.Background(), []deadline.Escalation{
		testEscalation(model.SeverityExpired, -1),
	})

	// 500s are retried, then the failed deadline stays unstamped so the
	// next sweep picks it up again.
	assert.Equal(t, 2, attempts)
	assert.Empty(t, alerted)
}

func TestAlerter_SendAll_NoWebhookConfigured(t *testing.T) {
	a := NewAlerter(config.AlertConfig{})
	alerted := a.SendAll(context.Background(), []deadline.Escalation{
		testEscalation(model.SeverityWarning, 5),
	})

	// In-app logging alone still counts as alerted.
	assert.Equal(t, []string{"deadline-1"}, alerted)
}
