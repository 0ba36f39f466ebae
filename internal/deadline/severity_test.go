package deadline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/compliance-cli/internal/model"
)

func TestClassify_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		deadline time.Time
		want     model.Severity
		wantDays int
	}{
		{"one hour past due", now.Add(-time.Hour), model.SeverityExpired, -1},
		{"just expired by a day", now.AddDate(0, 0, -1), model.SeverityExpired, -1},
		{"due this instant", now, model.SeverityCritical, 0},
		{"due in 3 days", now.AddDate(0, 0, 3), model.SeverityCritical, 3},
		{"due in 4 days", now.AddDate(0, 0, 4), model.SeverityWarning, 4},
		{"due in 7 days", now.AddDate(0, 0, 7), model.SeverityWarning, 7},
		{"due in 8 days", now.AddDate(0, 0, 8), model.SeverityInfo, 8},
		{"due in 14 days", now.AddDate(0, 0, 14), model.SeverityInfo, 14},
		{"due in 15 days", now.AddDate(0, 0, 15), model.SeverityLow, 15},
		{"partial day rounds down", now.Add(85 * time.Hour), model.SeverityCritical, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.deadline, now)
			assert.Equal(t, tt.want, got.Severity)
			assert.Equal(t, tt.wantDays, got.DaysRemaining)
		})
	}
}

func TestClassify_ChannelsAndEscalation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	expired := Classify(now.AddDate(0, 0, -2), now)
	assert.True(t, expired.Escalate)
	assert.Len(t, expired.Channels, 3)

	critical := Classify(now.AddDate(0, 0, 2), now)
	assert.False(t, critical.Escalate)
	assert.Len(t, critical.Channels, 3)

	info := Classify(now.AddDate(0, 0, 10), now)
	assert.Equal(t, []AlertChannel{ChannelInApp}, info.Channels)

	low := Classify(now.AddDate(0, 0, 30), now)
	assert.Empty(t, low.Channels)
}

func TestShouldAlert(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cooldown := 24 * time.Hour
	recent := now.Add(-time.Hour)
	stale := now.Add(-25 * time.Hour)
	exact := now.Add(-24 * time.Hour)

	tests := []struct {
		name string
		sev  model.Severity
		last *time.Time
		want bool
	}{
		{"expired always alerts", model.SeverityExpired, &recent, true},
		{"critical first alert", model.SeverityCritical, nil, true},
		{"critical inside cooldown", model.SeverityCritical, &recent, false},
		{"critical past cooldown", model.SeverityCritical, &stale, true},
		{"critical at exact cooldown", model.SeverityCritical, &exact, true},
		{"warning inside cooldown", model.SeverityWarning, &recent, false},
		{"warning past cooldown", model.SeverityWarning, &stale, true},
		{"info never alerts", model.SeverityInfo, nil, false},
		{"low never alerts", model.SeverityLow, &stale, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldAlert(tt.sev, tt.last, now, cooldown))
		})
	}
}
