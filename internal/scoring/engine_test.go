package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store/storetest"
)

func newTestEngine(t *testing.T) (*Engine, *storetest.Mem, *clock.Fixed) {
	t.Helper()
	st := storetest.NewMem()
	clk := &clock.Fixed{T: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewEngine(st, clk, Options{}), st, clk
}

func boolPtr(b bool) *bool { return &b }

// resolvedNotice seeds one notice with a known status, outcome, and order.
func resolvedNotice(t *testing.T, st *storetest.Mem, status model.NoticeStatus, onTime *bool, sentAt time.Time) {
	t.Helper()
	at := sentAt
	_, err := st.InsertNotice(context.Background(), &model.ComplianceNotice{
		ProjectID: "proj-1",
		Type:      model.NoticeClaim,
		Status:    status,
		SentAt:    &at,
		DueAt:     at.AddDate(0, 0, 7),
		OnTime:    onTime,
	}, nil, nil)
	require.NoError(t, err)
}

func TestScore_EmptyProject(t *testing.T) {
	e, _, _ := newTestEngine(t)

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 100, score.Score)
	assert.Equal(t, "no notices tracked yet", score.Verdict)
	assert.Equal(t, 0, score.TotalNotices)
	assert.Equal(t, 0, score.CurrentStreak)
	assert.Equal(t, 0.0, score.ProtectedValueUSD)
}

func TestScore_RoundsAndVerdicts(t *testing.T) {
	e, st, clk := newTestEngine(t)
	base := clk.T.AddDate(0, 0, -30)

	// 2 on-time of 3 resolved: 66.67 rounds to 67, verdict poor.
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base.AddDate(0, 0, 1))
	resolvedNotice(t, st, model.NoticeExpired, nil, base.AddDate(0, 0, 2))

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 67, score.Score)
	assert.Equal(t, "poor", score.Verdict)
	assert.Equal(t, 3, score.TotalNotices)
	assert.Equal(t, 2, score.OnTimeCount)
	assert.Equal(t, 1, score.MissedCount)
}

func TestScore_SentCountsInTotal(t *testing.T) {
	e, st, clk := newTestEngine(t)
	base := clk.T.AddDate(0, 0, -10)

	// One acknowledged on-time plus one still awaiting delivery
	// confirmation: the in-flight notice counts in the denominator.
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base)
	resolvedNotice(t, st, model.NoticeSent, nil, base.AddDate(0, 0, 1))

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 2, score.TotalNotices)
	assert.Equal(t, 1, score.OnTimeCount)
	assert.Equal(t, 0, score.MissedCount)
	assert.Equal(t, 50, score.Score)
	assert.Equal(t, "critical", score.Verdict)
}

func TestScore_FailedNoticesOutsideScoredSet(t *testing.T) {
	e, st, clk := newTestEngine(t)
	base := clk.T.AddDate(0, 0, -10)

	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base)
	resolvedNotice(t, st, model.NoticeFailed, nil, base.AddDate(0, 0, 1))

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, score.TotalNotices)
	assert.Equal(t, 100, score.Score)
}

func TestScore_Streaks(t *testing.T) {
	e, st, clk := newTestEngine(t)
	base := clk.T.AddDate(0, 0, -30)

	// on-time, on-time, missed, on-time: best run is 2, current is 1.
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base.AddDate(0, 0, 1))
	resolvedNotice(t, st, model.NoticeExpired, nil, base.AddDate(0, 0, 2))
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base.AddDate(0, 0, 3))

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, score.CurrentStreak)
	assert.Equal(t, 2, score.BestStreak)
}

func TestScore_ProtectedValueFallback(t *testing.T) {
	e, st, _ := newTestEngine(t)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))

	// No completed deadlines carry values, so the flat estimate applies.
	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, float64(2*DefaultFallbackClaimUSD), score.ProtectedValueUSD)
	assert.True(t, score.ProtectedValueEstimated)
}

func TestScore_ProtectedValueMeasured(t *testing.T) {
	e, st, clk := newTestEngine(t)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), clk.T.AddDate(0, 0, -10))

	_, err := st.InsertDeadline(context.Background(), &model.ComplianceDeadline{
		ProjectID:         "proj-1",
		ClauseID:          "clause-1",
		TriggerEventType:  "change_order",
		Status:            model.DeadlineCompleted,
		Severity:          model.SeverityLow,
		DeadlineAt:        clk.T.AddDate(0, 0, -3),
		EstimatedValueUSD: 82000,
	}, nil)
	require.NoError(t, err)

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 82000.0, score.ProtectedValueUSD)
	assert.False(t, score.ProtectedValueEstimated)
}

func TestScore_AtRiskValue(t *testing.T) {
	e, st, clk := newTestEngine(t)

	// CRITICAL with a measured value, WARNING without one (fallback applies),
	// and a waived CRITICAL that must not count.
	for _, d := range []*model.ComplianceDeadline{
		{ProjectID: "proj-1", ClauseID: "c1", TriggerEventType: "t", Status: model.DeadlineActive,
			Severity: model.SeverityCritical, DeadlineAt: clk.T.AddDate(0, 0, 2), EstimatedValueUSD: 60000},
		{ProjectID: "proj-1", ClauseID: "c2", TriggerEventType: "t", Status: model.DeadlineActive,
			Severity: model.SeverityWarning, DeadlineAt: clk.T.AddDate(0, 0, 6)},
		{ProjectID: "proj-1", ClauseID: "c3", TriggerEventType: "t", Status: model.DeadlineWaived,
			Severity: model.SeverityCritical, DeadlineAt: clk.T.AddDate(0, 0, 1), EstimatedValueUSD: 99000},
	} {
		_, err := st.InsertDeadline(context.Background(), d, nil)
		require.NoError(t, err)
	}

	score, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)

	assert.Equal(t, 60000.0+DefaultFallbackClaimUSD, score.AtRiskValueUSD)
}

func TestScore_CacheWindow(t *testing.T) {
	e, st, clk := newTestEngine(t)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), clk.T.AddDate(0, 0, -5))

	first, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)
	require.Equal(t, 100, first.Score)

	// A miss lands, but the cache still answers inside the window.
	resolvedNotice(t, st, model.NoticeExpired, nil, clk.T.AddDate(0, 0, -1))
	clk.Advance(30 * time.Minute)

	cached, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)
	assert.Equal(t, 100, cached.Score)
	assert.Equal(t, first.ComputedAt, cached.ComputedAt)

	// Past the TTL the score is recomputed.
	clk.Advance(31 * time.Minute)
	fresh, err := e.Score(context.Background(), "proj-1", false)
	require.NoError(t, err)
	assert.Equal(t, 50, fresh.Score)

	// force bypasses a fresh cache too.
	resolvedNotice(t, st, model.NoticeExpired, nil, clk.T)
	forced, err := e.Score(context.Background(), "proj-1", true)
	require.NoError(t, err)
	assert.Equal(t, 33, forced.Score)
}

func TestHealth_Component(t *testing.T) {
	e, st, clk := newTestEngine(t)
	base := clk.T.AddDate(0, 0, -10)
	resolvedNotice(t, st, model.NoticeAcknowledged, boolPtr(true), base)
	resolvedNotice(t, st, model.NoticeExpired, nil, base.AddDate(0, 0, 1))

	h, err := e.Health(context.Background(), "proj-1")
	require.NoError(t, err)

	assert.Equal(t, 50, h.Score)
	assert.Equal(t, 0.2, h.Weight)
	assert.Equal(t, "critical", h.Status)
	assert.Equal(t, 1, h.Details["missed_count"])
}

func TestHealthStatusTiers(t *testing.T) {
	assert.Equal(t, "good", healthStatus(90))
	assert.Equal(t, "warning", healthStatus(75))
	assert.Equal(t, "warning", healthStatus(89))
	assert.Equal(t, "critical", healthStatus(74))
}

func TestVerdictTiers(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{100, "excellent"},
		{97, "strong"},
		{92, "good"},
		{85, "fair"},
		{70, "poor"},
		{40, "critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, verdict(tt.pct))
	}
}
