package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compliance-cli/internal/clock"
	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store/storetest"
)

func newTestService(t *testing.T, start time.Time) (*Service, *storetest.Mem, *clock.Fixed) {
	t.Helper()
	st := storetest.NewMem()
	clk := &clock.Fixed{T: start}
	svc := NewService(st, clk, Options{})
	return svc, st, clk
}

func confirmedClause(t *testing.T, st *storetest.Mem, days int) *model.ContractClause {
	t.Helper()
	c, err := st.CreateClause(context.Background(), &model.ContractClause{
		ProjectID:    "proj-1",
		Kind:         model.ClauseClaimsProcedure,
		Section:      "4.3.1",
		DeadlineDays: intPtr(days),
		DeadlineType: model.DeadlineCalendarDays,
		NoticeMethod: model.MethodCertifiedMail,
		Confirmed:    true,
	})
	require.NoError(t, err)
	return c
}

func TestNotifyTrigger_CreatesDeadline(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, start)
	clause := confirmedClause(t, st, 21)

	d, err := svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID:          "proj-1",
		ClauseID:           clause.ID,
		TriggerEventType:   "change_order",
		TriggerEventID:     "co-042",
		TriggerDescription: "CO-042 differing site conditions",
		TriggeredBy:        "pm@example.com",
		EstimatedValueUSD:  48000,
	})
	require.NoError(t, err)

	assert.Equal(t, start.AddDate(0, 0, 21), d.DeadlineAt)
	assert.Equal(t, model.DeadlineActive, d.Status)
	assert.Equal(t, model.SeverityLow, d.Severity)
	assert.Equal(t, 48000.0, d.EstimatedValueUSD)

	entries := st.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "deadline_created", entries[0].EventType)
	assert.Equal(t, d.ID, entries[0].EntityID)
	assert.Equal(t, model.ActorUser, entries[0].ActorType)
}

func TestNotifyTrigger_UnconfirmedClause(t *testing.T) {
	svc, st, _ := newTestService(t, time.Now().UTC())
	c, err := st.CreateClause(context.Background(), &model.ContractClause{
		ProjectID:    "proj-1",
		DeadlineDays: intPtr(7),
		DeadlineType: model.DeadlineCalendarDays,
	})
	require.NoError(t, err)

	_, err = svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID: "proj-1",
		ClauseID:  c.ID,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidClauseConfiguration))
}

func TestNotifyTrigger_Idempotent(t *testing.T) {
	svc, st, _ := newTestService(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	clause := confirmedClause(t, st, 21)

	req := TriggerRequest{
		ProjectID:        "proj-1",
		ClauseID:         clause.ID,
		TriggerEventType: "change_order",
		TriggerEventID:   "co-042",
	}
	first, err := svc.NotifyTrigger(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.NotifyTrigger(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// Only the first delivery leaves an audit entry.
	assert.Len(t, st.AuditEntries(), 1)
}

func TestNotifyTrigger_NewDeadlineAfterTerminal(t *testing.T) {
	svc, st, _ := newTestService(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	clause := confirmedClause(t, st, 21)

	req := TriggerRequest{
		ProjectID:        "proj-1",
		ClauseID:         clause.ID,
		TriggerEventType: "change_order",
		TriggerEventID:   "co-042",
	}
	first, err := svc.NotifyTrigger(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Waive(context.Background(), first.ID, "resolved by bilateral agreement", "pm@example.com")
	require.NoError(t, err)

	// A terminal deadline no longer blocks the trigger event.
	second, err := svc.NotifyTrigger(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestWaive_RequiresReasonAndActor(t *testing.T) {
	svc, _, _ := newTestService(t, time.Now().UTC())

	_, err := svc.Waive(context.Background(), "deadline-1", "", "pm@example.com")
	require.Error(t, err)

	_, err = svc.Waive(context.Background(), "deadline-1", "handled offline", "")
	require.Error(t, err)
}

func TestWaive_InvalidFromTerminal(t *testing.T) {
	svc, st, _ := newTestService(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	clause := confirmedClause(t, st, 21)

	d, err := svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID: "proj-1", ClauseID: clause.ID, TriggerEventType: "delay",
	})
	require.NoError(t, err)

	_, err = svc.Waive(context.Background(), d.ID, "first waiver", "pm@example.com")
	require.NoError(t, err)

	_, err = svc.Waive(context.Background(), d.ID, "second waiver", "pm@example.com")
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidTransition))
}

func TestReEvaluateAll_SeverityDriftAndExpiry(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc, st, clk := newTestService(t, start)
	clause := confirmedClause(t, st, 21)

	d, err := svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID: "proj-1", ClauseID: clause.ID, TriggerEventType: "claim_event",
	})
	require.NoError(t, err)
	require.Equal(t, model.SeverityLow, d.Severity)

	// No elapsed time: the sweep is a no-op.
	res, err := svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 0, res.SeverityChanges)
	assert.Empty(t, res.Escalations)

	// 19 days in: 2 days remaining, CRITICAL, escalation due.
	clk.Advance(19 * 24 * time.Hour)
	res, err = svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SeverityChanges)
	assert.Equal(t, 0, res.Expired)
	require.Len(t, res.Escalations, 1)
	assert.Equal(t, model.SeverityCritical, res.Escalations[0].Classification.Severity)

	// Past the deadline: forced expiry from any non-terminal state.
	clk.Advance(5 * 24 * time.Hour)
	res, err = svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SeverityChanges)
	assert.Equal(t, 1, res.Expired)

	got, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeadlineExpired, got.Status)
	assert.Equal(t, model.SeverityExpired, got.Severity)

	var expiredEvents int
	for _, e := range st.AuditEntries() {
		if e.EventType == "deadline_expired" {
			expiredEvents++
			assert.Equal(t, true, e.Details["claim_forfeiture_risk"])
		}
	}
	assert.Equal(t, 1, expiredEvents)
}

func TestReEvaluateAll_ExpiresBackdatedTrigger(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, start)
	clause := confirmedClause(t, st, 7)

	// A trigger reported 30 days late creates a deadline that is already
	// past due: severity EXPIRED but status still ACTIVE.
	d, err := svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID:        "proj-1",
		ClauseID:         clause.ID,
		TriggerEventType: "claim_event",
		TriggeredAt:      start.AddDate(0, 0, -30),
	})
	require.NoError(t, err)
	require.Equal(t, model.SeverityExpired, d.Severity)
	require.Equal(t, model.DeadlineActive, d.Status)

	// The next sweep must force expiry even though severity never drifted.
	res, err := svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.SeverityChanges)
	assert.Equal(t, 1, res.Expired)

	got, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeadlineExpired, got.Status)

	var expiredEvents int
	for _, e := range st.AuditEntries() {
		if e.EventType == "deadline_expired" {
			expiredEvents++
			assert.Equal(t, true, e.Details["claim_forfeiture_risk"])
			assert.Equal(t, model.DeadlineActive, e.Details["prior_status"])
		}
	}
	assert.Equal(t, 1, expiredEvents)

	// Terminal now; re-running is a no-op.
	res, err = svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)
}

func TestReEvaluateAll_AlertCooldown(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc, st, clk := newTestService(t, start)
	clause := confirmedClause(t, st, 2) // born CRITICAL

	d, err := svc.NotifyTrigger(context.Background(), TriggerRequest{
		ProjectID: "proj-1", ClauseID: clause.ID, TriggerEventType: "defect_notice",
	})
	require.NoError(t, err)

	res, err := svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Escalations, 1)

	require.NoError(t, svc.MarkAlerted(context.Background(), d.ID))

	// One hour later the cooldown suppresses the repeat.
	clk.Advance(time.Hour)
	res, err = svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Escalations)

	// Past the cooldown it fires again.
	clk.Advance(24 * time.Hour)
	res, err = svc.ReEvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Escalations, 1)
}
