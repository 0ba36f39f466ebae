package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compliance-cli/internal/model"
)

// newSQLiteStore opens a migrated store on a throwaway database file.
func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "compliance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSQLiteClause(t *testing.T, s *SQLiteStore) *model.ContractClause {
	t.Helper()
	days := 21
	c, err := s.CreateClause(context.Background(), &model.ContractClause{
		ProjectID:    "proj-1",
		Kind:         model.ClauseClaimsProcedure,
		Section:      "4.3.1",
		DeadlineDays: &days,
		DeadlineType: model.DeadlineCalendarDays,
		NoticeMethod: model.MethodCertifiedMail,
	})
	require.NoError(t, err)
	return c
}

func seedSQLiteDeadline(t *testing.T, s *SQLiteStore, clauseID, eventID string) *model.ComplianceDeadline {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	d, err := s.InsertDeadline(context.Background(), &model.ComplianceDeadline{
		ProjectID:        "proj-1",
		ClauseID:         clauseID,
		TriggerEventType: "change_order",
		TriggerEventID:   eventID,
		TriggeredAt:      now,
		DeadlineAt:       now.AddDate(0, 0, 21),
		Severity:         model.SeverityLow,
		Status:           model.DeadlineActive,
	}, &model.AuditLogEntry{
		ProjectID:  "proj-1",
		EventType:  "deadline_created",
		EntityType: model.EntityDeadline,
		ActorType:  model.ActorSystem,
		Action:     "create",
		Timestamp:  now,
	})
	require.NoError(t, err)
	return d
}

func TestSQLiteStore_ClauseLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)
	require.False(t, c.Confirmed)

	days := 14
	confirmed, err := s.ConfirmClause(context.Background(), c.ID, "pm@example.com", &model.ContractClause{
		DeadlineDays: &days,
		DeadlineType: model.DeadlineBusinessDays,
		NoticeMethod: model.MethodEmail,
	})
	require.NoError(t, err)
	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, "pm@example.com", confirmed.ConfirmedBy)
	require.NotNil(t, confirmed.DeadlineDays)
	assert.Equal(t, 14, *confirmed.DeadlineDays)
	assert.Equal(t, model.DeadlineBusinessDays, confirmed.DeadlineType)

	list, err := s.ListClauses(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetClause(context.Background(), "missing")
	assert.True(t, eris.Is(err, model.ErrClauseNotFound))
}

func TestSQLiteStore_DuplicateOpenTrigger(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)
	d := seedSQLiteDeadline(t, s, c.ID, "co-042")

	_, err := s.InsertDeadline(context.Background(), &model.ComplianceDeadline{
		ProjectID:        "proj-1",
		ClauseID:         c.ID,
		TriggerEventType: "change_order",
		TriggerEventID:   "co-042",
		TriggeredAt:      time.Now().UTC(),
		DeadlineAt:       time.Now().UTC().AddDate(0, 0, 21),
		Severity:         model.SeverityLow,
		Status:           model.DeadlineActive,
	}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrDuplicateTrigger))

	// Closing the first deadline frees the trigger event.
	d.Status = model.DeadlineWaived
	require.NoError(t, s.UpdateDeadline(context.Background(), d, nil))

	_, err = s.InsertDeadline(context.Background(), &model.ComplianceDeadline{
		ProjectID:        "proj-1",
		ClauseID:         c.ID,
		TriggerEventType: "change_order",
		TriggerEventID:   "co-042",
		TriggeredAt:      time.Now().UTC(),
		DeadlineAt:       time.Now().UTC().AddDate(0, 0, 21),
		Severity:         model.SeverityLow,
		Status:           model.DeadlineActive,
	}, nil)
	require.NoError(t, err)
}

func TestSQLiteStore_FindOpenDeadline(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)
	d := seedSQLiteDeadline(t, s, c.ID, "co-042")

	found, err := s.FindOpenDeadline(context.Background(), c.ID, "co-042")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, d.ID, found.ID)

	miss, err := s.FindOpenDeadline(context.Background(), c.ID, "co-999")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestSQLiteStore_NoticeLinkageAndChannels(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)
	d := seedSQLiteDeadline(t, s, c.ID, "co-042")

	d.Status = model.DeadlineNoticeDrafted
	n, err := s.InsertNotice(context.Background(), &model.ComplianceNotice{
		ProjectID:      "proj-1",
		DeadlineID:     &d.ID,
		Type:           model.NoticeClaim,
		Status:         model.NoticeDraft,
		RecipientName:  "GC Corp",
		RecipientEmail: "pm@gc.example",
		Channels:       model.NewChannels([]model.DeliveryKind{model.DeliveryCertifiedMail, model.DeliveryEmail}),
		Content:        "letter body",
		DueAt:          d.DeadlineAt,
	}, d, []model.AuditLogEntry{{
		ProjectID:  "proj-1",
		EventType:  "notice_drafted",
		EntityType: model.EntityNotice,
		ActorType:  model.ActorUser,
		Actor:      "pm@example.com",
		Action:     "draft",
		Timestamp:  time.Now().UTC(),
	}})
	require.NoError(t, err)

	got, err := s.GetNotice(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Len(t, got.Channels, 2)
	assert.Equal(t, model.ChannelPending, got.Channels[0].State)

	linked, err := s.GetDeadline(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.NoticeID)
	assert.Equal(t, n.ID, *linked.NoticeID)
	assert.Equal(t, model.DeadlineNoticeDrafted, linked.Status)

	// A second notice against the same deadline is refused.
	_, err = s.InsertNotice(context.Background(), &model.ComplianceNotice{
		ProjectID: "proj-1",
		Type:      model.NoticeClaim,
		Status:    model.NoticeDraft,
		DueAt:     d.DeadlineAt,
	}, linked, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrAlreadyLinked))

	// The notice-entity audit row was stamped with the minted id.
	entries, err := s.ListAudit(context.Background(), "proj-1", model.EntityNotice, n.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteStore_ScoreCacheRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)

	miss, err := s.GetScoreCache(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	computedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveScoreCache(context.Background(), &model.ComplianceScore{
		ProjectID:    "proj-1",
		Score:        92,
		TotalNotices: 12,
		OnTimeCount:  11,
		MissedCount:  1,
		Verdict:      "good",
		ComputedAt:   computedAt,
	}))

	got, err := s.GetScoreCache(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 92, got.Score)
	assert.Equal(t, "good", got.Verdict)
	assert.True(t, got.ComputedAt.Equal(computedAt))

	// Second save overwrites in place.
	require.NoError(t, s.SaveScoreCache(context.Background(), &model.ComplianceScore{
		ProjectID:  "proj-1",
		Score:      85,
		ComputedAt: computedAt.Add(time.Hour),
	}))
	got, err = s.GetScoreCache(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 85, got.Score)
}

func TestSQLiteStore_SnapshotUpsertAndTrendOrder(t *testing.T) {
	s := newSQLiteStore(t)
	day1 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	for _, snap := range []*model.ScoreSnapshot{
		{ProjectID: "proj-1", Date: day2, Granularity: model.GranularityDaily, Score: model.ComplianceScore{Score: 90}, CreatedAt: day2},
		{ProjectID: "proj-1", Date: day1, Granularity: model.GranularityDaily, Score: model.ComplianceScore{Score: 80}, CreatedAt: day1},
	} {
		require.NoError(t, s.UpsertSnapshot(context.Background(), snap))
	}
	// Re-snapshot of day2 replaces the row.
	require.NoError(t, s.UpsertSnapshot(context.Background(), &model.ScoreSnapshot{
		ProjectID: "proj-1", Date: day2, Granularity: model.GranularityDaily,
		Score: model.ComplianceScore{Score: 95}, CreatedAt: day2.Add(time.Hour),
	}))

	snaps, err := s.ListSnapshots(context.Background(), "proj-1", model.GranularityDaily, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	// Oldest first for chart rendering.
	assert.Equal(t, 80, snaps[0].Score.Score)
	assert.Equal(t, 95, snaps[1].Score.Score)
}

func TestSQLiteStore_TouchDeadlineAlert(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)
	d := seedSQLiteDeadline(t, s, c.ID, "")

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchDeadlineAlert(context.Background(), d.ID, at))

	got, err := s.GetDeadline(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastAlertAt)
	assert.True(t, got.LastAlertAt.Equal(at))

	err = s.TouchDeadlineAlert(context.Background(), "missing", at)
	assert.True(t, eris.Is(err, model.ErrDeadlineNotFound))
}

func TestSQLiteStore_EmptyTriggerEventIDsDoNotCollide(t *testing.T) {
	s := newSQLiteStore(t)
	c := seedSQLiteClause(t, s)

	// Manual triggers carry no event id; the partial unique index must not
	// treat them as duplicates of each other.
	seedSQLiteDeadline(t, s, c.ID, "")
	seedSQLiteDeadline(t, s, c.ID, "")

	open, err := s.ListOpenDeadlines(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 2)
}
