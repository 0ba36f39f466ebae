package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/compliance-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suited to single-user
// and development setups; Postgres is the production driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS clauses (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	kind                TEXT NOT NULL,
	section             TEXT NOT NULL DEFAULT '',
	trigger_description TEXT NOT NULL DEFAULT '',
	deadline_days       INTEGER,
	deadline_type       TEXT NOT NULL DEFAULT '',
	cure_days           INTEGER,
	cure_type           TEXT NOT NULL DEFAULT '',
	notice_method       TEXT NOT NULL DEFAULT '',
	requires_review     INTEGER NOT NULL DEFAULT 0,
	confirmed           INTEGER NOT NULL DEFAULT 0,
	confirmed_by        TEXT NOT NULL DEFAULT '',
	confirmed_at        DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clauses_project ON clauses(project_id);

CREATE TABLE IF NOT EXISTS deadlines (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	clause_id           TEXT NOT NULL REFERENCES clauses(id),
	trigger_event_type  TEXT NOT NULL,
	trigger_event_id    TEXT NOT NULL DEFAULT '',
	trigger_description TEXT NOT NULL DEFAULT '',
	triggered_at        DATETIME NOT NULL,
	triggered_by        TEXT NOT NULL DEFAULT '',
	deadline_at         DATETIME NOT NULL,
	severity            TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'ACTIVE',
	notice_id           TEXT,
	waiver_reason       TEXT NOT NULL DEFAULT '',
	waived_by           TEXT NOT NULL DEFAULT '',
	waived_at           DATETIME,
	last_alert_at       DATETIME,
	estimated_value_usd REAL NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deadlines_project ON deadlines(project_id);
CREATE INDEX IF NOT EXISTS idx_deadlines_status ON deadlines(status);

CREATE UNIQUE INDEX IF NOT EXISTS idx_deadlines_open_trigger
	ON deadlines(clause_id, trigger_event_id)
	WHERE status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED') AND trigger_event_id <> '';

CREATE TABLE IF NOT EXISTS notices (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	deadline_id     TEXT REFERENCES deadlines(id),
	type            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'DRAFT',
	recipient_name  TEXT NOT NULL DEFAULT '',
	recipient_email TEXT NOT NULL DEFAULT '',
	channels        TEXT NOT NULL DEFAULT '[]',
	content         TEXT NOT NULL DEFAULT '',
	ai_generated    INTEGER NOT NULL DEFAULT 0,
	due_at          DATETIME NOT NULL,
	sent_at         DATETIME,
	delivered_at    DATETIME,
	on_time         INTEGER,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notices_project ON notices(project_id);
CREATE INDEX IF NOT EXISTS idx_notices_status ON notices(status);

CREATE TABLE IF NOT EXISTS score_cache (
	project_id  TEXT PRIMARY KEY,
	score       TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS score_snapshots (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	date        DATETIME NOT NULL,
	granularity TEXT NOT NULL,
	score       TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	UNIQUE (project_id, date, granularity)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id   TEXT NOT NULL DEFAULT '',
	actor_type  TEXT NOT NULL DEFAULT 'system',
	actor       TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	details     TEXT,
	ts          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_project_ts ON audit_log(project_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlExecer covers *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- clauses ----

func (s *SQLiteStore) CreateClause(ctx context.Context, c *model.ContractClause) (*model.ContractClause, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clauses (`+clauseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, string(c.Kind), c.Section, c.TriggerDescription,
		c.DeadlineDays, string(c.DeadlineType), c.CureDays, string(c.CureType),
		string(c.NoticeMethod), c.RequiresReview, c.Confirmed, c.ConfirmedBy, c.ConfirmedAt,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert clause")
	}
	return c, nil
}

func (s *SQLiteStore) GetClause(ctx context.Context, id string) (*model.ContractClause, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clauseColumns+` FROM clauses WHERE id = ?`, id)
	c, err := scanClause(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrClauseNotFound, "sqlite: %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get clause %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListClauses(ctx context.Context, projectID string) ([]model.ContractClause, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clauseColumns+` FROM clauses WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clauses")
	}
	defer rows.Close()

	var clauses []model.ContractClause
	for rows.Next() {
		c, err := scanClause(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clause")
		}
		clauses = append(clauses, *c)
	}
	return clauses, rows.Err()
}

func (s *SQLiteStore) ConfirmClause(ctx context.Context, id, actor string, updates *model.ContractClause) (*model.ContractClause, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE clauses SET
			deadline_days = ?, deadline_type = ?, cure_days = ?, cure_type = ?,
			notice_method = ?, confirmed = 1, confirmed_by = ?, confirmed_at = ?, updated_at = ?
		WHERE id = ?`,
		updates.DeadlineDays, string(updates.DeadlineType), updates.CureDays, string(updates.CureType),
		string(updates.NoticeMethod), actor, now, now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: confirm clause %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, eris.Wrapf(model.ErrClauseNotFound, "sqlite: %s", id)
	}
	return s.GetClause(ctx, id)
}

// ---- deadlines ----

func (s *SQLiteStore) InsertDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) (*model.ComplianceDeadline, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert deadline")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deadlines (`+deadlineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.ClauseID, d.TriggerEventType, d.TriggerEventID, d.TriggerDescription,
		d.TriggeredAt, d.TriggeredBy, d.DeadlineAt, string(d.Severity), string(d.Status),
		d.NoticeID, d.WaiverReason, d.WaivedBy, d.WaivedAt, d.LastAlertAt, d.EstimatedValueUSD,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, eris.Wrapf(model.ErrDuplicateTrigger, "sqlite: clause %s event %s", d.ClauseID, d.TriggerEventID)
		}
		return nil, eris.Wrap(err, "sqlite: insert deadline")
	}

	if audit != nil {
		audit.EntityID = d.ID
		if err := sqliteAppendAudit(ctx, tx, audit); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert deadline")
	}
	return d, nil
}

func (s *SQLiteStore) GetDeadline(ctx context.Context, id string) (*model.ComplianceDeadline, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deadlineColumns+` FROM deadlines WHERE id = ?`, id)
	d, err := scanDeadline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrDeadlineNotFound, "sqlite: %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get deadline %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) FindOpenDeadline(ctx context.Context, clauseID, triggerEventID string) (*model.ComplianceDeadline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		WHERE clause_id = ? AND trigger_event_id = ?
			AND status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED')
		LIMIT 1`,
		clauseID, triggerEventID,
	)
	d, err := scanDeadline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find open deadline")
	}
	return d, nil
}

func (s *SQLiteStore) ListDeadlines(ctx context.Context, filter DeadlineFilter) ([]model.ComplianceDeadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM deadlines WHERE 1=1`
	args := []any{}

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if len(filter.Severities) > 0 {
		query += ` AND severity IN (?` + strings.Repeat(", ?", len(filter.Severities)-1) + `)`
		for _, sev := range filter.Severities {
			args = append(args, string(sev))
		}
	}
	query += ` ORDER BY deadline_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deadlines")
	}
	defer rows.Close()
	return collectSQLiteDeadlines(rows)
}

func (s *SQLiteStore) ListOpenDeadlines(ctx context.Context) ([]model.ComplianceDeadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		WHERE status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED')
		ORDER BY deadline_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list open deadlines")
	}
	defer rows.Close()
	return collectSQLiteDeadlines(rows)
}

func (s *SQLiteStore) UpdateDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update deadline")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := sqliteUpdateDeadline(ctx, tx, d); err != nil {
		return err
	}
	if audit != nil {
		if err := sqliteAppendAudit(ctx, tx, audit); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update deadline")
}

func (s *SQLiteStore) TouchDeadlineAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deadlines SET last_alert_at = ?, updated_at = ? WHERE id = ?`, at.UTC(), at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch deadline alert %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(model.ErrDeadlineNotFound, "sqlite: %s", id)
	}
	return nil
}

// ---- notices ----

func (s *SQLiteStore) InsertNotice(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) (*model.ComplianceNotice, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal channels")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert notice")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notices (`+noticeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.ProjectID, n.DeadlineID, string(n.Type), string(n.Status),
		n.RecipientName, n.RecipientEmail, string(channelsJSON), n.Content, n.AIGenerated,
		n.DueAt, n.SentAt, n.DeliveredAt, n.OnTime, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert notice")
	}

	if d != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE deadlines SET notice_id = ?, status = ?, updated_at = ?
			WHERE id = ? AND notice_id IS NULL`,
			n.ID, string(d.Status), now, d.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: link deadline %s", d.ID)
		}
		if cnt, _ := res.RowsAffected(); cnt == 0 {
			return nil, eris.Wrapf(model.ErrAlreadyLinked, "sqlite: deadline %s", d.ID)
		}
		d.NoticeID = &n.ID
	}

	for i := range audits {
		if audits[i].EntityType == model.EntityNotice && audits[i].EntityID == "" {
			audits[i].EntityID = n.ID
		}
		if err := sqliteAppendAudit(ctx, tx, &audits[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert notice")
	}
	return n, nil
}

func (s *SQLiteStore) GetNotice(ctx context.Context, id string) (*model.ComplianceNotice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id = ?`, id)
	n, err := scanNotice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrNoticeNotFound, "sqlite: %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get notice %s", id)
	}
	return n, nil
}

func (s *SQLiteStore) ListNotices(ctx context.Context, filter NoticeFilter) ([]model.ComplianceNotice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE 1=1`
	args := []any{}

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list notices")
	}
	defer rows.Close()

	var notices []model.ComplianceNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan notice")
		}
		notices = append(notices, *n)
	}
	return notices, rows.Err()
}

func (s *SQLiteStore) UpdateNotice(ctx context.Context, n *model.ComplianceNotice, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update notice")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := sqliteUpdateNotice(ctx, tx, n); err != nil {
		return err
	}
	if audit != nil {
		if err := sqliteAppendAudit(ctx, tx, audit); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update notice")
}

func (s *SQLiteStore) UpdateNoticeAndDeadline(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update notice+deadline")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := sqliteUpdateNotice(ctx, tx, n); err != nil {
		return err
	}
	if d != nil {
		if err := sqliteUpdateDeadline(ctx, tx, d); err != nil {
			return err
		}
	}
	for i := range audits {
		if err := sqliteAppendAudit(ctx, tx, &audits[i]); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update notice+deadline")
}

func (s *SQLiteStore) DeleteNotice(ctx context.Context, noticeID string, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete notice")
	}
	defer tx.Rollback() //nolint:errcheck

	if d != nil {
		if err := sqliteUpdateDeadline(ctx, tx, d); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notices WHERE id = ?`, noticeID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete notice %s", noticeID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(model.ErrNoticeNotFound, "sqlite: %s", noticeID)
	}
	for i := range audits {
		if err := sqliteAppendAudit(ctx, tx, &audits[i]); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete notice")
}

// ---- scores ----

func (s *SQLiteStore) GetScoreCache(ctx context.Context, projectID string) (*model.ComplianceScore, error) {
	var scoreJSON string
	var computedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT score, computed_at FROM score_cache WHERE project_id = ?`, projectID,
	).Scan(&scoreJSON, &computedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get score cache")
	}
	var score model.ComplianceScore
	if err := json.Unmarshal([]byte(scoreJSON), &score); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached score")
	}
	score.ComputedAt = computedAt
	return &score, nil
}

func (s *SQLiteStore) SaveScoreCache(ctx context.Context, score *model.ComplianceScore) error {
	scoreJSON, err := json.Marshal(score)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal score")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_cache (project_id, score, computed_at) VALUES (?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET score = excluded.score, computed_at = excluded.computed_at`,
		score.ProjectID, string(scoreJSON), score.ComputedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save score cache")
}

func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	scoreJSON, err := json.Marshal(snap.Score)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot score")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_snapshots (id, project_id, date, granularity, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, date, granularity)
		DO UPDATE SET score = excluded.score, created_at = excluded.created_at`,
		snap.ID, snap.ProjectID, snap.Date.UTC(), string(snap.Granularity), string(scoreJSON), snap.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert snapshot")
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, projectID string, g model.Granularity, limit int) ([]model.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, date, granularity, score, created_at FROM (
			SELECT id, project_id, date, granularity, score, created_at
			FROM score_snapshots WHERE project_id = ? AND granularity = ?
			ORDER BY date DESC LIMIT ?
		) ORDER BY date`,
		projectID, string(g), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var snaps []model.ScoreSnapshot
	for rows.Next() {
		var snap model.ScoreSnapshot
		var scoreJSON, gran string
		if err := rows.Scan(&snap.ID, &snap.ProjectID, &snap.Date, &gran, &scoreJSON, &snap.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		snap.Granularity = model.Granularity(gran)
		if err := json.Unmarshal([]byte(scoreJSON), &snap.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal snapshot score")
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT project_id FROM deadlines ORDER BY project_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list project ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- audit ----

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	return sqliteAppendAudit(ctx, s.db, e)
}

func sqliteAppendAudit(ctx context.Context, q sqlExecer, e *model.AuditLogEntry) error {
	var detailsJSON any
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit details")
		}
		detailsJSON = string(b)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO audit_log (project_id, event_type, entity_type, entity_id, actor_type, actor, action, details, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.EventType, e.EntityType, e.EntityID,
		string(e.ActorType), e.Actor, e.Action, detailsJSON, e.Timestamp.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: append audit")
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, projectID, entityType, entityID string, limit int) ([]model.AuditLogEntry, error) {
	query := `SELECT id, project_id, event_type, entity_type, entity_id, actor_type, actor, action, details, ts FROM audit_log WHERE 1=1`
	args := []any{}

	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var actorType string
		var detailsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EventType, &e.EntityType, &e.EntityID,
			&actorType, &e.Actor, &e.Action, &detailsJSON, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		e.ActorType = model.ActorType(actorType)
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---- row helpers ----

func sqliteUpdateDeadline(ctx context.Context, q sqlExecer, d *model.ComplianceDeadline) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := q.ExecContext(ctx,
		`UPDATE deadlines SET
			severity = ?, status = ?, notice_id = ?,
			waiver_reason = ?, waived_by = ?, waived_at = ?,
			last_alert_at = ?, estimated_value_usd = ?, updated_at = ?
		WHERE id = ?`,
		string(d.Severity), string(d.Status), d.NoticeID,
		d.WaiverReason, d.WaivedBy, d.WaivedAt,
		d.LastAlertAt, d.EstimatedValueUSD, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update deadline %s", d.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(model.ErrDeadlineNotFound, "sqlite: %s", d.ID)
	}
	return nil
}

func sqliteUpdateNotice(ctx context.Context, q sqlExecer, n *model.ComplianceNotice) error {
	n.UpdatedAt = time.Now().UTC()
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal channels")
	}
	res, err := q.ExecContext(ctx,
		`UPDATE notices SET
			status = ?, channels = ?, content = ?, ai_generated = ?,
			sent_at = ?, delivered_at = ?, on_time = ?, updated_at = ?
		WHERE id = ?`,
		string(n.Status), string(channelsJSON), n.Content, n.AIGenerated,
		n.SentAt, n.DeliveredAt, n.OnTime, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update notice %s", n.ID)
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return eris.Wrapf(model.ErrNoticeNotFound, "sqlite: %s", n.ID)
	}
	return nil
}

func collectSQLiteDeadlines(rows *sql.Rows) ([]model.ComplianceDeadline, error) {
	var deadlines []model.ComplianceDeadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deadline")
		}
		deadlines = append(deadlines, *d)
	}
	return deadlines, rows.Err()
}
