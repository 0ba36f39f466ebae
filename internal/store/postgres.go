package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/compliance-cli/internal/db"
	"github.com/sells-group/compliance-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations (the sweep path).
var preparedStatements = map[string]string{
	"get_deadline":         `SELECT ` + deadlineColumns + ` FROM deadlines WHERE id = $1`,
	"touch_deadline_alert": `UPDATE deadlines SET last_alert_at = $1, updated_at = $1 WHERE id = $2`,
	"get_notice":           `SELECT ` + noticeColumns + ` FROM notices WHERE id = $1`,
	"get_score_cache":      `SELECT score, computed_at FROM score_cache WHERE project_id = $1`,
	"append_audit": `INSERT INTO audit_log (project_id, event_type, entity_type, entity_id, actor_type, actor, action, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS clauses (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id          TEXT NOT NULL,
	kind                TEXT NOT NULL,
	section             TEXT NOT NULL DEFAULT '',
	trigger_description TEXT NOT NULL DEFAULT '',
	deadline_days       INTEGER,
	deadline_type       TEXT NOT NULL DEFAULT '',
	cure_days           INTEGER,
	cure_type           TEXT NOT NULL DEFAULT '',
	notice_method       TEXT NOT NULL DEFAULT '',
	requires_review     BOOLEAN NOT NULL DEFAULT false,
	confirmed           BOOLEAN NOT NULL DEFAULT false,
	confirmed_by        TEXT NOT NULL DEFAULT '',
	confirmed_at        TIMESTAMPTZ,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_clauses_project ON clauses(project_id);

CREATE TABLE IF NOT EXISTS deadlines (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id          TEXT NOT NULL,
	clause_id           TEXT NOT NULL REFERENCES clauses(id),
	trigger_event_type  TEXT NOT NULL,
	trigger_event_id    TEXT NOT NULL DEFAULT '',
	trigger_description TEXT NOT NULL DEFAULT '',
	triggered_at        TIMESTAMPTZ NOT NULL,
	triggered_by        TEXT NOT NULL DEFAULT '',
	deadline_at         TIMESTAMPTZ NOT NULL,
	severity            TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'ACTIVE',
	notice_id           TEXT,
	waiver_reason       TEXT NOT NULL DEFAULT '',
	waived_by           TEXT NOT NULL DEFAULT '',
	waived_at           TIMESTAMPTZ,
	last_alert_at       TIMESTAMPTZ,
	estimated_value_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_deadlines_project ON deadlines(project_id);
CREATE INDEX IF NOT EXISTS idx_deadlines_status ON deadlines(status);
CREATE INDEX IF NOT EXISTS idx_deadlines_severity ON deadlines(severity);

-- At most one open deadline per (clause, trigger event). Terminal rows do
-- not block retriggering.
CREATE UNIQUE INDEX IF NOT EXISTS idx_deadlines_open_trigger
	ON deadlines(clause_id, trigger_event_id)
	WHERE status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED') AND trigger_event_id <> '';

CREATE TABLE IF NOT EXISTS notices (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id      TEXT NOT NULL,
	deadline_id     TEXT REFERENCES deadlines(id),
	type            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'DRAFT',
	recipient_name  TEXT NOT NULL DEFAULT '',
	recipient_email TEXT NOT NULL DEFAULT '',
	channels        JSONB NOT NULL DEFAULT '[]',
	content         TEXT NOT NULL DEFAULT '',
	ai_generated    BOOLEAN NOT NULL DEFAULT false,
	due_at          TIMESTAMPTZ NOT NULL,
	sent_at         TIMESTAMPTZ,
	delivered_at    TIMESTAMPTZ,
	on_time         BOOLEAN,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_notices_project ON notices(project_id);
CREATE INDEX IF NOT EXISTS idx_notices_status ON notices(status);
CREATE INDEX IF NOT EXISTS idx_notices_deadline ON notices(deadline_id);

CREATE TABLE IF NOT EXISTS score_cache (
	project_id  TEXT PRIMARY KEY,
	score       JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS score_snapshots (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	project_id  TEXT NOT NULL,
	date        TIMESTAMPTZ NOT NULL,
	granularity TEXT NOT NULL,
	score       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, date, granularity)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_project ON score_snapshots(project_id, granularity, date DESC);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	project_id  TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id   TEXT NOT NULL DEFAULT '',
	actor_type  TEXT NOT NULL DEFAULT 'system',
	actor       TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL DEFAULT '',
	details     JSONB,
	ts          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_project_ts ON audit_log(project_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`

const deadlineColumns = `id, project_id, clause_id, trigger_event_type, trigger_event_id, trigger_description, triggered_at, triggered_by, deadline_at, severity, status, notice_id, waiver_reason, waived_by, waived_at, last_alert_at, estimated_value_usd, created_at, updated_at`

const noticeColumns = `id, project_id, deadline_id, type, status, recipient_name, recipient_email, channels, content, ai_generated, due_at, sent_at, delivered_at, on_time, created_at, updated_at`

const clauseColumns = `id, project_id, kind, section, trigger_description, deadline_days, deadline_type, cure_days, cure_type, notice_method, requires_review, confirmed, confirmed_by, confirmed_at, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// execer covers both the pool and a transaction for audit writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- clauses ----

func (s *PostgresStore) CreateClause(ctx context.Context, c *model.ContractClause) (*model.ContractClause, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO clauses (`+clauseColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.ProjectID, string(c.Kind), c.Section, c.TriggerDescription,
		c.DeadlineDays, string(c.DeadlineType), c.CureDays, string(c.CureType),
		string(c.NoticeMethod), c.RequiresReview, c.Confirmed, c.ConfirmedBy, c.ConfirmedAt,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert clause")
	}
	return c, nil
}

func (s *PostgresStore) GetClause(ctx context.Context, id string) (*model.ContractClause, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clauseColumns+` FROM clauses WHERE id = $1`, id)
	c, err := scanClause(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrClauseNotFound, "postgres: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get clause %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListClauses(ctx context.Context, projectID string) ([]model.ContractClause, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+clauseColumns+` FROM clauses WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clauses")
	}
	defer rows.Close()

	var clauses []model.ContractClause
	for rows.Next() {
		c, err := scanClause(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan clause")
		}
		clauses = append(clauses, *c)
	}
	return clauses, rows.Err()
}

func (s *PostgresStore) ConfirmClause(ctx context.Context, id, actor string, updates *model.ContractClause) (*model.ContractClause, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE clauses SET
			deadline_days = $1, deadline_type = $2, cure_days = $3, cure_type = $4,
			notice_method = $5, confirmed = true, confirmed_by = $6, confirmed_at = $7, updated_at = $7
		WHERE id = $8`,
		updates.DeadlineDays, string(updates.DeadlineType), updates.CureDays, string(updates.CureType),
		string(updates.NoticeMethod), actor, now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: confirm clause %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(model.ErrClauseNotFound, "postgres: %s", id)
	}
	return s.GetClause(ctx, id)
}

// ---- deadlines ----

func (s *PostgresStore) InsertDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) (*model.ComplianceDeadline, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin insert deadline")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO deadlines (`+deadlineColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		d.ID, d.ProjectID, d.ClauseID, d.TriggerEventType, d.TriggerEventID, d.TriggerDescription,
		d.TriggeredAt, d.TriggeredBy, d.DeadlineAt, string(d.Severity), string(d.Status),
		d.NoticeID, d.WaiverReason, d.WaivedBy, d.WaivedAt, d.LastAlertAt, d.EstimatedValueUSD,
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(model.ErrDuplicateTrigger, "postgres: clause %s event %s", d.ClauseID, d.TriggerEventID)
		}
		return nil, eris.Wrap(err, "postgres: insert deadline")
	}

	if audit != nil {
		audit.EntityID = d.ID
		if err := appendAudit(ctx, tx, audit); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit insert deadline")
	}
	return d, nil
}

func (s *PostgresStore) GetDeadline(ctx context.Context, id string) (*model.ComplianceDeadline, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deadlineColumns+` FROM deadlines WHERE id = $1`, id)
	d, err := scanDeadline(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrDeadlineNotFound, "postgres: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get deadline %s", id)
	}
	return d, nil
}

func (s *PostgresStore) FindOpenDeadline(ctx context.Context, clauseID, triggerEventID string) (*model.ComplianceDeadline, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		WHERE clause_id = $1 AND trigger_event_id = $2
			AND status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED')
		LIMIT 1`,
		clauseID, triggerEventID,
	)
	d, err := scanDeadline(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find open deadline")
	}
	return d, nil
}

func (s *PostgresStore) ListDeadlines(ctx context.Context, filter DeadlineFilter) ([]model.ComplianceDeadline, error) {
	query := `SELECT ` + deadlineColumns + ` FROM deadlines WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			sevs[i] = string(s)
		}
		query += fmt.Sprintf(` AND severity = ANY($%d)`, argIdx)
		args = append(args, sevs)
		argIdx++
	}
	query += ` ORDER BY deadline_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deadlines")
	}
	defer rows.Close()
	return collectDeadlines(rows)
}

func (s *PostgresStore) ListOpenDeadlines(ctx context.Context) ([]model.ComplianceDeadline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		WHERE status NOT IN ('COMPLETED', 'EXPIRED', 'WAIVED')
		ORDER BY deadline_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list open deadlines")
	}
	defer rows.Close()
	return collectDeadlines(rows)
}

func (s *PostgresStore) UpdateDeadline(ctx context.Context, d *model.ComplianceDeadline, audit *model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update deadline")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateDeadline(ctx, tx, d); err != nil {
		return err
	}
	if audit != nil {
		if err := appendAudit(ctx, tx, audit); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update deadline")
}

func (s *PostgresStore) TouchDeadlineAlert(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deadlines SET last_alert_at = $1, updated_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch deadline alert %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrDeadlineNotFound, "postgres: %s", id)
	}
	return nil
}

// ---- notices ----

func (s *PostgresStore) InsertNotice(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) (*model.ComplianceNotice, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal channels")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin insert notice")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO notices (`+noticeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		n.ID, n.ProjectID, n.DeadlineID, string(n.Type), string(n.Status),
		n.RecipientName, n.RecipientEmail, channelsJSON, n.Content, n.AIGenerated,
		n.DueAt, n.SentAt, n.DeliveredAt, n.OnTime, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert notice")
	}

	if d != nil {
		// Guard against a concurrent draft winning the linkage.
		tag, err := tx.Exec(ctx,
			`UPDATE deadlines SET notice_id = $1, status = $2, updated_at = $3
			WHERE id = $4 AND notice_id IS NULL`,
			n.ID, string(d.Status), now, d.ID,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: link deadline %s", d.ID)
		}
		if tag.RowsAffected() == 0 {
			return nil, eris.Wrapf(model.ErrAlreadyLinked, "postgres: deadline %s", d.ID)
		}
		d.NoticeID = &n.ID
	}

	for i := range audits {
		// Notice-entity rows are stamped with the freshly minted id.
		if audits[i].EntityType == model.EntityNotice && audits[i].EntityID == "" {
			audits[i].EntityID = n.ID
		}
		if err := appendAudit(ctx, tx, &audits[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit insert notice")
	}
	return n, nil
}

func (s *PostgresStore) GetNotice(ctx context.Context, id string) (*model.ComplianceNotice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+noticeColumns+` FROM notices WHERE id = $1`, id)
	n, err := scanNotice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrNoticeNotFound, "postgres: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get notice %s", id)
	}
	return n, nil
}

func (s *PostgresStore) ListNotices(ctx context.Context, filter NoticeFilter) ([]model.ComplianceNotice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		sts := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			sts[i] = string(st)
		}
		query += fmt.Sprintf(` AND status = ANY($%d)`, argIdx)
		args = append(args, sts)
		argIdx++
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list notices")
	}
	defer rows.Close()

	var notices []model.ComplianceNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan notice")
		}
		notices = append(notices, *n)
	}
	return notices, rows.Err()
}

func (s *PostgresStore) UpdateNotice(ctx context.Context, n *model.ComplianceNotice, audit *model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update notice")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateNotice(ctx, tx, n); err != nil {
		return err
	}
	if audit != nil {
		if err := appendAudit(ctx, tx, audit); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update notice")
}

func (s *PostgresStore) UpdateNoticeAndDeadline(ctx context.Context, n *model.ComplianceNotice, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update notice+deadline")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := updateNotice(ctx, tx, n); err != nil {
		return err
	}
	if d != nil {
		if err := updateDeadline(ctx, tx, d); err != nil {
			return err
		}
	}
	for i := range audits {
		if err := appendAudit(ctx, tx, &audits[i]); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update notice+deadline")
}

func (s *PostgresStore) DeleteNotice(ctx context.Context, noticeID string, d *model.ComplianceDeadline, audits []model.AuditLogEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete notice")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if d != nil {
		// Unlink first; the foreign key points the other way.
		if err := updateDeadline(ctx, tx, d); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM notices WHERE id = $1`, noticeID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete notice %s", noticeID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNoticeNotFound, "postgres: %s", noticeID)
	}
	for i := range audits {
		if err := appendAudit(ctx, tx, &audits[i]); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete notice")
}

// ---- scores ----

func (s *PostgresStore) GetScoreCache(ctx context.Context, projectID string) (*model.ComplianceScore, error) {
	var scoreJSON []byte
	var computedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT score, computed_at FROM score_cache WHERE project_id = $1`, projectID,
	).Scan(&scoreJSON, &computedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get score cache")
	}
	var score model.ComplianceScore
	if err := json.Unmarshal(scoreJSON, &score); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached score")
	}
	score.ComputedAt = computedAt
	return &score, nil
}

func (s *PostgresStore) SaveScoreCache(ctx context.Context, score *model.ComplianceScore) error {
	scoreJSON, err := json.Marshal(score)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal score")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO score_cache (project_id, score, computed_at) VALUES ($1, $2, $3)
		ON CONFLICT (project_id) DO UPDATE SET score = EXCLUDED.score, computed_at = EXCLUDED.computed_at`,
		score.ProjectID, scoreJSON, score.ComputedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save score cache")
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	scoreJSON, err := json.Marshal(snap.Score)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot score")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO score_snapshots (id, project_id, date, granularity, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, date, granularity)
		DO UPDATE SET score = EXCLUDED.score, created_at = EXCLUDED.created_at`,
		snap.ID, snap.ProjectID, snap.Date.UTC(), string(snap.Granularity), scoreJSON, snap.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: upsert snapshot")
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, projectID string, g model.Granularity, limit int) ([]model.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, date, granularity, score, created_at FROM (
			SELECT id, project_id, date, granularity, score, created_at
			FROM score_snapshots WHERE project_id = $1 AND granularity = $2
			ORDER BY date DESC LIMIT $3
		) recent ORDER BY date`,
		projectID, string(g), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var snaps []model.ScoreSnapshot
	for rows.Next() {
		var snap model.ScoreSnapshot
		var scoreJSON []byte
		var gran string
		if err := rows.Scan(&snap.ID, &snap.ProjectID, &snap.Date, &gran, &scoreJSON, &snap.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snap.Granularity = model.Granularity(gran)
		if err := json.Unmarshal(scoreJSON, &snap.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal snapshot score")
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT project_id FROM deadlines ORDER BY project_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list project ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- audit ----

func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	return appendAudit(ctx, s.pool, e)
}

func appendAudit(ctx context.Context, q execer, e *model.AuditLogEntry) error {
	var detailsJSON []byte
	if e.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit details")
		}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO audit_log (project_id, event_type, entity_type, entity_id, actor_type, actor, action, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ProjectID, e.EventType, e.EntityType, e.EntityID,
		string(e.ActorType), e.Actor, e.Action, detailsJSON, e.Timestamp.UTC(),
	)
	return eris.Wrap(err, "postgres: append audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context, projectID, entityType, entityID string, limit int) ([]model.AuditLogEntry, error) {
	query := `SELECT id, project_id, event_type, entity_type, entity_id, actor_type, actor, action, details, ts FROM audit_log WHERE true`
	args := []any{}
	argIdx := 1

	if projectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, projectID)
		argIdx++
	}
	if entityType != "" {
		query += fmt.Sprintf(` AND entity_type = $%d`, argIdx)
		args = append(args, entityType)
		argIdx++
	}
	if entityID != "" {
		query += fmt.Sprintf(` AND entity_id = $%d`, argIdx)
		args = append(args, entityID)
		argIdx++
	}
	query += ` ORDER BY ts DESC, id DESC`

	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		var actorType string
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EventType, &e.EntityType, &e.EntityID,
			&actorType, &e.Actor, &e.Action, &detailsJSON, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		e.ActorType = model.ActorType(actorType)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ---- row helpers ----

func updateDeadline(ctx context.Context, q execer, d *model.ComplianceDeadline) error {
	d.UpdatedAt = time.Now().UTC()
	tag, err := q.Exec(ctx,
		`UPDATE deadlines SET
			severity = $1, status = $2, notice_id = $3,
			waiver_reason = $4, waived_by = $5, waived_at = $6,
			last_alert_at = $7, estimated_value_usd = $8, updated_at = $9
		WHERE id = $10`,
		string(d.Severity), string(d.Status), d.NoticeID,
		d.WaiverReason, d.WaivedBy, d.WaivedAt,
		d.LastAlertAt, d.EstimatedValueUSD, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update deadline %s", d.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrDeadlineNotFound, "postgres: %s", d.ID)
	}
	return nil
}

func updateNotice(ctx context.Context, q execer, n *model.ComplianceNotice) error {
	n.UpdatedAt = time.Now().UTC()
	channelsJSON, err := json.Marshal(n.Channels)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal channels")
	}
	tag, err := q.Exec(ctx,
		`UPDATE notices SET
			status = $1, channels = $2, content = $3, ai_generated = $4,
			sent_at = $5, delivered_at = $6, on_time = $7, updated_at = $8
		WHERE id = $9`,
		string(n.Status), channelsJSON, n.Content, n.AIGenerated,
		n.SentAt, n.DeliveredAt, n.OnTime, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update notice %s", n.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNoticeNotFound, "postgres: %s", n.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClause(row rowScanner) (*model.ContractClause, error) {
	var c model.ContractClause
	var kind, deadlineType, cureType, noticeMethod string
	err := row.Scan(&c.ID, &c.ProjectID, &kind, &c.Section, &c.TriggerDescription,
		&c.DeadlineDays, &deadlineType, &c.CureDays, &cureType, &noticeMethod,
		&c.RequiresReview, &c.Confirmed, &c.ConfirmedBy, &c.ConfirmedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Kind = model.ClauseKind(kind)
	c.DeadlineType = model.DeadlineType(deadlineType)
	c.CureType = model.DeadlineType(cureType)
	c.NoticeMethod = model.NoticeMethod(noticeMethod)
	return &c, nil
}

func scanDeadline(row rowScanner) (*model.ComplianceDeadline, error) {
	var d model.ComplianceDeadline
	var severity, status string
	err := row.Scan(&d.ID, &d.ProjectID, &d.ClauseID, &d.TriggerEventType, &d.TriggerEventID,
		&d.TriggerDescription, &d.TriggeredAt, &d.TriggeredBy, &d.DeadlineAt,
		&severity, &status, &d.NoticeID, &d.WaiverReason, &d.WaivedBy, &d.WaivedAt,
		&d.LastAlertAt, &d.EstimatedValueUSD, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Severity = model.Severity(severity)
	d.Status = model.DeadlineStatus(status)
	return &d, nil
}

func scanNotice(row rowScanner) (*model.ComplianceNotice, error) {
	var n model.ComplianceNotice
	var noticeType, status string
	var channelsJSON []byte
	err := row.Scan(&n.ID, &n.ProjectID, &n.DeadlineID, &noticeType, &status,
		&n.RecipientName, &n.RecipientEmail, &channelsJSON, &n.Content, &n.AIGenerated,
		&n.DueAt, &n.SentAt, &n.DeliveredAt, &n.OnTime, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Type = model.NoticeType(noticeType)
	n.Status = model.NoticeStatus(status)
	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &n.Channels); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal channels")
		}
	}
	return &n, nil
}

func collectDeadlines(rows pgx.Rows) ([]model.ComplianceDeadline, error) {
	var deadlines []model.ComplianceDeadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deadline")
		}
		deadlines = append(deadlines, *d)
	}
	return deadlines, rows.Err()
}
