package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/argus/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS traces (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    metadata    BLOB,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    ended_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_traces_project_created ON traces (project_id, created_at);
CREATE INDEX IF NOT EXISTS idx_traces_status_updated ON traces (status, updated_at);

CREATE TABLE IF NOT EXISTS spans (
    id          TEXT PRIMARY KEY,
    trace_id    TEXT NOT NULL,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    input       BLOB,
    output      BLOB,
    created_at  DATETIME NOT NULL,
    ended_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans (trace_id);

CREATE TABLE IF NOT EXISTS organizations (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    plan_tier   TEXT NOT NULL,
    created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    id          TEXT PRIMARY KEY,
    org_id      TEXT NOT NULL,
    name        TEXT NOT NULL,
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_org ON projects (org_id);

CREATE TABLE IF NOT EXISTS retention_policies (
    plan_tier   TEXT PRIMARY KEY,
    days        INTEGER NOT NULL
);
INSERT OR IGNORE INTO retention_policies (plan_tier, days) VALUES
    ('free', 15),
    ('pro', 90),
    ('enterprise', 365);
`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrace inserts a new trace record.
func (s *SQLiteStore) CreateTrace(ctx context.Context, t *model.Trace) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (id, project_id, name, status, metadata, created_at, updated_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Name, t.Status, []byte(t.Metadata), t.CreatedAt, t.UpdatedAt, t.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}
	return nil
}

// GetTrace retrieves a trace by ID.
func (s *SQLiteStore) GetTrace(ctx context.Context, id string) (*model.Trace, error) {
	t := &model.Trace{}
	var metadata []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, name, status, metadata, created_at, updated_at, ended_at
		FROM traces WHERE id = ?`, id,
	).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &metadata, &t.CreatedAt, &t.UpdatedAt, &t.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trace: %w", err)
	}
	t.Metadata = metadata
	return t, nil
}

// ListTraces returns a paginated list of a project's traces ordered by
// created_at DESC, along with the total count for that project.
func (s *SQLiteStore) ListTraces(ctx context.Context, projectID string, limit, offset int) ([]*model.Trace, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM traces WHERE project_id = ?`, projectID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count traces: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, project_id, name, status, metadata, created_at, updated_at, ended_at
		FROM traces WHERE project_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		projectID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	traces, err := scanTraces(rows)
	if err != nil {
		return nil, 0, err
	}
	return traces, total, nil
}

// UpdateTraceStatus transitions a trace to the given status, enforcing the
// status state machine. Terminal transitions also set ended_at.
func (s *SQLiteStore) UpdateTraceStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM traces WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get trace status: %w", err)
	}

	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	now := time.Now().UTC()
	var endedAt *time.Time
	if model.Terminal(status) {
		endedAt = &now
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE traces SET status = ?, updated_at = ?, ended_at = ? WHERE id = ?`,
		status, now, endedAt, id,
	); err != nil {
		return fmt.Errorf("update trace status: %w", err)
	}

	return tx.Commit()
}

// FindStaleRunning returns up to limit running traces whose last update is
// older than cutoff.
func (s *SQLiteStore) FindStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*model.Trace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, status, metadata, created_at, updated_at, ended_at
		FROM traces WHERE status = ? AND updated_at < ? LIMIT ?`,
		model.StatusRunning, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find stale running traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

// MarkTracesFailed bulk-updates the given traces to failed with the given end
// timestamp. One statement regardless of batch size.
func (s *SQLiteStore) MarkTracesFailed(ctx context.Context, ids []string, endedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`UPDATE traces SET status = ?, updated_at = ?, ended_at = ? WHERE id IN (%s)`,
		placeholders(len(ids)),
	)
	args := append([]any{model.StatusFailed, endedAt, endedAt}, toAnySlice(ids)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark traces failed: %w", err)
	}
	return nil
}

// FindExpiredTraceIDs returns up to limit trace IDs belonging to the given
// projects with creation timestamp older than cutoff.
func (s *SQLiteStore) FindExpiredTraceIDs(ctx context.Context, projectIDs []string, cutoff time.Time, limit int) ([]string, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id FROM traces WHERE project_id IN (%s) AND created_at < ? LIMIT ?`,
		placeholders(len(projectIDs)),
	)
	args := append(toAnySlice(projectIDs), cutoff, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find expired traces: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trace id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTraces bulk-deletes the given traces. Callers must delete child spans
// first; this method does not cascade.
func (s *SQLiteStore) DeleteTraces(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM traces WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := s.db.ExecContext(ctx, query, toAnySlice(ids)...); err != nil {
		return fmt.Errorf("delete traces: %w", err)
	}
	return nil
}

// TouchTrace advances a trace's last-update timestamp. Used when child
// activity arrives, so the idle reaper sees the trace as live.
func (s *SQLiteStore) TouchTrace(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE traces SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch trace: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSpan inserts a new span record.
func (s *SQLiteStore) CreateSpan(ctx context.Context, sp *model.Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (id, trace_id, name, status, input, output, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.TraceID, sp.Name, sp.Status, []byte(sp.Input), []byte(sp.Output), sp.CreatedAt, sp.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert span: %w", err)
	}
	return nil
}

// ListSpans returns all spans for a trace ordered by creation time.
func (s *SQLiteStore) ListSpans(ctx context.Context, traceID string) ([]*model.Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, name, status, input, output, created_at, ended_at
		FROM spans WHERE trace_id = ? ORDER BY created_at ASC`, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var spans []*model.Span
	for rows.Next() {
		sp := &model.Span{}
		var input, output []byte
		if err := rows.Scan(&sp.ID, &sp.TraceID, &sp.Name, &sp.Status, &input, &output, &sp.CreatedAt, &sp.EndedAt); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		sp.Input = input
		sp.Output = output
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

// DeleteSpansByTraceIDs bulk-deletes all spans referencing the given traces.
func (s *SQLiteStore) DeleteSpansByTraceIDs(ctx context.Context, traceIDs []string) error {
	if len(traceIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM spans WHERE trace_id IN (%s)`, placeholders(len(traceIDs)))
	if _, err := s.db.ExecContext(ctx, query, toAnySlice(traceIDs)...); err != nil {
		return fmt.Errorf("delete spans: %w", err)
	}
	return nil
}

// CreateOrganization inserts a new organization record.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, o *model.Organization) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, plan_tier, created_at) VALUES (?, ?, ?, ?)`,
		o.ID, o.Name, o.PlanTier, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// ListOrganizations returns all organizations with their project IDs.
func (s *SQLiteStore) ListOrganizations(ctx context.Context) ([]*model.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, plan_tier, created_at FROM organizations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*model.Organization
	byID := make(map[string]*model.Organization)
	for rows.Next() {
		o := &model.Organization{}
		if err := rows.Scan(&o.ID, &o.Name, &o.PlanTier, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, o)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	projRows, err := s.db.QueryContext(ctx, `SELECT id, org_id FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer projRows.Close()

	for projRows.Next() {
		var id, orgID string
		if err := projRows.Scan(&id, &orgID); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if o, ok := byID[orgID]; ok {
			o.ProjectIDs = append(o.ProjectIDs, id)
		}
	}
	return orgs, projRows.Err()
}

// CreateProject registers a project under an organization.
func (s *SQLiteStore) CreateProject(ctx context.Context, orgID, projectID, name string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizations WHERE id = ?`, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check organization: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, org_id, name, created_at) VALUES (?, ?, ?, ?)`,
		projectID, orgID, name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// RetentionDays resolves the retention horizon for a plan tier, falling back
// to DefaultRetentionDays when the tier has no policy row.
func (s *SQLiteStore) RetentionDays(ctx context.Context, tier string) (int, error) {
	var days int
	err := s.db.QueryRowContext(ctx,
		`SELECT days FROM retention_policies WHERE plan_tier = ?`, tier,
	).Scan(&days)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultRetentionDays, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get retention policy: %w", err)
	}
	return days, nil
}

// scanTraces collects trace rows from an open result set.
func scanTraces(rows *sql.Rows) ([]*model.Trace, error) {
	var traces []*model.Trace
	for rows.Next() {
		t := &model.Trace{}
		var metadata []byte
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &metadata, &t.CreatedAt, &t.UpdatedAt, &t.EndedAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		t.Metadata = metadata
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// placeholders returns a comma-joined list of n SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
