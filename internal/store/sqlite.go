package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/enrolld/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// SQLite is single-writer, and ":memory:" databases are per-connection,
	// so the pool is pinned to one connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Job records ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "account_id", job.AccountID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (account_id, status, last_failed_step, last_error, resource_id, resource_ref, artifact, progress, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.AccountID, string(job.Status), string(job.LastFailedStep), job.LastError,
		job.ResourceID, job.ResourceRef, job.Artifact, job.Progress, job.Attempts,
		job.CreatedAt.Format(time.RFC3339Nano), job.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, accountID string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "account_id", accountID)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT account_id, status, last_failed_step, last_error, resource_id, resource_ref, artifact, progress, attempts, created_at, updated_at
		 FROM jobs WHERE account_id = ?`, accountID))
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var countArgs []any

	if opts.Status != "" {
		whereClauses = append(whereClauses, "status = ?")
		countArgs = append(countArgs, opts.Status)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT account_id, status, last_failed_step, last_error, resource_id, resource_ref, artifact, progress, attempts, created_at, updated_at
		FROM jobs` + whereSQL + ` ORDER BY created_at LIMIT ? OFFSET ?`
	listArgs := append(countArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs, err := s.scanJobs(rows)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *SQLiteStore) GetJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list_by_status", "table", "jobs", "status", status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, status, last_failed_step, last_error, resource_id, resource_ref, artifact, progress, attempts, created_at, updated_at
		 FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "account_id", job.AccountID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=?, last_failed_step=?, last_error=?, resource_id=?,
		 resource_ref=?, artifact=?, progress=?, attempts=?, updated_at=? WHERE account_id=?`,
		string(job.Status), string(job.LastFailedStep), job.LastError, job.ResourceID, job.ResourceRef,
		job.Artifact, job.Progress, job.Attempts,
		job.UpdatedAt.Format(time.RFC3339Nano), job.AccountID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s not found", job.AccountID)
	}
	return nil
}

// --- Resources ---

func (s *SQLiteStore) CreateResource(ctx context.Context, res *model.Resource) error {
	s.logger.Debug("sql", "op", "insert", "table", "resources", "id", res.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, kind, ref, daily_limit, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, string(res.Kind), res.Ref, res.DailyLimit, boolToInt(res.Enabled),
		res.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetResource(ctx context.Context, id, day string) (*model.Resource, error) {
	s.logger.Debug("sql", "op", "select", "table", "resources", "id", id, "day", day)

	var res model.Resource
	var kind, createdAt string
	var enabled int

	err := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.kind, r.ref, r.daily_limit, r.enabled, r.created_at,
		        COALESCE(u.used, 0)
		 FROM resources r
		 LEFT JOIN resource_usage u ON u.resource_id = r.id AND u.day = ?
		 WHERE r.id = ?`, day, id,
	).Scan(&res.ID, &kind, &res.Ref, &res.DailyLimit, &enabled, &createdAt, &res.DailyUsage)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res.Kind = model.ResourceKind(kind)
	res.Enabled = enabled != 0
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return &res, nil
}

// ListResources returns all resources with the given day's usage counters,
// in pool insertion order (rowid). The order is the acquisition tie-breaker,
// so it must be stable.
func (s *SQLiteStore) ListResources(ctx context.Context, day string) ([]*model.Resource, error) {
	s.logger.Debug("sql", "op", "list", "table", "resources", "day", day)

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.kind, r.ref, r.daily_limit, r.enabled, r.created_at,
		        COALESCE(u.used, 0)
		 FROM resources r
		 LEFT JOIN resource_usage u ON u.resource_id = r.id AND u.day = ?
		 ORDER BY r.rowid`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*model.Resource
	for rows.Next() {
		var res model.Resource
		var kind, createdAt string
		var enabled int

		if err := rows.Scan(&res.ID, &kind, &res.Ref, &res.DailyLimit, &enabled, &createdAt, &res.DailyUsage); err != nil {
			return nil, err
		}

		res.Kind = model.ResourceKind(kind)
		res.Enabled = enabled != 0
		res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		resources = append(resources, &res)
	}
	return resources, rows.Err()
}

func (s *SQLiteStore) UpdateResource(ctx context.Context, res *model.Resource) error {
	s.logger.Debug("sql", "op", "update", "table", "resources", "id", res.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE resources SET kind=?, ref=?, daily_limit=?, enabled=? WHERE id=?`,
		string(res.Kind), res.Ref, res.DailyLimit, boolToInt(res.Enabled), res.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("resource %s not found", res.ID)
	}
	return nil
}

// --- Usage counters ---

// IncrementResourceUsage adds one use for the resource on the given day.
// The upsert is a single statement, so concurrent increments never race.
func (s *SQLiteStore) IncrementResourceUsage(ctx context.Context, id, day string) error {
	s.logger.Debug("sql", "op", "increment_usage", "resource_id", id, "day", day)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resource_usage (resource_id, day, used) VALUES (?, ?, 1)
		 ON CONFLICT(resource_id, day) DO UPDATE SET used = used + 1`,
		id, day,
	)
	return err
}

// SetResourceUsage forces the usage counter to an absolute value, used to
// mark a rejected resource exhausted for the remainder of the day.
func (s *SQLiteStore) SetResourceUsage(ctx context.Context, id, day string, used int) error {
	s.logger.Debug("sql", "op", "set_usage", "resource_id", id, "day", day, "used", used)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resource_usage (resource_id, day, used) VALUES (?, ?, ?)
		 ON CONFLICT(resource_id, day) DO UPDATE SET used = excluded.used`,
		id, day, used,
	)
	return err
}

// ResetResourceUsage zeroes all counters for the given day (operator reset).
func (s *SQLiteStore) ResetResourceUsage(ctx context.Context, day string) error {
	s.logger.Debug("sql", "op", "reset_usage", "day", day)

	_, err := s.db.ExecContext(ctx, `DELETE FROM resource_usage WHERE day = ?`, day)
	return err
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var status, failedStep, createdAt, updatedAt string

	err := row.Scan(
		&job.AccountID, &status, &failedStep, &job.LastError,
		&job.ResourceID, &job.ResourceRef, &job.Artifact, &job.Progress, &job.Attempts,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.LastFailedStep = model.Step(failedStep)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return &job, nil
}

func (s *SQLiteStore) scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	var jobs []*model.Job
	for rows.Next() {
		var job model.Job
		var status, failedStep, createdAt, updatedAt string

		if err := rows.Scan(
			&job.AccountID, &status, &failedStep, &job.LastError,
			&job.ResourceID, &job.ResourceRef, &job.Artifact, &job.Progress, &job.Attempts,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		job.Status = model.JobStatus(status)
		job.LastFailedStep = model.Step(failedStep)
		job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
