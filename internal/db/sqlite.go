package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// SQLiteStore implements JobRepository, ProjectRepository, and
// CodebaseRepository against a single SQLite file, used for local
// development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteRepositories opens path (WAL mode, 5s busy timeout), applies
// migrations, and returns the three repositories backed by it.
func NewSQLiteRepositories(path string) (Repositories, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return Repositories{}, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return Repositories{}, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &SQLiteStore{db: conn}
	if err := store.migrate(); err != nil {
		conn.Close()
		return Repositories{}, fmt.Errorf("migrate sqlite: %w", err)
	}
	return Repositories{
		Jobs:      store,
		Projects:  sqliteProjectRepo{store: store},
		Codebases: sqliteCodebaseRepo{store: store},
	}, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS codebases (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			remote_url TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT 'main',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS index_jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			trigger_type TEXT NOT NULL DEFAULT 'MANUAL',
			project_id TEXT NOT NULL,
			codebase_id TEXT,
			base_commit TEXT,
			description TEXT,
			current_task TEXT,
			progress INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			error_stack TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at DATETIME,
			completed_at DATETIME,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_index_jobs_codebase_status ON index_jobs(codebase_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_index_jobs_codebase_created ON index_jobs(codebase_id, created_at DESC);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			// Older installations may already have these tables; ignore.
			_ = err
		}
	}

	// SQLite has no "ADD COLUMN IF NOT EXISTS"; ignore duplicate-column errors.
	_, _ = s.db.Exec(`ALTER TABLE index_jobs ADD COLUMN trigger_type TEXT NOT NULL DEFAULT 'MANUAL'`)
	_, _ = s.db.Exec(`ALTER TABLE index_jobs ADD COLUMN metadata TEXT NOT NULL DEFAULT '{}'`)

	return nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts job, keyed by ID.
func (s *SQLiteStore) Save(ctx context.Context, job *model.Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO index_jobs (
			id, kind, status, priority, trigger_type, project_id, codebase_id,
			base_commit, description, current_task, progress, retry_count,
			error, error_stack, metadata, created_at, started_at, completed_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, priority = excluded.priority,
			trigger_type = excluded.trigger_type, codebase_id = excluded.codebase_id,
			base_commit = excluded.base_commit, description = excluded.description,
			current_task = excluded.current_task, progress = excluded.progress,
			retry_count = excluded.retry_count, error = excluded.error,
			error_stack = excluded.error_stack, metadata = excluded.metadata,
			started_at = excluded.started_at, completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		job.ID, job.Kind, job.Status, job.Priority, job.Trigger, job.ProjectID, job.CodebaseID,
		job.BaseCommit, job.Description, job.CurrentTask, job.Progress, job.RetryCount,
		nullString(job.Error), nullString(job.ErrorStack), meta, job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

const jobSelectColumns = `
	id, kind, status, priority, trigger_type, project_id, codebase_id,
	base_commit, description, current_task, progress, retry_count,
	error, error_stack, metadata, created_at, started_at, completed_at, updated_at`

// Find returns the job with id, or (nil, nil) if it does not exist.
func (s *SQLiteStore) Find(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobSelectColumns+` FROM index_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindActiveForCodebase returns the single non-terminal job for codebaseID,
// or (nil, nil) if there is none.
func (s *SQLiteStore) FindActiveForCodebase(ctx context.Context, codebaseID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobSelectColumns+` FROM index_jobs
		WHERE codebase_id = ? AND status IN ('PENDING', 'RUNNING')
		ORDER BY created_at DESC LIMIT 1`, codebaseID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindRecentForCodebase returns the most recent limit jobs for codebaseID,
// newest first.
func (s *SQLiteStore) FindRecentForCodebase(ctx context.Context, codebaseID string, limit int) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobSelectColumns+` FROM index_jobs WHERE codebase_id = ? ORDER BY created_at DESC LIMIT ?`, codebaseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStore) findProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id)
	p := &model.Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) findCodebase(ctx context.Context, id string) (*model.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, name, remote_url, branch, created_at, updated_at FROM codebases WHERE id = ?`, id)
	c := &model.Codebase{}
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.RemoteURL, &c.Branch, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

type sqliteProjectRepo struct{ store *SQLiteStore }

func (r sqliteProjectRepo) Find(ctx context.Context, id string) (*model.Project, error) {
	return r.store.findProject(ctx, id)
}
func (r sqliteProjectRepo) Close() error { return r.store.Close() }

type sqliteCodebaseRepo struct{ store *SQLiteStore }

func (r sqliteCodebaseRepo) Find(ctx context.Context, id string) (*model.Codebase, error) {
	return r.store.findCodebase(ctx, id)
}
func (r sqliteCodebaseRepo) Close() error { return r.store.Close() }
