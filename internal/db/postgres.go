package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// PostgresStore implements JobRepository, ProjectRepository, and
// CodebaseRepository against a single Postgres connection pool.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresRepositories opens dsn, applies migrations, and returns the
// three repositories backed by it.
func NewPostgresRepositories(dsn string) (Repositories, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return Repositories{}, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return Repositories{}, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: conn}
	if err := store.migrate(); err != nil {
		conn.Close()
		return Repositories{}, fmt.Errorf("migrate postgres: %w", err)
	}
	return Repositories{
		Jobs:      store,
		Projects:  postgresProjectRepo{store: store},
		Codebases: postgresCodebaseRepo{store: store},
	}, nil
}

// postgresProjectRepo and postgresCodebaseRepo are thin wrappers so each
// satisfies its own Find signature while sharing PostgresStore's
// connection and Close.
type postgresProjectRepo struct{ store *PostgresStore }

func (r postgresProjectRepo) Find(ctx context.Context, id string) (*model.Project, error) {
	return r.store.findProject(ctx, id)
}
func (r postgresProjectRepo) Close() error { return r.store.Close() }

type postgresCodebaseRepo struct{ store *PostgresStore }

func (r postgresCodebaseRepo) Find(ctx context.Context, id string) (*model.Codebase, error) {
	return r.store.findCodebase(ctx, id)
}
func (r postgresCodebaseRepo) Close() error { return r.store.Close() }

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS codebases (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			remote_url TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT 'main',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
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
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_index_jobs_codebase_status ON index_jobs(codebase_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_index_jobs_codebase_created ON index_jobs(codebase_id, created_at DESC);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			slog.Debug("primary migration step failed, will attempt fine-grained fixes", "error", err)
		}
	}

	// Fine-grained fixups for installations created before a column existed.
	_, _ = s.db.Exec(`ALTER TABLE index_jobs ADD COLUMN IF NOT EXISTS trigger_type TEXT NOT NULL DEFAULT 'MANUAL'`)
	_, _ = s.db.Exec(`ALTER TABLE index_jobs ADD COLUMN IF NOT EXISTS metadata JSONB NOT NULL DEFAULT '{}'`)

	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Save upserts job, keyed by ID.
func (s *PostgresStore) Save(ctx context.Context, job *model.Job) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO index_jobs (
			id, kind, status, priority, trigger_type, project_id, codebase_id,
			base_commit, description, current_task, progress, retry_count,
			error, error_stack, metadata, created_at, started_at, completed_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
			status = $3, priority = $4, trigger_type = $5, codebase_id = $7,
			base_commit = $8, description = $9, current_task = $10, progress = $11,
			retry_count = $12, error = $13, error_stack = $14, metadata = $15,
			started_at = $17, completed_at = $18, updated_at = $19`,
		job.ID, job.Kind, job.Status, job.Priority, job.Trigger, job.ProjectID, job.CodebaseID,
		job.BaseCommit, job.Description, job.CurrentTask, job.Progress, job.RetryCount,
		nullString(job.Error), nullString(job.ErrorStack), meta, job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Find returns the job with id, or (nil, nil) if it does not exist.
func (s *PostgresStore) Find(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, priority, trigger_type, project_id, codebase_id,
			base_commit, description, current_task, progress, retry_count,
			error, error_stack, metadata, created_at, started_at, completed_at, updated_at
		FROM index_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindActiveForCodebase returns the single non-terminal job for codebaseID,
// or (nil, nil) if there is none.
func (s *PostgresStore) FindActiveForCodebase(ctx context.Context, codebaseID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, priority, trigger_type, project_id, codebase_id,
			base_commit, description, current_task, progress, retry_count,
			error, error_stack, metadata, created_at, started_at, completed_at, updated_at
		FROM index_jobs
		WHERE codebase_id = $1 AND status IN ('PENDING', 'RUNNING')
		ORDER BY created_at DESC LIMIT 1`, codebaseID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// FindRecentForCodebase returns the most recent limit jobs for codebaseID,
// newest first.
func (s *PostgresStore) FindRecentForCodebase(ctx context.Context, codebaseID string, limit int) ([]*model.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, status, priority, trigger_type, project_id, codebase_id,
			base_commit, description, current_task, progress, retry_count,
			error, error_stack, metadata, created_at, started_at, completed_at, updated_at
		FROM index_jobs WHERE codebase_id = $1 ORDER BY created_at DESC LIMIT $2`, codebaseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// findProject returns the project with id, or (nil, nil) if it does not exist.
func (s *PostgresStore) findProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM projects WHERE id = $1`, id)
	p := &model.Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) findCodebase(ctx context.Context, id string) (*model.Codebase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, name, remote_url, branch, created_at, updated_at FROM codebases WHERE id = $1`, id)
	c := &model.Codebase{}
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.RemoteURL, &c.Branch, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannableRow interface {
	Scan(dest ...any) error
}

func scanJob(row scannableRow) (*model.Job, error) {
	var (
		j           model.Job
		metaBytes   []byte
		codebaseID  sql.NullString
		baseCommit  sql.NullString
		description sql.NullString
		currentTask sql.NullString
		errText     sql.NullString
		errStack    sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	if err := row.Scan(
		&j.ID, &j.Kind, &j.Status, &j.Priority, &j.Trigger, &j.ProjectID, &codebaseID,
		&baseCommit, &description, &currentTask, &j.Progress, &j.RetryCount,
		&errText, &errStack, &metaBytes, &j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if codebaseID.Valid {
		j.CodebaseID = &codebaseID.String
	}
	if baseCommit.Valid {
		j.BaseCommit = &baseCommit.String
	}
	j.Description = description.String
	j.CurrentTask = currentTask.String
	j.Error = errText.String
	j.ErrorStack = errStack.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	j.Metadata = model.NewJobMetadata()
	if len(metaBytes) > 0 {
		if err := json.Unmarshal(metaBytes, &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal job metadata: %w", err)
		}
		if j.Metadata.Tasks == nil {
			j.Metadata.Tasks = make(map[string]model.TaskTrace)
		}
		if j.Metadata.PerLanguage == nil {
			j.Metadata.PerLanguage = make(map[string]int)
		}
	}

	return &j, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanJobs(rows rowsScanner) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
