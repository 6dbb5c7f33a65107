package db

import (
	"context"

	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// JobRepository persists and queries Job rows. Implementations must
// serialize Job.Metadata as JSON in a single column; all other fields
// are stored as typed columns.
type JobRepository interface {
	Save(ctx context.Context, job *model.Job) error
	Find(ctx context.Context, id string) (*model.Job, error)
	FindActiveForCodebase(ctx context.Context, codebaseID string) (*model.Job, error)
	FindRecentForCodebase(ctx context.Context, codebaseID string, limit int) ([]*model.Job, error)
	Close() error
}

// ProjectRepository resolves Project rows by ID.
type ProjectRepository interface {
	Find(ctx context.Context, id string) (*model.Project, error)
	Close() error
}

// CodebaseRepository resolves Codebase rows by ID.
type CodebaseRepository interface {
	Find(ctx context.Context, id string) (*model.Codebase, error)
	Close() error
}

// Repositories bundles the three repositories a single backend provides,
// since in practice Postgres and SQLite each back all three off one
// *sql.DB.
type Repositories struct {
	Jobs      JobRepository
	Projects  ProjectRepository
	Codebases CodebaseRepository
}

// Close closes the underlying connection shared by all three
// repositories in this bundle.
func (r Repositories) Close() error {
	return r.Jobs.Close()
}
