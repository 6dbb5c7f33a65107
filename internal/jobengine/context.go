// Package jobengine implements the core job orchestration engine: the
// Task contract and its concrete tasks, JobPipeline, JobOrchestrator,
// and JobTimeoutPolicy.
package jobengine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/db"
	"github.com/process-failed-successfully/codegraph-indexer/internal/git"
	"github.com/process-failed-successfully/codegraph-indexer/internal/graph"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/process-failed-successfully/codegraph-indexer/internal/notify"
	"github.com/process-failed-successfully/codegraph-indexer/internal/parse"
)

// Clock abstracts time.Now so tests can control job timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGen mints job IDs.
type IDGen interface {
	NewJobID() string
}

// Collaborators bundles every external dependency the pipeline's tasks
// are built against. One instance is shared across all jobs; tasks hold
// no per-job state of their own (spec.md §3, Task).
type Collaborators struct {
	Git      git.Client
	Parsers  map[string]parse.Parser // keyed by language bucket, e.g. "go", "ts"
	Graph    graph.Sink
	Jobs     db.JobRepository
	Projects db.ProjectRepository
	Codebase db.CodebaseRepository
	Notifier notify.Notifier
	Clock    Clock
	IDGen    IDGen
	Logger   *slog.Logger
}

// JobContext is the per-job scratch object threaded through a pipeline
// run. It is built fresh for every job and discarded once the pipeline
// returns.
type JobContext struct {
	Job      *model.Job
	Project  *model.Project
	Codebase *model.Codebase
	Config   *config.EngineConfig
	Deps     *Collaborators

	WorkingDir          string
	TempDir             string
	CodebaseStoragePath string

	dataMu sync.Mutex
	data   map[string]any

	StartedAt time.Time
}

// NewJobContext constructs an empty JobContext; WorkingDir/TempDir and
// CodebaseStoragePath are populated by the orchestrator before the
// pipeline runs (spec.md §3, JobContext invariants).
func NewJobContext(job *model.Job, project *model.Project, codebase *model.Codebase, cfg *config.EngineConfig, deps *Collaborators) *JobContext {
	return &JobContext{
		Job:      job,
		Project:  project,
		Codebase: codebase,
		Config:   cfg,
		Deps:     deps,
		data:     make(map[string]any),
	}
}

// SetData writes the named task's output. Called at most once per task,
// only on success, enforced by JobPipeline rather than here.
func (jc *JobContext) SetData(name string, value any) {
	jc.dataMu.Lock()
	defer jc.dataMu.Unlock()
	jc.data[name] = value
}

// GetData reads a prior task's output by name.
func (jc *JobContext) GetData(name string) (any, bool) {
	jc.dataMu.Lock()
	defer jc.dataMu.Unlock()
	v, ok := jc.data[name]
	return v, ok
}

// HasData reports whether name has been written, used by Task.Validate
// to check its Requires list.
func (jc *JobContext) HasData(name string) bool {
	_, ok := jc.GetData(name)
	return ok
}
