package jobengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/git"
	"github.com/process-failed-successfully/codegraph-indexer/internal/graph"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/process-failed-successfully/codegraph-indexer/internal/runner"
	"github.com/stretchr/testify/require"
)

// fakeJobRepo is an in-memory JobRepository good enough to exercise the
// orchestrator's state machine without a real database.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeJobRepo() *fakeJobRepo { return &fakeJobRepo{jobs: make(map[string]*model.Job)} }

func (r *fakeJobRepo) Save(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) Find(ctx context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) FindActiveForCodebase(ctx context.Context, codebaseID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.CodebaseID != nil && *j.CodebaseID == codebaseID && !j.Status.IsTerminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) FindRecentForCodebase(ctx context.Context, codebaseID string, limit int) ([]*model.Job, error) {
	return nil, nil
}

func (r *fakeJobRepo) Close() error { return nil }

type fakeProjectRepo struct{ project *model.Project }

func (r *fakeProjectRepo) Find(ctx context.Context, id string) (*model.Project, error) {
	if r.project != nil && r.project.ID == id {
		return r.project, nil
	}
	return nil, nil
}
func (r *fakeProjectRepo) Close() error { return nil }

type fakeCodebaseRepo struct{ codebases map[string]*model.Codebase }

func (r *fakeCodebaseRepo) Find(ctx context.Context, id string) (*model.Codebase, error) {
	return r.codebases[id], nil
}
func (r *fakeCodebaseRepo) Close() error { return nil }

// fakeGraphSink is a no-op graph.Sink good enough for pipeline runs
// that never touch real Neo4j.
type fakeGraphSink struct{}

func (fakeGraphSink) Connect(ctx context.Context, cfg graph.Config) error { return nil }
func (fakeGraphSink) UpsertNode(ctx context.Context, n graph.NodeUpsert) (graph.UpsertResult, error) {
	return graph.ResultCreated, nil
}
func (fakeGraphSink) UpsertEdge(ctx context.Context, e graph.EdgeUpsert) (graph.UpsertResult, error) {
	return graph.ResultCreated, nil
}
func (fakeGraphSink) DeleteFile(ctx context.Context, codebaseID, path string) (graph.DeleteFileResult, error) {
	return graph.DeleteFileResult{}, nil
}
func (fakeGraphSink) Close(ctx context.Context) error { return nil }

// fakeGitClient is a no-op git.Client for API/USERFLOW kinds that never
// clone anything.
type fakeGitClient struct{}

func (fakeGitClient) IsValidRepo(dir string) bool { return false }
func (fakeGitClient) Clone(ctx context.Context, url, dest string, opts git.CloneOptions) error {
	return nil
}
func (fakeGitClient) Pull(ctx context.Context, dir string) error { return nil }
func (fakeGitClient) CurrentCommit(ctx context.Context, dir string) (string, error) {
	return "deadbeef", nil
}
func (fakeGitClient) Diff(ctx context.Context, dir, fromCommit string) ([]git.DiffEntry, error) {
	return nil, nil
}
func (fakeGitClient) ListFiles(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}
func (fakeGitClient) DeleteRepo(dir string) error { return nil }

type incrementingIDGen struct {
	mu  sync.Mutex
	n   int
	pre string
}

func (g *incrementingIDGen) NewJobID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.pre, g.n)
}

func testConfig() *config.EngineConfig {
	cfg := config.Defaults()
	cfg.Jobs.MaxConcurrent = 2
	cfg.Jobs.DefaultTimeoutMs = 2000
	return cfg
}

func TestOrchestrator_CreateJob_RejectsUnknownProject(t *testing.T) {
	jobs := newFakeJobRepo()
	projects := &fakeProjectRepo{}
	codebases := &fakeCodebaseRepo{codebases: map[string]*model.Codebase{}}
	deps := &Collaborators{Jobs: jobs, Projects: projects, Codebase: codebases, Clock: &fakeClock{}, IDGen: &incrementingIDGen{}, Logger: slog.Default()}
	cfg := testConfig()

	manager := runner.NewManager(slog.Default())
	pool, err := manager.CreatePool("jobs", cfg.Jobs.MaxConcurrent, cfg.Jobs.DefaultTimeoutMs)
	require.NoError(t, err)
	defer pool.Shutdown(false)

	orch := NewJobOrchestrator(deps, cfg, pool)
	_, err = orch.CreateJob(context.Background(), CreateJobRequest{ProjectID: "missing", Kind: model.KindAPIAnalysis})
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.KindProjectNotFound, kind)
}

func TestOrchestrator_CreateJob_RejectsCodebaseProjectMismatch(t *testing.T) {
	jobs := newFakeJobRepo()
	project := &model.Project{ID: "p1", Name: "demo"}
	otherProject := &model.Project{ID: "p2", Name: "other"}
	codebase := &model.Codebase{ID: "c1", ProjectID: otherProject.ID, Name: "repo", RemoteURL: "https://example.test/repo.git", Branch: "main"}
	projects := &fakeProjectRepo{project: project}
	codebases := &fakeCodebaseRepo{codebases: map[string]*model.Codebase{"c1": codebase}}
	deps := &Collaborators{Jobs: jobs, Projects: projects, Codebase: codebases, Clock: &fakeClock{}, IDGen: &incrementingIDGen{}, Logger: slog.Default()}
	cfg := testConfig()

	manager := runner.NewManager(slog.Default())
	pool, err := manager.CreatePool("jobs", cfg.Jobs.MaxConcurrent, cfg.Jobs.DefaultTimeoutMs)
	require.NoError(t, err)
	defer pool.Shutdown(false)

	orch := NewJobOrchestrator(deps, cfg, pool)
	_, err = orch.CreateJob(context.Background(), CreateJobRequest{ProjectID: project.ID, CodebaseID: "c1", Kind: model.KindCodebaseFull})
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.KindCodebaseProjectMismatch, kind)
}

func TestOrchestrator_CreateJob_RejectsSecondConcurrentCodebaseJob(t *testing.T) {
	jobs := newFakeJobRepo()
	project := &model.Project{ID: "p1", Name: "demo"}
	codebase := &model.Codebase{ID: "c1", ProjectID: project.ID, Name: "repo", RemoteURL: "https://example.test/repo.git", Branch: "main"}
	jobs.jobs["existing"] = &model.Job{ID: "existing", Kind: model.KindCodebaseFull, Status: model.StatusRunning, CodebaseID: &codebase.ID, Metadata: model.NewJobMetadata()}
	projects := &fakeProjectRepo{project: project}
	codebases := &fakeCodebaseRepo{codebases: map[string]*model.Codebase{"c1": codebase}}
	deps := &Collaborators{Jobs: jobs, Projects: projects, Codebase: codebases, Clock: &fakeClock{}, IDGen: &incrementingIDGen{}, Logger: slog.Default()}
	cfg := testConfig()

	manager := runner.NewManager(slog.Default())
	pool, err := manager.CreatePool("jobs", cfg.Jobs.MaxConcurrent, cfg.Jobs.DefaultTimeoutMs)
	require.NoError(t, err)
	defer pool.Shutdown(false)

	orch := NewJobOrchestrator(deps, cfg, pool)
	_, err = orch.CreateJob(context.Background(), CreateJobRequest{ProjectID: project.ID, CodebaseID: "c1", Kind: model.KindCodebaseFull})
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.KindConcurrentCodebaseJob, kind)
}

// TestOrchestrator_APIAnalysisJob_RunsToCompletion exercises the full
// CreateJob → execute → terminal-status path for a project-only kind
// that needs no git/parse collaborators.
func TestOrchestrator_APIAnalysisJob_RunsToCompletion(t *testing.T) {
	jobs := newFakeJobRepo()
	project := &model.Project{ID: "p1", Name: "demo"}
	projects := &fakeProjectRepo{project: project}
	codebases := &fakeCodebaseRepo{codebases: map[string]*model.Codebase{}}
	deps := &Collaborators{
		Git:      fakeGitClient{},
		Graph:    fakeGraphSink{},
		Jobs:     jobs,
		Projects: projects,
		Codebase: codebases,
		Clock:    &fakeClock{},
		IDGen:    &incrementingIDGen{pre: "job"},
		Logger:   slog.Default(),
	}
	cfg := testConfig()

	manager := runner.NewManager(slog.Default())
	pool, err := manager.CreatePool("jobs", cfg.Jobs.MaxConcurrent, cfg.Jobs.DefaultTimeoutMs)
	require.NoError(t, err)
	defer pool.Shutdown(true)

	orch := NewJobOrchestrator(deps, cfg, pool)
	job, err := orch.CreateJob(context.Background(), CreateJobRequest{ProjectID: project.ID, Kind: model.KindAPIAnalysis})
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, job.Status)

	require.Eventually(t, func() bool {
		got, err := orch.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		return got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	final, err := orch.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, final.Status)
	require.Equal(t, model.TaskStatusDone, final.Metadata.Tasks["cleanup"].Status)
}

func TestOrchestrator_CancelJob_RejectsTerminalJob(t *testing.T) {
	jobs := newFakeJobRepo()
	jobs.jobs["done"] = &model.Job{ID: "done", Status: model.StatusCompleted, Metadata: model.NewJobMetadata()}
	projects := &fakeProjectRepo{}
	codebases := &fakeCodebaseRepo{codebases: map[string]*model.Codebase{}}
	deps := &Collaborators{Jobs: jobs, Projects: projects, Codebase: codebases, Clock: &fakeClock{}, IDGen: &incrementingIDGen{}, Logger: slog.Default()}
	cfg := testConfig()

	manager := runner.NewManager(slog.Default())
	pool, err := manager.CreatePool("jobs", cfg.Jobs.MaxConcurrent, cfg.Jobs.DefaultTimeoutMs)
	require.NoError(t, err)
	defer pool.Shutdown(false)

	orch := NewJobOrchestrator(deps, cfg, pool)
	_, err = orch.CancelJob(context.Background(), "done")
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.KindIllegalTransition, kind)
}
