package jobengine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/config"
	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/process-failed-successfully/codegraph-indexer/internal/notify"
	"github.com/process-failed-successfully/codegraph-indexer/internal/runner"
	"github.com/process-failed-successfully/codegraph-indexer/internal/telemetry"
)

// runningJob is the in-memory bookkeeping kept alongside the persisted
// row for every PENDING or RUNNING job (spec.md §5: "in-memory
// running-jobs map... insertions on submit, deletion on future
// completion").
type runningJob struct {
	mu     sync.Mutex
	status model.JobStatus
}

// JobOrchestrator is the public façade: it validates requests, owns the
// job state machine, and hands execution to a runner.Pool while
// JobPipeline drives the per-job task sequence (spec.md §4.2).
type JobOrchestrator struct {
	deps    *Collaborators
	cfg     *config.EngineConfig
	pool    *runner.Pool
	timeout *JobTimeoutPolicy
	logger  *slog.Logger

	mu      sync.Mutex
	running map[string]*runningJob
	rowMu   map[string]*sync.Mutex // per-job row-write serialization (spec.md §5)

	startedAt time.Time
}

// NewJobOrchestrator wires an orchestrator against its collaborators,
// config, and the pool it submits pipeline executions to.
func NewJobOrchestrator(deps *Collaborators, cfg *config.EngineConfig, pool *runner.Pool) *JobOrchestrator {
	return &JobOrchestrator{
		deps:      deps,
		cfg:       cfg,
		pool:      pool,
		timeout:   NewJobTimeoutPolicy(cfg),
		logger:    deps.Logger,
		running:   make(map[string]*runningJob),
		rowMu:     make(map[string]*sync.Mutex),
		startedAt: time.Now(),
	}
}

// CreateJobRequest is CreateJob's input (spec.md §4.2).
type CreateJobRequest struct {
	ProjectID   string
	CodebaseID  string
	Kind        model.JobKind
	BaseCommit  string
	Priority    int
	Description string
	Trigger     model.JobTrigger
}

// CreateJob validates the request, persists a PENDING row, and submits
// it to the pool. It returns the persisted row (not yet started).
func (o *JobOrchestrator) CreateJob(ctx context.Context, req CreateJobRequest) (*model.Job, error) {
	if !req.Kind.Valid() {
		return nil, errors.New(errors.KindInvalidRequest, "unknown job kind "+string(req.Kind))
	}

	project, err := o.deps.Projects.Find(ctx, req.ProjectID)
	if err != nil {
		return nil, errors.Wrap(errors.KindProjectNotFound, "find project", err)
	}
	if project == nil {
		return nil, errors.New(errors.KindProjectNotFound, "project "+req.ProjectID+" not found")
	}

	var codebase *model.Codebase
	if req.Kind.RequiresCodebase() {
		if req.CodebaseID == "" {
			return nil, errors.New(errors.KindInvalidRequest, string(req.Kind)+" requires codebaseId")
		}
		codebase, err = o.deps.Codebase.Find(ctx, req.CodebaseID)
		if err != nil {
			return nil, errors.Wrap(errors.KindCodebaseNotFound, "find codebase", err)
		}
		if codebase == nil {
			return nil, errors.New(errors.KindCodebaseNotFound, "codebase "+req.CodebaseID+" not found")
		}
		if codebase.ProjectID != req.ProjectID {
			return nil, errors.New(errors.KindCodebaseProjectMismatch, "codebase "+req.CodebaseID+" does not belong to project "+req.ProjectID)
		}
		if req.Kind.RequiresBaseCommit() && req.BaseCommit == "" {
			return nil, errors.New(errors.KindInvalidRequest, string(req.Kind)+" requires baseCommit")
		}

		active, err := o.deps.Jobs.FindActiveForCodebase(ctx, req.CodebaseID)
		if err != nil {
			return nil, errors.Wrap(errors.KindPersistenceError, "check active jobs for codebase", err)
		}
		if active != nil {
			return nil, errors.New(errors.KindConcurrentCodebaseJob, "codebase "+req.CodebaseID+" already has an active job "+active.ID)
		}
	}

	now := o.deps.Clock.Now()
	job := &model.Job{
		ID:          o.deps.IDGen.NewJobID(),
		Kind:        req.Kind,
		Status:      model.StatusPending,
		Priority:    req.Priority,
		Trigger:     req.Trigger,
		ProjectID:   req.ProjectID,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    model.NewJobMetadata(),
	}
	if codebase != nil {
		id := codebase.ID
		job.CodebaseID = &id
	}
	if req.BaseCommit != "" {
		bc := req.BaseCommit
		job.BaseCommit = &bc
	}

	if err := o.persistWithRetry(ctx, job); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.running[job.ID] = &runningJob{status: model.StatusPending}
	o.mu.Unlock()

	// execute() mutates job on a pool goroutine once it is submitted, so
	// the caller gets a copy taken while the row is still PENDING.
	snapshot := *job
	snapshot.Metadata = model.NewJobMetadata()

	timeoutMs := o.timeout.TimeoutFor(job.Kind)
	future, err := o.pool.Submit(runner.Task{
		ID:        job.ID,
		Priority:  job.Priority,
		TimeoutMs: timeoutMs,
		Fn: func(taskCtx context.Context) (any, error) {
			o.execute(taskCtx, job, project, codebase)
			return nil, nil
		},
	})
	if err != nil {
		job.Status = model.StatusFailed
		job.Error = "capacity exceeded: " + err.Error()
		_ = o.persistWithRetry(ctx, job)
		o.mu.Lock()
		delete(o.running, job.ID)
		o.mu.Unlock()
		return nil, errors.Wrap(errors.KindCapacityExceeded, "submit job to pool", err)
	}
	go o.watchTimeout(job.ID, future)

	return &snapshot, nil
}

// watchTimeout is a backstop against a task body that never observes
// ctx: the pool's Future resolves the instant the job's deadline
// expires, independent of whether execute() has returned. If the job
// row is still non-terminal when that happens, this forces it to
// FAILED/TIMEOUT directly so spec.md §8 scenario 6 holds even for a
// task whose blocking call ignores cancellation.
func (o *JobOrchestrator) watchTimeout(jobID string, future *runner.Future) {
	_, err := future.Await(context.Background())
	if !runner.IsTimeoutError(err) {
		return
	}

	job, findErr := o.deps.Jobs.Find(context.Background(), jobID)
	if findErr != nil || job == nil || job.Status.IsTerminal() {
		return
	}

	timeoutErr := errors.Wrap(errors.KindTimeout, "job "+jobID+" exceeded its deadline", err)
	if trace, ok := job.Metadata.Tasks[job.CurrentTask]; ok && trace.Status == model.TaskStatusRunning {
		trace.Status = model.TaskStatusFailed
		trace.Error = timeoutErr.Error()
		job.Metadata.Tasks[job.CurrentTask] = trace
	}
	job.Status = model.StatusFailed
	job.Error = timeoutErr.Error()
	completed := o.deps.Clock.Now()
	job.CompletedAt = &completed
	job.UpdatedAt = completed

	if err := o.persistWithRetry(context.Background(), job); err != nil {
		o.logger.Error("failed to persist timeout backstop", "job_id", jobID, "error", err)
	}
	telemetry.RecordJobTerminal(string(job.Kind), string(job.Status))
	o.notify(context.Background(), notify.EventJobFailed, job, job.Error)

	o.mu.Lock()
	delete(o.running, jobID)
	o.mu.Unlock()
}

// execute runs a submitted job's pipeline and drives its state machine
// through RUNNING to a terminal status. It is the runner.Task.Fn body,
// invoked by the pool on a worker goroutine.
func (o *JobOrchestrator) execute(ctx context.Context, job *model.Job, project *model.Project, codebase *model.Codebase) {
	defer func() {
		o.mu.Lock()
		delete(o.running, job.ID)
		o.mu.Unlock()
	}()

	o.mu.Lock()
	rj, tracked := o.running[job.ID]
	o.mu.Unlock()
	if tracked {
		rj.mu.Lock()
		rj.status = model.StatusRunning
		rj.mu.Unlock()
	}

	started := o.deps.Clock.Now()
	job.Status = model.StatusRunning
	job.StartedAt = &started
	if err := o.persistWithRetry(ctx, job); err != nil {
		job.Status = model.StatusFailed
		job.Error = err.Error()
		o.finish(ctx, job)
		return
	}
	telemetry.RecordJobStarted(string(job.Kind))
	o.notify(ctx, notify.EventJobStarted, job, "")

	jc := o.buildJobContext(job, project, codebase)
	pipeline, err := BuildPipeline(job.Kind, o.deps, o.recentCodeParseFor(codebase))
	if err != nil {
		job.Status = model.StatusFailed
		job.Error = err.Error()
		o.finish(ctx, job)
		return
	}

	result := pipeline.Run(ctx, jc, func(j *model.Job) error {
		j.UpdatedAt = o.deps.Clock.Now()
		return o.persistWithRetry(ctx, j)
	})

	job.Status = result.Status
	job.Error = result.Error
	job.ErrorStack = result.ErrorStack
	o.finish(ctx, job)
}

// finish stamps completedAt, persists the terminal row, and notifies.
func (o *JobOrchestrator) finish(ctx context.Context, job *model.Job) {
	completed := o.deps.Clock.Now()
	job.CompletedAt = &completed
	job.UpdatedAt = completed
	if err := o.persistWithRetry(ctx, job); err != nil {
		o.logger.Error("failed to persist terminal job state", "job_id", job.ID, "error", err)
	}
	telemetry.RecordJobTerminal(string(job.Kind), string(job.Status))

	switch job.Status {
	case model.StatusCompleted:
		o.notify(ctx, notify.EventJobCompleted, job, "")
	case model.StatusCancelled:
		o.notify(ctx, notify.EventJobCancelled, job, job.Error)
	default:
		o.notify(ctx, notify.EventJobFailed, job, job.Error)
	}
}

func (o *JobOrchestrator) notify(ctx context.Context, kind notify.EventKind, job *model.Job, msg string) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, notify.Event{
		Kind:    kind,
		JobID:   job.ID,
		JobKind: string(job.Kind),
		Message: msg,
	}); err != nil {
		o.logger.Warn("notifier failed", "job_id", job.ID, "error", err)
	}
}

// buildJobContext lays out the per-job filesystem locations from
// spec.md §6's Filesystem layout.
func (o *JobOrchestrator) buildJobContext(job *model.Job, project *model.Project, codebase *model.Codebase) *JobContext {
	jc := NewJobContext(job, project, codebase, o.cfg, o.deps)
	jc.WorkingDir = filepath.Join("/tmp", "indexer", "jobs", job.ID)
	jc.TempDir = filepath.Join(jc.WorkingDir, "temp")
	if codebase != nil {
		jc.CodebaseStoragePath = filepath.Join(o.cfg.Storage.Root, "codebases", codebase.ID)
	}
	jc.StartedAt = o.deps.Clock.Now()
	return jc
}

// recentCodeParseFor builds the lookup FlowDiscover uses for a prior
// CodeParse output. It scans the codebase's recent completed jobs for a
// finished codeParsing trace, but it reports ok=false in every case,
// including when such a trace exists: full parsed symbol tables are not
// retained across jobs, so there is no CodeParseResult to return.
// FlowDiscoverTask then falls back to an empty entrypoint set.
func (o *JobOrchestrator) recentCodeParseFor(codebase *model.Codebase) func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error) {
	return func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error) {
		if codebase == nil {
			return CodeParseResult{}, false, nil
		}
		recents, err := o.deps.Jobs.FindRecentForCodebase(ctx, codebase.ID, 20)
		if err != nil {
			return CodeParseResult{}, false, err
		}
		for _, j := range recents {
			if j.Status != model.StatusCompleted {
				continue
			}
			if trace, ok := j.Metadata.Tasks["codeParsing"]; ok && trace.Status == model.TaskStatusDone {
				return CodeParseResult{}, false, nil
			}
		}
		return CodeParseResult{}, false, nil
	}
}

// GetJob returns the current persisted snapshot of id.
func (o *JobOrchestrator) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := o.deps.Jobs.Find(ctx, id)
	if err != nil {
		return nil, errors.Wrap(errors.KindJobNotFound, "find job", err)
	}
	if job == nil {
		return nil, errors.New(errors.KindJobNotFound, "job "+id+" not found")
	}
	return job, nil
}

// CancelJob transitions id to CANCELLED from PENDING or RUNNING. A
// queued job is removed from the pool and transitioned immediately; a
// running job is signaled cooperatively and transitions once its
// pipeline observes the cancellation between tasks (spec.md §5).
func (o *JobOrchestrator) CancelJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := o.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, errors.New(errors.KindIllegalTransition, "job "+id+" is already "+string(job.Status))
	}

	if o.pool.CancelQueued(id) {
		job.Status = model.StatusCancelled
		job.Error = "cancelled while queued"
		completed := o.deps.Clock.Now()
		job.CompletedAt = &completed
		job.UpdatedAt = completed
		if err := o.persistWithRetry(ctx, job); err != nil {
			return nil, err
		}
		o.mu.Lock()
		delete(o.running, id)
		o.mu.Unlock()
		o.notify(ctx, notify.EventJobCancelled, job, job.Error)
		return job, nil
	}

	if o.pool.CancelRunning(id) {
		return job, nil
	}

	return nil, errors.New(errors.KindIllegalTransition, "job "+id+" is not cancellable")
}

// JobsForCodebase is ListJobsForCodebase's result shape.
type JobsForCodebase struct {
	Active []*model.Job
	Recent []*model.Job
}

// ListJobsForCodebase returns the active job (if any) and up to the 20
// most recent terminal jobs for codebaseID.
func (o *JobOrchestrator) ListJobsForCodebase(ctx context.Context, codebaseID string) (*JobsForCodebase, error) {
	active, err := o.deps.Jobs.FindActiveForCodebase(ctx, codebaseID)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistenceError, "find active jobs", err)
	}
	recent, err := o.deps.Jobs.FindRecentForCodebase(ctx, codebaseID, 20)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistenceError, "find recent jobs", err)
	}

	result := &JobsForCodebase{}
	for _, j := range recent {
		if j.Status.IsTerminal() {
			result.Recent = append(result.Recent, j)
		}
	}
	if active != nil {
		result.Active = []*model.Job{active}
	}
	return result, nil
}

// SystemStatus reports a point-in-time snapshot of orchestrator health.
type SystemStatus struct {
	RunningJobs int
	ActiveIDs   []string
	Utilization float64
	PoolHealth  runner.Stats
	Uptime      time.Duration
}

// SystemStatus summarizes the pool's current load and the orchestrator's
// uptime.
func (o *JobOrchestrator) SystemStatus() SystemStatus {
	stats := o.pool.Stats()

	o.mu.Lock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	utilization := 0.0
	if stats.Capacity > 0 {
		utilization = float64(stats.InFlight) / float64(stats.Capacity)
	}

	return SystemStatus{
		RunningJobs: stats.InFlight,
		ActiveIDs:   ids,
		Utilization: utilization,
		PoolHealth:  stats,
		Uptime:      time.Since(o.startedAt),
	}
}

// persistWithRetry implements spec.md §7's persistence-failure policy:
// a single retry, then PERSISTENCE_ERROR. Row writes are serialized per
// job id (spec.md §5).
func (o *JobOrchestrator) persistWithRetry(ctx context.Context, job *model.Job) error {
	mu := o.rowMutex(job.ID)
	mu.Lock()
	defer mu.Unlock()

	err := o.deps.Jobs.Save(ctx, job)
	if err == nil {
		return nil
	}
	o.logger.Warn("job save failed, retrying once", "job_id", job.ID, "error", err)

	err = o.deps.Jobs.Save(ctx, job)
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.KindPersistenceError, fmt.Sprintf("persist job %s after retry", job.ID), err)
}

func (o *JobOrchestrator) rowMutex(jobID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	mu, ok := o.rowMu[jobID]
	if !ok {
		mu = &sync.Mutex{}
		o.rowMu[jobID] = mu
	}
	return mu
}
