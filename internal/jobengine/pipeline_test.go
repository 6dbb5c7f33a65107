package jobengine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by a fixed step on every call so duration math
// never divides by zero.
type fakeClock struct{ t int64 }

func (c *fakeClock) Now() time.Time {
	c.t++
	return time.Unix(c.t, 0)
}

// fakeTask is a fully scriptable Task for exercising JobPipeline.Run
// without any real collaborator.
type fakeTask struct {
	name       string
	requires   []string
	shouldRun  bool
	execErr    error
	cleanupErr error
	cleanupHit *int32
	block      chan struct{} // if set, Execute waits on ctx.Done() or this channel
	started    chan struct{} // if set, closed the instant Execute begins
}

func (f *fakeTask) Name() string     { return f.name }
func (f *fakeTask) Requires() []string { return f.requires }
func (f *fakeTask) ShouldRun(jc *JobContext) bool { return f.shouldRun }

func (f *fakeTask) Validate(jc *JobContext) error {
	return validateRequires(jc, f.requires)
}

func (f *fakeTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, errors.New(errors.KindCancelled, "cancelled")
		case <-f.block:
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return "ok:" + f.name, nil
}

func (f *fakeTask) Cleanup(jc *JobContext) error {
	if f.cleanupHit != nil {
		atomic.AddInt32(f.cleanupHit, 1)
	}
	return f.cleanupErr
}

func (f *fakeTask) EstimateDurationMs() int64 { return 0 }

func newTestJobContext() *JobContext {
	job := &model.Job{ID: "job-1", Kind: model.KindCodebaseFull, Metadata: model.NewJobMetadata()}
	deps := &Collaborators{Clock: &fakeClock{}, Logger: slog.Default()}
	return NewJobContext(job, nil, nil, nil, deps)
}

func noopPersist(job *model.Job) error { return nil }

func TestPipeline_HappyPath_AllTasksCompleteThenCleanup(t *testing.T) {
	gitSync := &fakeTask{name: "gitSync", shouldRun: true}
	codeParse := &fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: true}
	graphUpdate := &fakeTask{name: "graphUpdate", requires: []string{"codeParsing"}, shouldRun: true}
	cleanupHits := int32(0)
	cleanup := &fakeTask{name: "cleanup", shouldRun: true, cleanupHit: &cleanupHits}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	result := p.Run(context.Background(), jc, noopPersist)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Equal(t, 100, jc.Job.Progress)
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["gitSync"].Status)
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["codeParsing"].Status)
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["graphUpdate"].Status)
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["cleanup"].Status)
	require.EqualValues(t, 1, atomic.LoadInt32(&cleanupHits))
}

// TestPipeline_ParserFailureHaltsPipeline mirrors spec.md §8 scenario 3:
// CodeParse fails, GraphUpdate never runs, but Cleanup still completes.
func TestPipeline_ParserFailureHaltsPipeline(t *testing.T) {
	gitSync := &fakeTask{name: "gitSync", shouldRun: true}
	parseErr := errors.New(errors.KindParseError, "syntax error in foo.py")
	codeParse := &fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: true, execErr: parseErr}
	graphUpdateHits := int32(0)
	graphUpdate := &fakeTask{name: "graphUpdate", requires: []string{"codeParsing"}, shouldRun: true, cleanupHit: &graphUpdateHits}
	cleanupHits := int32(0)
	cleanup := &fakeTask{name: "cleanup", shouldRun: true, cleanupHit: &cleanupHits}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	result := p.Run(context.Background(), jc, noopPersist)

	require.Equal(t, model.StatusFailed, result.Status)
	require.Contains(t, result.Error, "PARSE_ERROR")
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["gitSync"].Status)
	require.Equal(t, model.TaskStatusFailed, jc.Job.Metadata.Tasks["codeParsing"].Status)
	_, graphRan := jc.Job.Metadata.Tasks["graphUpdate"]
	require.False(t, graphRan, "graphUpdate must never run after codeParsing fails")
	require.EqualValues(t, 0, atomic.LoadInt32(&graphUpdateHits))
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["cleanup"].Status, "cleanup must still run")
	require.EqualValues(t, 1, atomic.LoadInt32(&cleanupHits))
}

// TestPipeline_CancellationWhileRunning mirrors spec.md §8 scenario 5:
// cancelling mid-GitSync still runs Cleanup and lands on CANCELLED.
func TestPipeline_CancellationWhileRunning(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	gitSync := &fakeTask{name: "gitSync", shouldRun: true, block: block, started: started}
	codeParse := &fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: true}
	graphUpdate := &fakeTask{name: "graphUpdate", requires: []string{"codeParsing"}, shouldRun: true}
	cleanupHits := int32(0)
	cleanup := &fakeTask{name: "cleanup", shouldRun: true, cleanupHit: &cleanupHits}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan RunResult, 1)
	go func() { done <- p.Run(ctx, jc, noopPersist) }()

	<-started
	cancel()
	result := <-done
	close(block)

	require.Equal(t, model.StatusCancelled, result.Status)
	require.Equal(t, model.TaskStatusFailed, jc.Job.Metadata.Tasks["gitSync"].Status)
	_, codeParseRan := jc.Job.Metadata.Tasks["codeParsing"]
	require.False(t, codeParseRan)
	require.Equal(t, model.TaskStatusDone, jc.Job.Metadata.Tasks["cleanup"].Status, "cleanup must still run after cancellation")
	require.EqualValues(t, 1, atomic.LoadInt32(&cleanupHits))
}

func TestPipeline_SkippedTaskRecordsSkippedStatus(t *testing.T) {
	gitSync := &fakeTask{name: "gitSync", shouldRun: true}
	codeParse := &fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: false}
	graphUpdate := &fakeTask{name: "graphUpdate", shouldRun: true}
	cleanup := &fakeTask{name: "cleanup", shouldRun: true}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	result := p.Run(context.Background(), jc, noopPersist)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Equal(t, model.TaskStatusSkipped, jc.Job.Metadata.Tasks["codeParsing"].Status)
}

func TestPipeline_MissingRequirementFailsValidation(t *testing.T) {
	codeParse := &fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: true}
	graphUpdate := &fakeTask{name: "graphUpdate", shouldRun: true}
	cleanup := &fakeTask{name: "cleanup", shouldRun: true}
	gitSync := &fakeTask{name: "gitSync", shouldRun: false}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	result := p.Run(context.Background(), jc, noopPersist)

	require.Equal(t, model.StatusFailed, result.Status)
	require.Equal(t, model.TaskStatusFailed, jc.Job.Metadata.Tasks["codeParsing"].Status)
	require.Contains(t, jc.Job.Metadata.Tasks["codeParsing"].Error, "gitSync")
}

// codeParseStubTask returns a fixed CodeParseResult instead of actually
// parsing anything, to exercise JobPipeline.Run's counters aggregation
// in isolation from CodeParseTask itself.
type codeParseStubTask struct {
	fakeTask
	result CodeParseResult
}

func (s *codeParseStubTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	return s.result, nil
}

// TestPipeline_CodeParseCountersAggregated mirrors spec.md §8 scenario
// 1: a completed CODEBASE_FULL job's metadata.counters reflects
// CodeParse's totals.
func TestPipeline_CodeParseCountersAggregated(t *testing.T) {
	gitSync := &fakeTask{name: "gitSync", shouldRun: true}
	codeParse := &codeParseStubTask{
		fakeTask: fakeTask{name: "codeParsing", requires: []string{"gitSync"}, shouldRun: true},
		result: CodeParseResult{
			FilesProcessed:   3,
			SymbolsExtracted: 9,
			PerLanguage:      map[string]int{"go": 2, "python": 1},
		},
	}
	graphUpdate := &fakeTask{name: "graphUpdate", requires: []string{"codeParsing"}, shouldRun: true}
	cleanup := &fakeTask{name: "cleanup", shouldRun: true}

	p, err := NewJobPipeline(model.KindCodebaseFull, []Task{gitSync, codeParse, graphUpdate, cleanup})
	require.NoError(t, err)

	jc := newTestJobContext()
	result := p.Run(context.Background(), jc, noopPersist)

	require.Equal(t, model.StatusCompleted, result.Status)
	require.Equal(t, 3, jc.Job.Metadata.Counters.FilesProcessed)
	require.Equal(t, 9, jc.Job.Metadata.Counters.SymbolsExtracted)
	require.Equal(t, 2, jc.Job.Metadata.PerLanguage["go"])
	require.Equal(t, 1, jc.Job.Metadata.PerLanguage["python"])
}

func TestNewJobPipeline_MissingTaskForKindErrors(t *testing.T) {
	_, err := NewJobPipeline(model.KindCodebaseFull, []Task{&fakeTask{name: "gitSync"}})
	require.Error(t, err)
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.KindInvalidRequest, kind)
}
