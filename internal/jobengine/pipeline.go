package jobengine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
	"github.com/process-failed-successfully/codegraph-indexer/internal/telemetry"
)

// pipelineOrder maps each job kind to its fixed ordered task list
// (spec.md §4.3).
var pipelineOrder = map[model.JobKind][]string{
	model.KindCodebaseFull:     {"gitSync", "codeParsing", "graphUpdate", "cleanup"},
	model.KindCodebaseIncr:     {"gitSync", "codeParsing", "graphUpdate", "cleanup"},
	model.KindDocsFull:         {"docSync", "docProcess", "graphUpdate", "cleanup"},
	model.KindDocsIncr:         {"docSync", "docProcess", "graphUpdate", "cleanup"},
	model.KindAPIAnalysis:      {"apiDiscover", "apiAnalyze", "graphUpdate", "cleanup"},
	model.KindUserflowAnalysis: {"flowDiscover", "flowAnalyze", "graphUpdate", "cleanup"},
}

// JobPipeline executes the ordered task list for one job kind, honoring
// spec.md §4.3's algorithm: sequential tasks, require-validation before
// execute, unconditional cleanup, and transition to the appropriate
// terminal status.
type JobPipeline struct {
	tasks map[string]Task
	order []string
}

// NewJobPipeline builds the pipeline for kind out of the given task
// instances, keyed by Task.Name().
func NewJobPipeline(kind model.JobKind, tasks []Task) (*JobPipeline, error) {
	order, ok := pipelineOrder[kind]
	if !ok {
		return nil, errors.New(errors.KindInvalidRequest, "no pipeline defined for kind "+string(kind))
	}

	byName := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byName[t.Name()] = t
	}
	for _, name := range order {
		if _, ok := byName[name]; !ok {
			return nil, errors.New(errors.KindInvalidRequest, "pipeline for kind "+string(kind)+" missing task "+name)
		}
	}

	return &JobPipeline{tasks: byName, order: order}, nil
}

// RunResult is the outcome of one pipeline execution.
type RunResult struct {
	Status     model.JobStatus
	Error      string
	ErrorStack string
}

// Run executes every task in order against jc, persisting progress via
// persist before each main task runs, and returns the terminal
// status the caller (JobOrchestrator) should transition the job row to.
// persist is called with the updated job metadata/currentTask/progress;
// Run itself never writes job.Status/StartedAt/CompletedAt, preserving
// the ownership split from spec.md §3.
//
// The trailing Cleanup task always runs once Run has been entered,
// regardless of whether the main task list completed, failed, or was
// cancelled mid-run (spec.md §4.3 step 3-5, confirmed by the Cleanup
// COMPLETED trace in the parser-failure and cancel-while-running
// scenarios of spec.md §8).
func (p *JobPipeline) Run(ctx context.Context, jc *JobContext, persist func(*model.Job) error) RunResult {
	mainOrder := p.order[:len(p.order)-1]
	cleanupName := p.order[len(p.order)-1]
	total := len(p.order)

	logger := telemetry.JobLogger(jc.Job.ID, string(jc.Job.Kind))

	var outcome *RunResult

	for i, name := range mainOrder {
		if ctx.Err() != nil {
			outcome = &RunResult{Status: model.StatusCancelled}
			break
		}

		task := p.tasks[name]
		if !task.ShouldRun(jc) {
			jc.Job.Metadata.Tasks[name] = model.TaskTrace{Status: model.TaskStatusSkipped}
			continue
		}

		jc.Job.CurrentTask = name
		jc.Job.Progress = int(math.Round(100 * float64(i) / float64(total)))
		if err := persist(jc.Job); err != nil {
			logger.Warn("progress persist failed", "task", name, "error", err)
		}

		trace := runOneTask(ctx, jc, task, name)
		jc.Job.Metadata.Tasks[name] = trace

		if name == "codeParsing" && trace.Status == model.TaskStatusDone {
			applyCodeParseCounters(jc)
		}

		if trace.Status == model.TaskStatusFailed {
			status := model.StatusFailed
			if errorsIsCancelled(trace.Error) {
				status = model.StatusCancelled
			}
			outcome = &RunResult{Status: status, Error: trace.Error}
			break
		}
	}

	if cleanupTask, ok := p.tasks[cleanupName]; ok {
		jc.Job.CurrentTask = cleanupName
		trace := runOneTask(context.Background(), jc, cleanupTask, cleanupName)
		jc.Job.Metadata.Tasks[cleanupName] = trace
	}

	if outcome != nil {
		return *outcome
	}
	jc.Job.Progress = 100
	return RunResult{Status: model.StatusCompleted}
}

// runOneTask runs the validate→execute→cleanup template for one task,
// converting panics and errors to a FAILED trace and always invoking
// Cleanup regardless of outcome.
func runOneTask(ctx context.Context, jc *JobContext, task Task, name string) (trace model.TaskTrace) {
	start := jc.Deps.Clock.Now()
	trace.Status = model.TaskStatusRunning
	trace.StartedAt = &start

	defer func() {
		if r := recover(); r != nil {
			trace.Status = model.TaskStatusFailed
			trace.Error = fmt.Sprintf("task %s panicked: %v", name, r)
		}
		end := jc.Deps.Clock.Now()
		trace.CompletedAt = &end
		d := end.Sub(start).Milliseconds()
		trace.DurationMs = &d
		telemetry.RecordTaskDuration(name, end.Sub(start).Seconds())

		if cleanupErr := task.Cleanup(jc); cleanupErr != nil {
			jc.Job.Metadata.Warnings = append(jc.Job.Metadata.Warnings,
				fmt.Sprintf("%s cleanup: %v", name, cleanupErr))
		}
	}()

	if err := task.Validate(jc); err != nil {
		trace.Status = model.TaskStatusFailed
		trace.Error = err.Error()
		return trace
	}

	value, err := task.Execute(ctx, jc)
	if err != nil {
		trace.Status = model.TaskStatusFailed
		trace.Error = err.Error()
		return trace
	}

	jc.SetData(name, value)
	trace.Status = model.TaskStatusDone
	return trace
}

func errorsIsCancelled(msg string) bool {
	return strings.Contains(msg, string(errors.KindCancelled))
}

// applyCodeParseCounters copies CodeParse's per-run totals into the job
// metadata the API surfaces (spec.md §4.2's metadata.counters), since
// jc.data is otherwise opaque to everything outside the pipeline.
func applyCodeParseCounters(jc *JobContext) {
	value, ok := jc.GetData("codeParsing")
	if !ok {
		return
	}
	result, ok := value.(CodeParseResult)
	if !ok {
		return
	}

	jc.Job.Metadata.Counters.FilesProcessed += result.FilesProcessed
	jc.Job.Metadata.Counters.SymbolsExtracted += result.SymbolsExtracted
	for lang, count := range result.PerLanguage {
		jc.Job.Metadata.PerLanguage[lang] += count
	}
}
