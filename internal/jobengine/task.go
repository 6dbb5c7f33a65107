package jobengine

import (
	"context"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
)

// Task is the contract every pipeline step implements. Tasks hold no
// per-job state; all mutable state lives in the JobContext passed to
// each method (spec.md §3, Task).
type Task interface {
	// Name is also the key Task's output is written under in
	// JobContext.data and Job.Metadata.Tasks.
	Name() string

	// Requires lists other task names whose data entry must exist
	// before this task can run.
	Requires() []string

	// ShouldRun decides whether this task applies to the current job.
	// Most tasks always return true; Cleanup always returns true.
	ShouldRun(jc *JobContext) bool

	// Validate checks that every entry in Requires() is present in
	// jc.data. JobPipeline calls this before Execute.
	Validate(jc *JobContext) error

	// Execute runs the task's body under ctx's deadline and returns the
	// value to store at jc.data[Name()] on success.
	Execute(ctx context.Context, jc *JobContext) (any, error)

	// Cleanup runs unconditionally after Execute, success or failure.
	// Cleanup errors are demoted to warnings by JobPipeline and never
	// change the task's recorded outcome.
	Cleanup(jc *JobContext) error

	// EstimateDurationMs returns a rough expected wall-clock cost in
	// milliseconds; 0 means no estimate is available. No caller in this
	// module reads it, and every task here returns 0.
	EstimateDurationMs() int64
}

// baseTask provides the common no-op ShouldRun/Cleanup/Requires bodies
// concrete tasks embed and override selectively.
type baseTask struct {
	requires []string
}

func (b baseTask) Requires() []string { return b.requires }

func (b baseTask) ShouldRun(jc *JobContext) bool { return true }

func (b baseTask) Validate(jc *JobContext) error {
	return validateRequires(jc, b.requires)
}

func (b baseTask) Cleanup(jc *JobContext) error { return nil }

func (b baseTask) EstimateDurationMs() int64 { return 0 }

// wrapExecError tags err with kind, unless ctx was cancelled or timed
// out first, in which case the cancellation/deadline takes priority so
// a task's blocking call failing because of ctx looks like CANCELLED or
// TIMEOUT rather than whatever kind its own plumbing would otherwise
// report.
func wrapExecError(ctx context.Context, kind errors.ErrorKind, message string, cause error) error {
	switch ctx.Err() {
	case context.Canceled:
		return errors.Wrap(errors.KindCancelled, message, ctx.Err())
	case context.DeadlineExceeded:
		return errors.Wrap(errors.KindTimeout, message, ctx.Err())
	default:
		return errors.Wrap(kind, message, cause)
	}
}

func validateRequires(jc *JobContext, requires []string) error {
	for _, r := range requires {
		if !jc.HasData(r) {
			return missingRequirementError(r)
		}
	}
	return nil
}
