// Package model defines the domain entities shared across the job
// orchestration engine: Job, Project, Codebase, and the per-job metadata
// persisted alongside them.
package model

import "time"

// JobKind discriminates the task list a job runs (see JobPipeline).
type JobKind string

const (
	KindCodebaseFull      JobKind = "CODEBASE_FULL"
	KindCodebaseIncr      JobKind = "CODEBASE_INCR"
	KindDocsFull          JobKind = "DOCS_FULL"
	KindDocsIncr          JobKind = "DOCS_INCR"
	KindAPIAnalysis       JobKind = "API_ANALYSIS"
	KindUserflowAnalysis  JobKind = "USERFLOW_ANALYSIS"
)

// JobStatus is the job lifecycle state. Transitions are enforced by
// JobOrchestrator; see its state machine documentation.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

// JobTrigger records what caused a job to be submitted.
type JobTrigger string

const (
	TriggerManual    JobTrigger = "MANUAL"
	TriggerWebhook   JobTrigger = "WEBHOOK"
	TriggerScheduled JobTrigger = "SCHEDULED"
)

// TaskStatus is the per-task outcome recorded in a job's metadata trace.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusRunning TaskStatus = "RUNNING"
	TaskStatusDone    TaskStatus = "COMPLETED"
	TaskStatusSkipped TaskStatus = "SKIPPED"
	TaskStatusFailed  TaskStatus = "FAILED"
)

// TaskTrace is one entry of Job.Metadata.Tasks, written exclusively by
// JobPipeline as each task runs.
type TaskTrace struct {
	Status      TaskStatus `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    *int       `json:"progress,omitempty"`
}

// Counters aggregates cross-task totals for a job run.
type Counters struct {
	FilesProcessed   int `json:"filesProcessed"`
	SymbolsExtracted int `json:"symbolsExtracted"`
	LinesOfCode      int `json:"linesOfCode"`
}

// JobMetadata is the free-form-in-spirit, typed-in-practice JSON blob
// persisted on the job row.
type JobMetadata struct {
	Tasks        map[string]TaskTrace `json:"tasks"`
	Counters     Counters             `json:"counters"`
	PerLanguage  map[string]int       `json:"perLanguage"`
	Warnings     []string             `json:"warnings"`
	Errors       []string             `json:"errors"`
}

// NewJobMetadata returns an initialized, empty JobMetadata.
func NewJobMetadata() JobMetadata {
	return JobMetadata{
		Tasks:       make(map[string]TaskTrace),
		PerLanguage: make(map[string]int),
	}
}

// Job is the persisted unit of work the orchestrator manages.
type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Priority   int        `json:"priority"`
	Trigger    JobTrigger `json:"trigger"`

	ProjectID  string  `json:"projectId"`
	CodebaseID *string `json:"codebaseId,omitempty"`

	BaseCommit  *string `json:"baseCommit,omitempty"`
	Description string  `json:"description,omitempty"`

	CurrentTask string `json:"currentTask,omitempty"`
	Progress    int    `json:"progress"`
	RetryCount  int    `json:"retryCount"`
	Error       string `json:"error,omitempty"`
	ErrorStack  string `json:"errorStack,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Metadata JobMetadata `json:"metadata"`
}

// IsTerminal reports whether status is one of the three terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RequiresCodebase reports whether a job of this kind must carry a
// CodebaseID.
func (k JobKind) RequiresCodebase() bool {
	switch k {
	case KindCodebaseFull, KindCodebaseIncr:
		return true
	default:
		return false
	}
}

// RequiresBaseCommit reports whether a job of this kind must carry a
// BaseCommit.
func (k JobKind) RequiresBaseCommit() bool {
	return k == KindCodebaseIncr
}

// Valid reports whether k is one of the six recognized job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindCodebaseFull, KindCodebaseIncr, KindDocsFull, KindDocsIncr, KindAPIAnalysis, KindUserflowAnalysis:
		return true
	default:
		return false
	}
}

// Project is a user-owned unit that codebases and analyses are scoped to.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Codebase is a remote Git repository at a specific branch, tied to a
// project.
type Codebase struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	RemoteURL string    `json:"remoteUrl"`
	Branch    string    `json:"branch"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
