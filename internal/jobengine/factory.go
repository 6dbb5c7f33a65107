package jobengine

import (
	"context"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// BuildPipeline constructs the concrete Task instances for kind and wires
// them into a JobPipeline, using deps for every task's collaborator
// dependencies. recentCodeParse is consulted only by USERFLOW_ANALYSIS's
// FlowDiscover task.
func BuildPipeline(kind model.JobKind, deps *Collaborators, recentCodeParse func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error)) (*JobPipeline, error) {
	switch kind {
	case model.KindCodebaseFull, model.KindCodebaseIncr:
		return NewJobPipeline(kind, []Task{
			NewGitSyncTask(deps.Git),
			NewCodeParseTask(deps.Parsers),
			NewGraphUpdateTask(deps.Graph),
			NewCleanupTask(),
		})
	case model.KindDocsFull, model.KindDocsIncr:
		return NewJobPipeline(kind, []Task{
			NewDocSyncTask(deps.Git),
			NewDocProcessTask(),
			NewGraphUpdateTask(deps.Graph),
			NewCleanupTask(),
		})
	case model.KindAPIAnalysis:
		return NewJobPipeline(kind, []Task{
			NewApiDiscoverTask(deps.Git),
			NewApiAnalyzeTask(),
			NewGraphUpdateTask(deps.Graph),
			NewCleanupTask(),
		})
	case model.KindUserflowAnalysis:
		if recentCodeParse == nil {
			recentCodeParse = func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error) {
				return CodeParseResult{}, false, nil
			}
		}
		return NewJobPipeline(kind, []Task{
			NewFlowDiscoverTask(recentCodeParse),
			NewFlowAnalyzeTask(),
			NewGraphUpdateTask(deps.Graph),
			NewCleanupTask(),
		})
	default:
		return nil, errors.New(errors.KindInvalidRequest, "no pipeline factory for kind "+string(kind))
	}
}
