package jobengine

import (
	"context"
	"strings"
)

// entrypointNames are symbol name suffixes FlowDiscover treats as
// userflow entrypoint candidates — the program's main function and the
// common HTTP handler signature shape.
var entrypointNames = []string{".main", "Handler", "HandleFunc", "ServeHTTP"}

// FlowDiscoverTask implements SPEC_FULL §4.4.6's FlowDiscover: walks the
// most recent CodeParse results for the job's codebase (if a prior
// CODEBASE_FULL/INCR job populated the graph) for entrypoint-shaped
// symbols as userflow candidates.
type FlowDiscoverTask struct {
	baseTask
	RecentCodeParse func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error)
}

// NewFlowDiscoverTask constructs the FlowDiscover task. lookup resolves
// the most recent CodeParse output available for the current job's
// codebase; it returns ok=false when none exists yet.
func NewFlowDiscoverTask(lookup func(ctx context.Context, jc *JobContext) (CodeParseResult, bool, error)) *FlowDiscoverTask {
	return &FlowDiscoverTask{RecentCodeParse: lookup}
}

func (t *FlowDiscoverTask) Name() string { return "flowDiscover" }

func (t *FlowDiscoverTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	parsed, ok, err := t.RecentCodeParse(ctx, jc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return FlowDiscoverResult{Entrypoints: []string{}}, nil
	}

	var entrypoints []string
	for _, file := range parsed.Results {
		for _, sym := range file.Symbols {
			if looksLikeEntrypoint(sym.Name) {
				entrypoints = append(entrypoints, file.Path+"#"+sym.Name)
			}
		}
	}
	if entrypoints == nil {
		entrypoints = []string{}
	}
	return FlowDiscoverResult{Entrypoints: entrypoints}, nil
}

func looksLikeEntrypoint(symbolName string) bool {
	for _, suffix := range entrypointNames {
		if strings.HasSuffix(symbolName, suffix) {
			return true
		}
	}
	return false
}
