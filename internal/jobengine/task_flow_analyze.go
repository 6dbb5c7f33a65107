package jobengine

import "context"

// FlowAnalyzeTask implements SPEC_FULL §4.4.6's FlowAnalyze: groups
// discovered entrypoints by file and records a count — no semantic
// flow-graph construction.
type FlowAnalyzeTask struct {
	baseTask
}

// NewFlowAnalyzeTask constructs the FlowAnalyze task.
func NewFlowAnalyzeTask() *FlowAnalyzeTask {
	return &FlowAnalyzeTask{baseTask: baseTask{requires: []string{"flowDiscover"}}}
}

func (t *FlowAnalyzeTask) Name() string { return "flowAnalyze" }

func (t *FlowAnalyzeTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	discoverAny, ok := jc.GetData("flowDiscover")
	if !ok {
		return nil, missingRequirementError("flowDiscover")
	}
	discover := discoverAny.(FlowDiscoverResult)

	byFile := make(map[string]int)
	for _, entry := range discover.Entrypoints {
		file := fileFromEntrypoint(entry)
		byFile[file]++
	}
	return FlowAnalyzeResult{FlowsByFile: byFile}, nil
}

func fileFromEntrypoint(entry string) string {
	for i := len(entry) - 1; i >= 0; i-- {
		if entry[i] == '#' {
			return entry[:i]
		}
	}
	return entry
}
