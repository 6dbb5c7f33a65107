package jobengine

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
)

// DocProcessTask implements SPEC_FULL §4.4.6's DocProcess: a lightweight
// structural summary per doc file (heading count, word count, detected
// code fences) — no NLP.
type DocProcessTask struct {
	baseTask
}

// NewDocProcessTask constructs the DocProcess task.
func NewDocProcessTask() *DocProcessTask {
	return &DocProcessTask{baseTask: baseTask{requires: []string{"docSync"}}}
}

func (t *DocProcessTask) Name() string { return "docProcess" }

func (t *DocProcessTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	syncAny, ok := jc.GetData("docSync")
	if !ok {
		return nil, missingRequirementError("docSync")
	}
	sync := syncAny.(DocSyncResult)

	sections := make(map[string]DocStats, len(sync.FilesFound))
	for _, rel := range sync.FilesFound {
		abs := filepath.Join(jc.CodebaseStoragePath, rel)
		stats, err := summarizeDocFile(abs)
		if err != nil {
			continue // unreadable doc file: skip, not a pipeline failure
		}
		sections[rel] = stats
	}

	return DocProcessResult{FilesProcessed: len(sections), Sections: sections}, nil
}

func summarizeDocFile(path string) (DocStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return DocStats{}, err
	}
	defer f.Close()

	var stats DocStats
	inFence := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				stats.CodeFences++
			}
			inFence = !inFence
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			stats.Headings++
		}
		if trimmed != "" {
			stats.Words += len(strings.Fields(trimmed))
		}
	}
	return stats, scanner.Err()
}
