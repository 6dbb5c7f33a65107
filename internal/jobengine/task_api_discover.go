package jobengine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
)

// ApiDiscoverTask implements SPEC_FULL §4.4.6's ApiDiscover: scans the
// project's codebase for common API-definition file patterns
// (OpenAPI/Swagger YAML/JSON, *.proto).
type ApiDiscoverTask struct {
	baseTask
	Git fileLister
}

// NewApiDiscoverTask constructs the ApiDiscover task.
func NewApiDiscoverTask(client fileLister) *ApiDiscoverTask {
	return &ApiDiscoverTask{Git: client}
}

func (t *ApiDiscoverTask) Name() string { return "apiDiscover" }

func (t *ApiDiscoverTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	if !t.Git.IsValidRepo(jc.CodebaseStoragePath) {
		return ApiDiscoverResult{CandidateFiles: []string{}}, nil
	}

	files, err := t.Git.ListFiles(ctx, jc.CodebaseStoragePath)
	if err != nil {
		return nil, errors.Wrap(errors.KindGitError, "list files for api discovery", err)
	}

	var candidates []string
	for _, f := range files {
		if isAPIDefinitionFile(f) {
			candidates = append(candidates, f)
		}
	}
	if candidates == nil {
		candidates = []string{}
	}
	return ApiDiscoverResult{CandidateFiles: candidates}, nil
}

func isAPIDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))
	if ext == ".proto" {
		return true
	}
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return false
	}
	return strings.Contains(base, "openapi") || strings.Contains(base, "swagger")
}
