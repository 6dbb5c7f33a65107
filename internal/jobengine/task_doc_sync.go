package jobengine

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
)

var docExtensions = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".txt": true,
}

// fileLister is the subset of git.Client DocSync needs.
type fileLister interface {
	IsValidRepo(dir string) bool
	ListFiles(ctx context.Context, dir string) ([]string, error)
}

// DocSyncTask implements SPEC_FULL §4.4.6's DocSync: lists documentation
// files in the project's working tree via GitClient.ListFiles, keeping
// the paths whose extension is in docExtensions.
type DocSyncTask struct {
	baseTask
	Git fileLister
}

// NewDocSyncTask constructs the DocSync task.
func NewDocSyncTask(client fileLister) *DocSyncTask {
	return &DocSyncTask{Git: client}
}

func (t *DocSyncTask) Name() string { return "docSync" }

func (t *DocSyncTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	if !t.Git.IsValidRepo(jc.CodebaseStoragePath) {
		return DocSyncResult{FilesFound: []string{}}, nil
	}

	files, err := t.Git.ListFiles(ctx, jc.CodebaseStoragePath)
	if err != nil {
		return nil, errors.Wrap(errors.KindGitError, "list files for doc sync", err)
	}

	var docs []string
	for _, f := range files {
		if docExtensions[strings.ToLower(filepath.Ext(f))] {
			docs = append(docs, f)
		}
	}
	if docs == nil {
		docs = []string{}
	}
	return DocSyncResult{FilesFound: docs}, nil
}
