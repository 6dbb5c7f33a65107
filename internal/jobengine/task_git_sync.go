package jobengine

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/process-failed-successfully/codegraph-indexer/internal/errors"
	"github.com/process-failed-successfully/codegraph-indexer/internal/fsutil"
	"github.com/process-failed-successfully/codegraph-indexer/internal/git"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"
)

// GitSyncTask implements spec.md §4.4.1. It clones a codebase fresh for
// CODEBASE_FULL (or when no prior checkout exists) and pulls+diffs for
// CODEBASE_INCR against an existing checkout.
type GitSyncTask struct {
	baseTask
	Git git.Client
}

// NewGitSyncTask constructs the GitSync task.
func NewGitSyncTask(client git.Client) *GitSyncTask {
	return &GitSyncTask{Git: client}
}

func (t *GitSyncTask) Name() string { return "gitSync" }

func (t *GitSyncTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	path := jc.CodebaseStoragePath
	incremental := jc.Job.Kind == model.KindCodebaseIncr && t.Git.IsValidRepo(path)

	if incremental {
		return t.runIncremental(ctx, jc, path)
	}
	return t.runFull(ctx, jc, path)
}

func (t *GitSyncTask) runFull(ctx context.Context, jc *JobContext, path string) (any, error) {
	if t.Git.IsValidRepo(path) {
		if err := t.Git.DeleteRepo(path); err != nil {
			return nil, wrapExecError(ctx, errors.KindGitError, "remove stale checkout", err)
		}
	}

	opts := git.CloneOptions{Branch: jc.Codebase.Branch}
	if jc.Config.Git.Shallow {
		opts.Depth = 1
	}
	if err := t.Git.Clone(ctx, jc.Codebase.RemoteURL, path, opts); err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "clone codebase", err)
	}

	commit, err := t.Git.CurrentCommit(ctx, path)
	if err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "read HEAD after clone", err)
	}

	files, err := t.Git.ListFiles(ctx, path)
	if err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "list files after clone", err)
	}
	normalized := normalizeAll(files)
	sort.Strings(normalized)

	return GitSyncResult{
		ClonePath:    path,
		CommitHash:   commit,
		FilesAdded:   normalized,
		FilesChanged: []string{},
		FilesDeleted: []string{},
	}, nil
}

func (t *GitSyncTask) runIncremental(ctx context.Context, jc *JobContext, path string) (any, error) {
	before, err := t.Git.CurrentCommit(ctx, path)
	if err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "read HEAD before pull", err)
	}

	if err := t.Git.Pull(ctx, path); err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "pull codebase", err)
	}

	after, err := t.Git.CurrentCommit(ctx, path)
	if err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "read HEAD after pull", err)
	}

	result := GitSyncResult{
		ClonePath:    path,
		CommitHash:   after,
		FilesAdded:   []string{},
		FilesChanged: []string{},
		FilesDeleted: []string{},
	}
	if before == after {
		return result, nil
	}

	entries, err := t.Git.Diff(ctx, path, before)
	if err != nil {
		return nil, wrapExecError(ctx, errors.KindGitError, "diff codebase", err)
	}

	for _, e := range entries {
		switch e.Operation {
		case git.DiffAdded:
			result.FilesAdded = append(result.FilesAdded, fsutil.NormalizePath(e.Path))
		case git.DiffModified:
			result.FilesChanged = append(result.FilesChanged, fsutil.NormalizePath(e.Path))
		case git.DiffDeleted:
			result.FilesDeleted = append(result.FilesDeleted, fsutil.NormalizePath(e.Path))
		case git.DiffRenamed:
			result.FilesDeleted = append(result.FilesDeleted, fsutil.NormalizePath(e.OldPath))
			result.FilesAdded = append(result.FilesAdded, fsutil.NormalizePath(e.Path))
		}
	}
	sort.Strings(result.FilesAdded)
	sort.Strings(result.FilesChanged)
	sort.Strings(result.FilesDeleted)
	return result, nil
}

func normalizeAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = fsutil.NormalizePath(filepath.ToSlash(p))
	}
	return out
}
