package git

import "context"

// DiffOp is the kind of change a Diff entry records, mirroring
// `git diff --name-status` op codes collapsed to four buckets.
type DiffOp string

const (
	DiffAdded    DiffOp = "ADDED"
	DiffModified DiffOp = "MODIFIED"
	DiffDeleted  DiffOp = "DELETED"
	DiffRenamed  DiffOp = "RENAMED"
)

// DiffEntry is one changed path between two commits.
type DiffEntry struct {
	Operation DiffOp
	Path      string
	OldPath   string // set only when Operation is DiffRenamed
}

// CloneOptions configures Clone.
type CloneOptions struct {
	Branch string
	Depth  int // 0 means full history
}

// Client is the contract GitSync depends on. Implementations must never
// prompt interactively and must mask credentials embedded in remote URLs
// out of any logged output.
type Client interface {
	// IsValidRepo reports whether dir is the root of a git working tree.
	IsValidRepo(dir string) bool

	// Clone clones url into dest at the given options.
	Clone(ctx context.Context, url, dest string, opts CloneOptions) error

	// Pull fast-forwards dir's current branch from its configured remote.
	Pull(ctx context.Context, dir string) error

	// CurrentCommit returns the full SHA of HEAD in dir.
	CurrentCommit(ctx context.Context, dir string) (string, error)

	// Diff lists the paths that changed between fromCommit and HEAD.
	Diff(ctx context.Context, dir, fromCommit string) ([]DiffEntry, error)

	// ListFiles lists every tracked file in dir at HEAD, repo-relative.
	ListFiles(ctx context.Context, dir string) ([]string, error)

	// DeleteRepo removes dir and everything under it.
	DeleteRepo(dir string) error
}
