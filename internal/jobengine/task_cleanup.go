package jobengine

import (
	"context"
	"os"
	"path/filepath"
)

// CleanupTask implements spec.md §4.4.4. It always runs and never fails
// the pipeline; a directory it cannot remove is recorded as a warning on
// the job.
type CleanupTask struct {
	baseTask
}

// NewCleanupTask constructs the Cleanup task.
func NewCleanupTask() *CleanupTask {
	return &CleanupTask{}
}

func (t *CleanupTask) Name() string { return "cleanup" }

func (t *CleanupTask) ShouldRun(jc *JobContext) bool { return true }

func (t *CleanupTask) Execute(ctx context.Context, jc *JobContext) (any, error) {
	result := CleanupResult{}

	if jc.Config.Cleanup.DeleteTemp && jc.TempDir != "" {
		removed, freed, err := removeDirCounting(jc.TempDir)
		result.TempFilesRemoved += removed
		result.BytesFreed += freed
		if err != nil {
			jc.Job.Metadata.Warnings = append(jc.Job.Metadata.Warnings, "cleanup: remove "+jc.TempDir+": "+err.Error())
		}
	}
	if jc.Config.Cleanup.DeleteWorkingDir && jc.WorkingDir != "" {
		removed, freed, err := removeDirCounting(jc.WorkingDir)
		result.TempFilesRemoved += removed
		result.BytesFreed += freed
		if err != nil {
			jc.Job.Metadata.Warnings = append(jc.Job.Metadata.Warnings, "cleanup: remove "+jc.WorkingDir+": "+err.Error())
		}
	}

	return result, nil
}

func removeDirCounting(dir string) (filesRemoved int, bytesFreed int64, err error) {
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		filesRemoved++
		bytesFreed += info.Size()
		return nil
	})
	err = os.RemoveAll(dir)
	return filesRemoved, bytesFreed, err
}
