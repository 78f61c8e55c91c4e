// Package storage implements the Storage Adapter: classifies a
// destination path as local or remote, hands out per-job staging
// directories, and performs a crash-safe stage-then-publish move to the
// final destination. Grounded primarily on
// original_source/infrastructure/storage/storage_adapter.py
// (StorageAdapter/LocalStorageAdapter/NASStorageAdapter), with the remote
// backends themselves (S3/R2, Google Drive) adapted from the teacher's
// internal/storage package.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"spatelier/internal/ledgererr"
)

// Adapter is the polymorphic interface spec.md §4.2 describes. Local and
// remote destinations satisfy it identically from the use-case layer's
// point of view.
type Adapter interface {
	IsRemote(path string) bool
	CanWriteTo(path string) bool
	StageDirFor(jobID int64) (string, error)
	Publish(ctx context.Context, srcFile, dstFile string) error
	Cleanup(stageDir string) error
}

// writeProbeName is the probe file CanWriteTo creates and removes,
// matching original_source's _WRITE_PROBE_NAME convention so operators
// who go looking for stray files recognize it.
const writeProbeName = ".spatelier_write_probe"

// canWriteTo is shared by every Adapter implementation: resolve the path,
// mkdir -p, write and remove a probe file, never leaving debris. Ported
// directly from StorageAdapter.can_write_to in
// infrastructure/storage/storage_adapter.py.
func canWriteTo(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(abs, writeProbeName)
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

// stageDirFor returns (creating if necessary) a job-scoped directory
// under base. Multiple concurrent jobs receive disjoint directories
// because each is keyed on jobID.
func stageDirFor(base string, jobID int64) (string, error) {
	dir := filepath.Join(base, fmt.Sprintf("%d", jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", ledgererr.Storage("create staging directory", err)
	}
	return dir, nil
}

// cleanup best-effort recursively removes dir; it never fails a job, per
// spec.md §4.2 ("best-effort recursive removal; never fails a job") and
// LocalStorageAdapter.cleanup_temp_dir / NASStorageAdapter.cleanup_temp_dir
// in the original, which both swallow errors behind a warning log.
func cleanup(dir string) error {
	_ = os.RemoveAll(dir)
	return nil
}
