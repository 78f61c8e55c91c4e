package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"spatelier/internal/ledgererr"
)

// LocalStorage handles destinations on the local file system, including
// NAS mounts reachable through the local filesystem namespace. Ported from
// LocalStorageAdapter in infrastructure/storage/storage_adapter.py, merged
// with NASStorageAdapter: both use the same move-based publish, differing
// in the original only by whether is_remote classifies the destination as
// NAS. Here that single classification question is delegated to a
// Classifier (classifier.go) instead of a second adapter type, so the
// use-case layer's "classify via Storage Adapter" step (spec.md §4.5) is
// answered by one call regardless of whether the destination happens to
// sit on a network mount.
type LocalStorage struct {
	tempDir    string
	classifier Classifier
}

// NewLocalStorage builds a LocalStorage staging under tempDir. classifier
// may be nil, in which case every destination is treated as a plain local
// path (IsRemote always false) and no staging directory is ever used for
// downloads outside of explicit per-job temp needs.
func NewLocalStorage(tempDir string, classifier Classifier) *LocalStorage {
	return &LocalStorage{tempDir: tempDir, classifier: classifier}
}

// IsRemote reports whether path is classified as a NAS/network
// destination, per the configured Classifier. A LocalStorage adapter
// still performs the move with plain filesystem calls either way — this
// only governs whether the use-case layer stages into a temp directory
// first (spec.md §4.5 step 3).
func (s *LocalStorage) IsRemote(path string) bool {
	if s.classifier == nil {
		return false
	}
	return s.classifier.IsRemote(path)
}

// CanWriteTo probes path for write access.
func (s *LocalStorage) CanWriteTo(path string) bool { return canWriteTo(path) }

// StageDirFor returns a job-scoped temp directory.
func (s *LocalStorage) StageDirFor(jobID int64) (string, error) {
	return stageDirFor(s.tempDir, jobID)
}

// Publish moves srcFile to dstFile. An atomic rename is attempted first;
// when src and dst differ in device (cross-filesystem), it falls back to
// copy+fsync+unlink so the source remains intact on any failure, per
// spec.md §4.2.
func (s *LocalStorage) Publish(ctx context.Context, srcFile, dstFile string) error {
	if err := os.MkdirAll(filepath.Dir(dstFile), 0o755); err != nil {
		return ledgererr.Storage("create destination directory", err)
	}

	if err := os.Rename(srcFile, dstFile); err == nil {
		return nil
	}

	return copyThenRemove(srcFile, dstFile)
}

// Cleanup best-effort removes dir.
func (s *LocalStorage) Cleanup(dir string) error { return cleanup(dir) }

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ledgererr.Storage("open source file for cross-device publish", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return ledgererr.Storage("create destination file", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return ledgererr.Storage("copy file to destination", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return ledgererr.Storage("fsync destination file", err)
	}
	if err := out.Close(); err != nil {
		return ledgererr.Storage("close destination file", err)
	}
	if err := os.Remove(src); err != nil {
		// destination is already durable; a leftover source file is
		// debris, not a correctness problem, so this does not fail the
		// publish.
		return nil
	}
	return nil
}
