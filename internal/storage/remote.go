package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"spatelier/internal/ledgererr"
)

// remoteBackend is the minimal surface RemoteStorage needs from a concrete
// remote provider. s3Backend and gdriveBackend both satisfy it.
type remoteBackend interface {
	upload(ctx context.Context, localPath, key string) error
	exists(ctx context.Context, key string) (bool, error)
	probe(ctx context.Context) error
}

// RemoteStorage is the Adapter implementation for non-local destinations
// (NAS mounts classified remote by Classifier, S3/R2 buckets, Google
// Drive). Every backend call is routed through a circuit breaker so a
// flapping remote mount or bucket doesn't retry-storm every claimed job,
// per SPEC_FULL.md's DOMAIN STACK entry for sony/gobreaker/v2.
type RemoteStorage struct {
	backend remoteBackend
	breaker *gobreaker.CircuitBreaker[any]
	tempDir string
}

// NewRemoteStorage wraps backend in a circuit breaker named for logging
// and metrics correlation. tempDir is where StageDirFor creates per-job
// staging directories before Publish uploads their contents.
func NewRemoteStorage(name string, backend remoteBackend, tempDir string) *RemoteStorage {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &RemoteStorage{
		backend: backend,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		tempDir: tempDir,
	}
}

// NewS3RemoteStorage builds a RemoteStorage backed by S3/R2.
func NewS3RemoteStorage(ctx context.Context, cfg S3Config, tempDir string) (*RemoteStorage, error) {
	backend, err := newS3Backend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init s3 backend: %w", err)
	}
	return NewRemoteStorage("s3:"+cfg.Bucket, backend, tempDir), nil
}

// NewGDriveRemoteStorage builds a RemoteStorage backed by Google Drive.
func NewGDriveRemoteStorage(ctx context.Context, cfg GDriveConfig, tempDir string) (*RemoteStorage, error) {
	backend, err := newGDriveBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init gdrive backend: %w", err)
	}
	return NewRemoteStorage("gdrive", backend, tempDir), nil
}

// IsRemote is always true: anything routed to a RemoteStorage adapter is,
// by definition, not a local path.
func (s *RemoteStorage) IsRemote(path string) bool { return true }

// CanWriteTo probes the backend through the circuit breaker rather than
// touching path directly; path is informational only for remote backends.
func (s *RemoteStorage) CanWriteTo(path string) bool {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.backend.probe(context.Background())
	})
	return err == nil
}

// StageDirFor stages locally first; Publish then uploads the staged
// file's contents to the remote backend. Remote publishes always go
// through a local intermediate so a partial upload never corrupts the
// source file.
func (s *RemoteStorage) StageDirFor(jobID int64) (string, error) {
	return stageDirFor(s.tempDir, jobID)
}

// Publish uploads srcFile (already staged locally) to dstFile, a
// backend-relative key or filename, through the circuit breaker. A
// tripped breaker fails fast with KindTransient, which the worker's retry
// classification (spec.md §4.4) treats as retryable; the failed attempt
// still counts against the job's retry budget.
func (s *RemoteStorage) Publish(ctx context.Context, srcFile, dstFile string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.backend.upload(ctx, srcFile, dstFile)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return ledgererr.Transient("remote storage circuit open", err)
		}
		return ledgererr.Storage("publish to remote storage", err)
	}
	return nil
}

// Cleanup removes the local staging directory; the uploaded copy on the
// remote backend is the published artifact and is left alone.
func (s *RemoteStorage) Cleanup(stageDir string) error { return cleanup(stageDir) }
