package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"spatelier/internal/ledger"
)

// StuckDetector implements spec.md §4.4's stuck-job detection: a job in
// processing is stuck when its worker is dead and it has made no
// filesystem progress. A stuck job whose output artifact exists is
// completed; any other stuck job is failed.
type StuckDetector struct {
	jobs            *ledger.JobRepo
	stuckJobTimeout time.Duration
	progressGrace   time.Duration
	videoExtensions []string
}

// NewStuckDetector builds a detector over jobs using the given timeouts
// and the set of extensions that count as a completed video container.
func NewStuckDetector(jobs *ledger.JobRepo, stuckJobTimeout, progressGrace time.Duration, videoExtensions []string) *StuckDetector {
	return &StuckDetector{
		jobs:            jobs,
		stuckJobTimeout: stuckJobTimeout,
		progressGrace:   progressGrace,
		videoExtensions: videoExtensions,
	}
}

// Sweep finds processing jobs whose started_at predates the stuck
// timeout, and for each either completes it (an output artifact already
// exists — the worker died after finishing but before reporting) or
// fails it with reason "stuck".
func (d *StuckDetector) Sweep(ctx context.Context) (reclaimed int, err error) {
	cutoff := time.Now().UTC().Add(-d.stuckJobTimeout)
	candidates, err := d.jobs.GetStuckCandidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, job := range candidates {
		if !d.isStuck(job) {
			continue
		}
		if d.hasOutputArtifact(job) {
			if err := d.jobs.UpdateStatus(ctx, job.ID, ledger.JobCompleted, nil); err != nil {
				return reclaimed, err
			}
		} else {
			reason := "stuck"
			if err := d.jobs.UpdateStatus(ctx, job.ID, ledger.JobFailed, &reason); err != nil {
				return reclaimed, err
			}
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (d *StuckDetector) isStuck(job *ledger.ProcessingJob) bool {
	if job.WorkerPID != nil && processAlive(*job.WorkerPID) {
		return false
	}
	if d.hasRecentProgress(job) {
		return false
	}
	return true
}

// hasRecentProgress reports whether any file under the job's working
// directory has an mtime newer than started_at + progress_grace.
func (d *StuckDetector) hasRecentProgress(job *ledger.ProcessingJob) bool {
	if job.StartedAt == nil {
		return false
	}
	threshold := job.StartedAt.Add(d.progressGrace)
	dir := workingDir(job)

	found := false
	_ = filepath.WalkDir(dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil || found {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(threshold) {
			found = true
		}
		return nil
	})
	return found
}

// hasOutputArtifact reports whether a video container with a configured
// extension already exists under the job's working directory.
func (d *StuckDetector) hasOutputArtifact(job *ledger.ProcessingJob) bool {
	dir := workingDir(job)
	found := false
	_ = filepath.WalkDir(dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil || found || entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range d.videoExtensions {
			if ext == want {
				found = true
				return nil
			}
		}
		return nil
	})
	return found
}

// workingDir resolves the directory to scan for progress/artifacts.
// download_video/download_playlist jobs carry a URL in InputPath (see
// usecases.RunDownloadVideo's collaborators.DownloadParams.URL:
// job.InputPath), so their real destination is job.OutputPath, the
// directory RunDownloadVideo was given to stage into. Other job types
// (transcribe, embed_subtitles) carry a real filesystem path in
// InputPath, so the containing directory is the right scope.
func workingDir(job *ledger.ProcessingJob) string {
	switch job.JobType {
	case ledger.JobDownloadVideo, ledger.JobDownloadPlaylist:
		if job.OutputPath != "" {
			return job.OutputPath
		}
		return filepath.Dir(job.InputPath)
	default:
		return filepath.Dir(job.InputPath)
	}
}

// processAlive reports whether pid corresponds to a live process on this
// host. Sending signal 0 performs existence/permission checks without
// affecting the target process, the standard Unix liveness probe.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
