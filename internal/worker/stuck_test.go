package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spatelier/internal/ledger"
)

func openTestJobRepo(t *testing.T) *ledger.JobRepo {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l.Jobs
}

func TestWorkingDir_DownloadJobsUseOutputPathNotInputPathURL(t *testing.T) {
	job := &ledger.ProcessingJob{
		JobType:    ledger.JobDownloadVideo,
		InputPath:  "https://example.com/v/ABCDEFGHIJK",
		OutputPath: "/var/media/staged",
	}
	require.Equal(t, "/var/media/staged", workingDir(job))

	playlistJob := &ledger.ProcessingJob{
		JobType:    ledger.JobDownloadPlaylist,
		InputPath:  "https://example.com/playlist?list=PL1",
		OutputPath: "/var/media/playlists",
	}
	require.Equal(t, "/var/media/playlists", workingDir(playlistJob))
}

func TestWorkingDir_NonURLJobsUseInputPathDirectory(t *testing.T) {
	job := &ledger.ProcessingJob{
		JobType:   ledger.JobTranscribe,
		InputPath: "/var/media/video.mp4",
	}
	require.Equal(t, "/var/media", workingDir(job))
}

func TestWorkingDir_DownloadJobWithoutOutputPathFallsBackToInputDir(t *testing.T) {
	job := &ledger.ProcessingJob{
		JobType:   ledger.JobDownloadVideo,
		InputPath: "https://example.com/v/1",
	}
	require.Equal(t, "https://example.com/v", workingDir(job))
}

func TestHasOutputArtifact_FindsVideoUnderDownloadJobsOutputPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video [abc123].mp4"), []byte("data"), 0o644))

	d := NewStuckDetector(nil, time.Hour, time.Minute, []string{".mp4", ".mkv"})
	job := &ledger.ProcessingJob{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: dir}
	require.True(t, d.hasOutputArtifact(job))
}

func TestHasOutputArtifact_FindsArtifactInOutputPathNotURLDerivedDir(t *testing.T) {
	// Regression for the bug where hasOutputArtifact scanned
	// filepath.Dir(job.InputPath) for download jobs: that yields a
	// nonsense path for a URL input, so a real output file sitting in
	// OutputPath was never found and a completed job got marked failed.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("data"), 0o644))

	d := NewStuckDetector(nil, time.Hour, time.Minute, []string{".mp4"})
	job := &ledger.ProcessingJob{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: dir}
	require.True(t, d.hasOutputArtifact(job), "must find the artifact in OutputPath, not in filepath.Dir(InputPath)")
}

func TestHasOutputArtifact_NoMatchingExtensionIsNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.part"), []byte("data"), 0o644))

	d := NewStuckDetector(nil, time.Hour, time.Minute, []string{".mp4"})
	job := &ledger.ProcessingJob{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: dir}
	require.False(t, d.hasOutputArtifact(job))
}

func TestSweep_CompletesDownloadJobWhoseOutputArtifactAlreadyExists(t *testing.T) {
	jobs := openTestJobRepo(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	job, err := jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: outputDir})
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, 999999)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "video [abc123].mp4"), []byte("data"), 0o644))

	d := NewStuckDetector(jobs, 0, time.Minute, []string{".mp4"})
	reclaimed, err := d.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobCompleted, got.Status)
}

func TestSweep_FailsDownloadJobWithNoArtifactAndNoProgress(t *testing.T) {
	jobs := openTestJobRepo(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	job, err := jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: outputDir})
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, 999999)
	require.NoError(t, err)

	d := NewStuckDetector(jobs, 0, time.Minute, []string{".mp4"})
	reclaimed, err := d.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, "stuck", *got.ErrorMessage)
}

func TestSweep_LeavesJobAloneWhenRecentProgressExists(t *testing.T) {
	jobs := openTestJobRepo(t)
	ctx := context.Background()
	outputDir := t.TempDir()

	job, err := jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example.com/v/abc123", OutputPath: outputDir})
	require.NoError(t, err)
	_, err = jobs.ClaimNext(ctx, 999999)
	require.NoError(t, err)

	// A partial download still being written counts as progress.
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "video.part"), []byte("data"), 0o644))

	d := NewStuckDetector(jobs, 0, 0, []string{".mp4"})
	reclaimed, err := d.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, reclaimed)

	got, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobProcessing, got.Status)
}
