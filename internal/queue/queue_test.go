package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"spatelier/internal/ledger"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return New(l, nil)
}

func TestQueue_EnqueueClaimComplete(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)
	require.Equal(t, ledger.JobPending, job.Status)

	claimed, err := q.ClaimNext(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, job.ID, claimed.ID)

	require.NoError(t, q.Complete(ctx, job.ID))

	stats, err := q.GetQueueStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 0, stats.Pending)
}

func TestQueue_ManualRetryReactivatesExhaustedJob(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobTranscribe, InputPath: "/tmp/z.mp4", MaxRetries: 1})
	require.NoError(t, err)

	_, err = q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "whisper crashed"))
	require.NoError(t, q.Retry(ctx, job.ID))

	// retry_count is now 1, equal to max_retries: ClaimNext must not pick
	// this job back up automatically.
	reclaimed, err := q.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, reclaimed, "a job with exhausted retries must not be auto-reclaimed")

	require.NoError(t, q.ManualRetry(ctx, job.ID))

	reclaimed, err = q.ClaimNext(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, reclaimed, "manual retry must make the job claimable again")
	require.Equal(t, job.ID, reclaimed.ID)
}

func TestQueue_ManualRetryRejectsNonFailedJob(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/9"})
	require.NoError(t, err)

	err = q.ManualRetry(ctx, job.ID)
	require.Error(t, err)
}

func TestQueue_GetJobReturnsDetail(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/10"})
	require.NoError(t, err)

	got, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
}

func TestQueue_FailThenRetryMakesJobClaimableAgain(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ledger.JobAttrs{JobType: ledger.JobTranscribe, InputPath: "/tmp/x.mp4"})
	require.NoError(t, err)

	_, err = q.ClaimNext(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job.ID, "ffmpeg exit 1"))

	failed, err := q.GetJobsByStatus(ctx, ledger.JobFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, q.Retry(ctx, job.ID))

	reclaimed, err := q.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, reclaimed, "a failed job under its retry limit must be reclaimable")
	require.Equal(t, job.ID, reclaimed.ID)
}
