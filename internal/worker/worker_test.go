package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
	"spatelier/internal/queue"
)

func openTestRuntime(t *testing.T, registry *Registry) (*Runtime, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	q := queue.New(l, nil)
	stats := NewStats(prometheus.NewRegistry())
	cfg := Config{
		MinTimeBetweenJobs: 0,
		PollInterval:       time.Millisecond,
		StuckJobTimeout:    time.Hour,
		ProgressGrace:      time.Minute,
		VideoExtensions:    []string{".mp4", ".mkv"},
	}
	rt := New(q, l.Jobs, registry, stats, nil, cfg)
	return rt, l
}

func TestRuntime_SuccessfulHandlerCompletesJob(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ledger.JobDownloadVideo, func(ctx context.Context, job *ledger.ProcessingJob) error {
		return nil
	})
	rt, l := openTestRuntime(t, registry)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)

	claimed, err := rt.queue.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	rt.runJob(ctx, claimed)

	got, err := l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobCompleted, got.Status)
	require.EqualValues(t, 1, rt.stats.Snapshot().Processed)
}

func TestRuntime_TransientFailureStaysRetryable(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ledger.JobTranscribe, func(ctx context.Context, job *ledger.ProcessingJob) error {
		return ledgererr.Transient("whisper crashed", errors.New("exit 1"))
	})
	rt, l := openTestRuntime(t, registry)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobTranscribe, InputPath: "/tmp/x.mp4", MaxRetries: 3})
	require.NoError(t, err)

	claimed, err := rt.queue.ClaimNext(ctx, 1)
	require.NoError(t, err)
	rt.runJob(ctx, claimed)

	got, err := l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobFailed, got.Status)
	require.Equal(t, 1, got.RetryCount)

	reclaimed, err := rt.queue.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, reclaimed, "a transient failure under its retry limit must be reclaimable")
}

func TestRuntime_PermanentFailureIsNotReclaimed(t *testing.T) {
	registry := NewRegistry()
	registry.Register(ledger.JobEmbedSubtitles, func(ctx context.Context, job *ledger.ProcessingJob) error {
		return ledgererr.Permanent("unsupported container", errors.New("bad format"))
	})
	rt, l := openTestRuntime(t, registry)
	ctx := context.Background()

	_, err := l.Jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobEmbedSubtitles, InputPath: "/tmp/y.avi"})
	require.NoError(t, err)

	claimed, err := rt.queue.ClaimNext(ctx, 1)
	require.NoError(t, err)
	rt.runJob(ctx, claimed)

	reclaimed, err := rt.queue.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, reclaimed, "a permanent failure must never be reclaimed")
}

func TestRuntime_NoHandlerFailsJobImmediately(t *testing.T) {
	registry := NewRegistry()
	rt, l := openTestRuntime(t, registry)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, ledger.JobAttrs{JobType: ledger.JobDownloadPlaylist, InputPath: "https://example/pl/1"})
	require.NoError(t, err)

	claimed, err := rt.queue.ClaimNext(ctx, 1)
	require.NoError(t, err)
	rt.runJob(ctx, claimed)

	got, err := l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.JobFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
}

func TestClassify(t *testing.T) {
	require.Equal(t, ClassTransient, Classify(ledgererr.Transient("net blip", errors.New("x"))))
	require.Equal(t, ClassPermanent, Classify(ledgererr.Permanent("bad url", errors.New("x"))))
	require.Equal(t, ClassUnknown, Classify(errors.New("plain error")))
}

func TestShouldRetry_UnknownBecomesPermanentOnLastAttempt(t *testing.T) {
	require.True(t, ShouldRetry(ClassUnknown, 0, 3))
	require.True(t, ShouldRetry(ClassUnknown, 1, 3))
	require.False(t, ShouldRetry(ClassUnknown, 2, 3))
}
