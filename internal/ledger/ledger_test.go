package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spatelier/internal/ledgererr"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestMediaRepo_CreateConflictsOnDuplicatePath(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	attrs := MediaFileAttrs{
		FilePath: "/tmp/a.mp4", FileName: "a.mp4", FileSize: 10,
		MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "h1",
	}
	_, err := l.Media.Create(ctx, attrs)
	require.NoError(t, err)

	_, err = l.Media.Create(ctx, attrs)
	require.Error(t, err)
	require.True(t, ledgererr.Is(err, ledgererr.KindConflict))
}

func TestMediaRepo_TrackingSameFileTwiceReturnsSameID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	m, err := l.Media.Create(ctx, MediaFileAttrs{
		FilePath: "/tmp/b.mp4", FileName: "b.mp4", FileSize: 10,
		MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "h2",
	})
	require.NoError(t, err)

	again, err := l.Media.GetByFilePath(ctx, "/tmp/b.mp4")
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, m.ID, again.ID)
}

func TestJobRepo_StatusTransitionsAreMonotone(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, JobAttrs{JobType: JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)
	require.Equal(t, JobPending, job.Status)

	require.NoError(t, l.Jobs.UpdateStatus(ctx, job.ID, JobProcessing, nil))
	job, err = l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	// pending -> completed is not a valid edge once already processing->completed path exists;
	// check the actually-invalid edge: completed -> processing.
	require.NoError(t, l.Jobs.UpdateStatus(ctx, job.ID, JobCompleted, nil))
	job, err = l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.DurationSeconds)

	err = l.Jobs.UpdateStatus(ctx, job.ID, JobProcessing, nil)
	require.Error(t, err)
	require.True(t, ledgererr.Is(err, ledgererr.KindInvalidTransition))
}

func TestJobRepo_ClaimNextIsExactlyOnce(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Jobs.Create(ctx, JobAttrs{JobType: JobDownloadVideo, InputPath: "https://example/v/1"})
	require.NoError(t, err)

	first, err := l.Jobs.ClaimNext(ctx, 111)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, JobProcessing, first.Status)

	second, err := l.Jobs.ClaimNext(ctx, 222)
	require.NoError(t, err)
	require.Nil(t, second, "an already-claimed job must not be claimable again")
}

func TestJobRepo_ClaimNextSkipsJobsWithInFlightSibling(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	media, err := l.Media.Create(ctx, MediaFileAttrs{
		FilePath: "/tmp/c.mp4", FileName: "c.mp4", FileSize: 1,
		MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "h3",
	})
	require.NoError(t, err)

	job1, err := l.Jobs.Create(ctx, JobAttrs{MediaFileID: &media.ID, JobType: JobTranscribe, InputPath: "/tmp/c.mp4"})
	require.NoError(t, err)
	job2, err := l.Jobs.Create(ctx, JobAttrs{MediaFileID: &media.ID, JobType: JobEmbedSubtitles, InputPath: "/tmp/c.mp4"})
	require.NoError(t, err)
	require.NotEqual(t, job1.ID, job2.ID)

	claimed, err := l.Jobs.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, job1.ID, claimed.ID)

	blocked, err := l.Jobs.ClaimNext(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, blocked, "a second job for the same media file must not be claimable while the first is in flight")
}

func TestJobRepo_GetStuckCandidates(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, JobAttrs{JobType: JobDownloadVideo, InputPath: "https://example/v/2"})
	require.NoError(t, err)
	_, err = l.Jobs.ClaimNext(ctx, 42)
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	candidates, err := l.Jobs.GetStuckCandidates(ctx, future)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, job.ID, candidates[0].ID)
}

func TestPlaylistVideoRepo_RejectsDuplicatePosition(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	playlist, err := l.Playlists.Create(ctx, PlaylistAttrs{
		PlaylistID: "PL1", Title: "list", SourceURL: "https://example/pl/1", SourcePlatform: "youtube",
	})
	require.NoError(t, err)

	media1, err := l.Media.Create(ctx, MediaFileAttrs{
		FilePath: "/tmp/d1.mp4", FileName: "d1.mp4", FileSize: 1, MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "d1",
	})
	require.NoError(t, err)
	media2, err := l.Media.Create(ctx, MediaFileAttrs{
		FilePath: "/tmp/d2.mp4", FileName: "d2.mp4", FileSize: 1, MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "d2",
	})
	require.NoError(t, err)

	require.NoError(t, l.PlaylistVideos.AddVideoToPlaylist(ctx, playlist.ID, media1.ID, 1, nil))
	err = l.PlaylistVideos.AddVideoToPlaylist(ctx, playlist.ID, media2.ID, 1, nil)
	require.Error(t, err)
	require.True(t, ledgererr.Is(err, ledgererr.KindConflict))
}

func TestTranscriptionRepo_FullTextSearchRoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	media, err := l.Media.Create(ctx, MediaFileAttrs{
		FilePath: "/tmp/e.mp4", FileName: "e.mp4", FileSize: 1, MediaType: MediaVideo, MimeType: "video/mp4", FileHash: "e1",
	})
	require.NoError(t, err)

	segments := []TranscriptSegment{
		{Start: 0, End: 1.5, Text: "hello world"},
		{Start: 1.5, End: 3, Text: "goodbye moon"},
	}
	stored, err := l.Transcriptions.Store(ctx, media.ID, "en", 3, 1.2, "whisper-small", segments)
	require.NoError(t, err)
	require.Equal(t, "hello world goodbye moon", stored.FullText)

	results, err := l.Transcriptions.Search(ctx, "moon", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, stored.ID, results[0].ID)

	none, err := l.Transcriptions.Search(ctx, "nonexistentword", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestJobRepo_SweepExpiredRemovesOldTerminalJobs(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	job, err := l.Jobs.Create(ctx, JobAttrs{JobType: JobDownloadVideo, InputPath: "https://example/v/3"})
	require.NoError(t, err)
	require.NoError(t, l.Jobs.UpdateStatus(ctx, job.ID, JobProcessing, nil))
	require.NoError(t, l.Jobs.UpdateStatus(ctx, job.ID, JobCompleted, nil))

	n, err := l.Jobs.SweepExpired(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	remaining, err := l.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Nil(t, remaining)
}
