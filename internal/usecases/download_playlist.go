package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
)

// DownloadPlaylistParams are the inputs to RunDownloadPlaylist.
type DownloadPlaylistParams struct {
	URL       string
	OutputDir string
}

// PlaylistEntryOutcome reports what happened to one resolved entry.
type PlaylistEntryOutcome struct {
	EntryID     string
	Title       string
	Status      string // "downloaded", "skipped", "failed"
	Error       string
	MediaFileID int64
}

// DownloadPlaylistResult is what RunDownloadPlaylist reports on success.
type DownloadPlaylistResult struct {
	PlaylistRowID int64
	Total         int
	Downloaded    int
	Skipped       int
	Failed        int
	Entries       []PlaylistEntryOutcome
}

// RunDownloadPlaylist implements spec.md §4.5's DownloadPlaylist sequence,
// grounded on
// original_source/domain/use_cases/download_playlist_use_case.py's
// execute (resolve -> track playlist -> per-entry track/link) merged with
// modules/video/services/download_service.py's _get_playlist_progress,
// which this function's per-entry existence check mirrors: an entry whose
// output file already exists on disk and already carries marked subtitles
// is skipped; an entry present but not yet transcribed is redownloaded
// (see entryAlreadyTranscribed).
//
// Every entry is driven through its own subordinate ProcessingJob via
// RunDownloadVideo in selfDrive mode (per
// internal/usecases/download_video.go's doc comment) because the Worker
// Runtime's ClaimNext never claims these rows — this function is solely
// responsible for each subordinate job's lifecycle.
func RunDownloadPlaylist(ctx context.Context, svc *Services, job *ledger.ProcessingJob, params DownloadPlaylistParams, selfDrive bool) (DownloadPlaylistResult, error) {
	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = svc.DefaultOutputDir
	}

	if selfDrive && job.Status == ledger.JobPending {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobProcessing, nil); err != nil {
			return DownloadPlaylistResult{}, err
		}
	}

	meta, err := svc.PlaylistResolver.ResolvePlaylist(ctx, params.URL)
	if err != nil {
		return DownloadPlaylistResult{}, failPlaylist(ctx, svc, job, selfDrive, err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return DownloadPlaylistResult{}, failPlaylist(ctx, svc, job, selfDrive, err)
	}

	playlistRow, err := svc.Ledger.Playlists.Upsert(ctx, ledger.PlaylistAttrs{
		PlaylistID:     meta.PlaylistID,
		Title:          meta.Title,
		Description:    strPtrOrNil(meta.Description),
		Uploader:       strPtrOrNil(meta.Uploader),
		UploaderID:     strPtrOrNil(meta.UploaderID),
		SourceURL:      params.URL,
		SourcePlatform: "youtube",
		VideoCount:     int64PtrOrNil(len(meta.Entries)),
		ViewCount:      meta.ViewCount,
		ThumbnailURL:   strPtrOrNil(meta.Thumbnail),
	})
	if err != nil {
		return DownloadPlaylistResult{}, failPlaylist(ctx, svc, job, selfDrive, err)
	}

	result := DownloadPlaylistResult{PlaylistRowID: playlistRow.ID, Total: len(meta.Entries)}

	for _, entry := range meta.Entries {
		outcome := PlaylistEntryOutcome{EntryID: entry.ID, Title: entry.Title}

		if existing := latestMatching(outputDir, svc.VideoExtensions, func(name string) bool {
			return entry.ID != "" && containsID(name, entry.ID)
		}); existing != "" && entryAlreadyTranscribed(ctx, svc, existing) {
			mediaFile, err := trackMediaFile(ctx, svc, mediaTrackInput{
				FilePath:  existing,
				MediaType: ledger.MediaVideo,
				SourceURL: entry.URL,
				SourceID:  entry.ID,
				Meta:      collaboratorsMetadata{Title: entry.Title},
			})
			if err == nil {
				_ = svc.Ledger.PlaylistVideos.AddVideoToPlaylist(ctx, playlistRow.ID, mediaFile.ID, entry.Position, strPtrOrNil(entry.Title))
				outcome.Status = "skipped"
				outcome.MediaFileID = mediaFile.ID
				result.Skipped++
				result.Entries = append(result.Entries, outcome)
				continue
			}
			slog.Warn("resume tracking failed, will attempt redownload", "entry_id", entry.ID, "error", err)
		}

		entryParams, marshalErr := json.Marshal(map[string]any{"playlist_id": meta.PlaylistID, "position": entry.Position})
		if marshalErr != nil {
			entryParams = nil
		}
		subJob, err := svc.Ledger.Jobs.Create(ctx, ledger.JobAttrs{
			JobType:    ledger.JobDownloadVideo,
			InputPath:  entry.URL,
			OutputPath: outputDir,
			Parameters: string(entryParams),
		})
		if err != nil {
			return DownloadPlaylistResult{}, failPlaylist(ctx, svc, job, selfDrive, err)
		}

		videoResult, err := RunDownloadVideo(ctx, svc, subJob, DownloadVideoParams{URL: entry.URL, OutputDir: outputDir}, true)
		if err != nil {
			outcome.Status = "failed"
			outcome.Error = err.Error()
			result.Failed++
			result.Entries = append(result.Entries, outcome)
			continue
		}

		if err := svc.Ledger.PlaylistVideos.AddVideoToPlaylist(ctx, playlistRow.ID, videoResult.MediaFileID, entry.Position, strPtrOrNil(entry.Title)); err != nil {
			slog.Warn("failed to link downloaded video to playlist", "entry_id", entry.ID, "error", err)
		}

		outcome.Status = "downloaded"
		outcome.MediaFileID = videoResult.MediaFileID
		result.Downloaded++
		result.Entries = append(result.Entries, outcome)

		trackEvent(ctx, svc, "playlist_progress", nil, jobIDPtr(job), map[string]any{
			"playlist_id": meta.PlaylistID,
			"completed":   result.Downloaded + result.Skipped,
			"failed":      result.Failed,
			"total":       result.Total,
		})
	}

	if result.Total > 0 && result.Downloaded+result.Skipped == 0 {
		return result, failPlaylist(ctx, svc, job, selfDrive, ledgererr.New(ledgererr.KindPermanent, fmt.Sprintf("all %d playlist entries failed", result.Total)))
	}

	if selfDrive {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobCompleted, nil); err != nil {
			return result, err
		}
	}

	return result, nil
}

func failPlaylist(ctx context.Context, svc *Services, job *ledger.ProcessingJob, selfDrive bool, cause error) error {
	trackEvent(ctx, svc, "playlist_error", nil, jobIDPtr(job), map[string]any{"error": cause.Error()})
	if selfDrive {
		msg := cause.Error()
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobFailed, &msg); err != nil {
			slog.Error("failed to record playlist failure", "job_id", job.ID, "error", err)
		}
	}
	return cause
}

func containsID(name, id string) bool {
	return id != "" && strings.Contains(name, id)
}

// entryAlreadyTranscribed reports whether an existing playlist entry file
// is fully done and may be skipped: spec.md §4.5's Resume semantics skip
// only entries already downloaded AND already transcribed, detected the
// same way RunTranscribeVideo's own skip check is (an embedded subtitle
// track whose title tag carries the configured marker). An entry present
// on disk but missing that marker is not skipped: it falls through and is
// re-processed, grounded on
// modules/video/services/download_service.py's _check_existing_video,
// whose should_overwrite is exactly "not has_subtitles".
func entryAlreadyTranscribed(ctx context.Context, svc *Services, filePath string) bool {
	if svc.SubtitleProbe == nil {
		return false
	}
	marked, err := svc.SubtitleProbe.HasMarkedSubtitles(ctx, filePath, svc.SubtitleMarker)
	if err != nil {
		slog.Warn("subtitle probe failed while checking playlist resume, treating as not transcribed", "file", filePath, "error", err)
		return false
	}
	return marked
}

func int64PtrOrNil(n int) *int64 {
	v := int64(n)
	return &v
}

// DownloadPlaylistHandler adapts RunDownloadPlaylist into a worker.Handler
// for the "download_playlist" job type.
func DownloadPlaylistHandler(svc *Services) func(ctx context.Context, job *ledger.ProcessingJob) error {
	return func(ctx context.Context, job *ledger.ProcessingJob) error {
		_, err := RunDownloadPlaylist(ctx, svc, job, DownloadPlaylistParams{
			URL:       job.InputPath,
			OutputDir: job.OutputPath,
		}, false)
		return err
	}
}
