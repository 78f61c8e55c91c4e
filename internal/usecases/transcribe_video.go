package usecases

import (
	"context"
	"log/slog"
	"os"

	"spatelier/internal/collaborators"
	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
)

// TranscribeVideoParams are the inputs to RunTranscribeVideo.
type TranscribeVideoParams struct {
	FilePath string
	// EmbedSubtitles requests that the transcript also be muxed into the
	// media file as an embedded soft subtitle track, per spec.md §4.5
	// TranscribeVideo steps 5-6.
	EmbedSubtitles bool
}

// TranscribeVideoResult is what RunTranscribeVideo reports on success.
type TranscribeVideoResult struct {
	Skipped         bool
	MediaFileID     int64
	TranscriptionID int64
	SubtitlesAdded  bool
}

// RunTranscribeVideo implements spec.md §4.5's TranscribeVideo sequence,
// grounded on
// original_source/domain/use_cases/transcribe_video_use_case.py (track ->
// smart-overwrite check -> transcribe -> store -> optional mux) and on
// modules/video/services/download_service.py's _has_whisper_subtitles for
// the marker convention this function's skip check mirrors exactly: a
// file already carrying an embedded subtitle track whose title tag
// contains Services.SubtitleMarker is treated as already processed and
// skipped outright, never re-transcribed.
func RunTranscribeVideo(ctx context.Context, svc *Services, job *ledger.ProcessingJob, params TranscribeVideoParams, selfDrive bool) (TranscribeVideoResult, error) {
	if _, err := os.Stat(params.FilePath); err != nil {
		return TranscribeVideoResult{}, failTranscribe(ctx, svc, job, selfDrive, ledgererr.Storage("stat file for transcription", err))
	}

	if selfDrive && job.Status == ledger.JobPending {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobProcessing, nil); err != nil {
			return TranscribeVideoResult{}, err
		}
	}

	mediaFile, err := trackMediaFile(ctx, svc, mediaTrackInput{FilePath: params.FilePath, MediaType: ledger.MediaVideo})
	if err != nil {
		return TranscribeVideoResult{}, failTranscribe(ctx, svc, job, selfDrive, err)
	}

	if svc.SubtitleProbe != nil {
		marked, err := svc.SubtitleProbe.HasMarkedSubtitles(ctx, params.FilePath, svc.SubtitleMarker)
		if err != nil {
			slog.Warn("subtitle probe failed, proceeding with transcription", "file", params.FilePath, "error", err)
		} else if marked {
			trackEvent(ctx, svc, "transcription_skipped", &mediaFile.ID, jobIDPtr(job), map[string]any{"reason": "already has marked subtitles"})
			if selfDrive {
				if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobCompleted, nil); err != nil {
					return TranscribeVideoResult{}, err
				}
			}
			return TranscribeVideoResult{Skipped: true, MediaFileID: mediaFile.ID}, nil
		}
	}

	trackEvent(ctx, svc, "transcription_start", &mediaFile.ID, jobIDPtr(job), map[string]any{"file_path": params.FilePath})

	transcription, err := svc.Transcriber.Transcribe(ctx, params.FilePath)
	if err != nil {
		return TranscribeVideoResult{}, failTranscribe(ctx, svc, job, selfDrive, err)
	}

	segments := make([]ledger.TranscriptSegment, len(transcription.Segments))
	for i, s := range transcription.Segments {
		segments[i] = ledger.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text}
	}

	stored, err := svc.Ledger.Transcriptions.Store(ctx, mediaFile.ID, transcription.Language, transcription.Duration, transcription.ProcessingTime, transcription.ModelUsed, segments)
	if err != nil {
		return TranscribeVideoResult{}, failTranscribe(ctx, svc, job, selfDrive, err)
	}

	result := TranscribeVideoResult{MediaFileID: mediaFile.ID, TranscriptionID: stored.ID}

	if params.EmbedSubtitles && svc.Muxer != nil {
		if err := embedTranscriptSubtitles(ctx, svc, job, mediaFile, params.FilePath, transcription.Segments); err != nil {
			slog.Warn("subtitle embedding failed, transcription still recorded", "file", params.FilePath, "error", err)
		} else {
			result.SubtitlesAdded = true
		}
	}

	trackEvent(ctx, svc, "transcription_completed", &mediaFile.ID, jobIDPtr(job), map[string]any{
		"transcription_id": stored.ID,
		"duration":         transcription.Duration,
		"language":         transcription.Language,
	})

	if selfDrive {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobCompleted, nil); err != nil {
			return result, err
		}
	}

	return result, nil
}

// embedTranscriptSubtitles muxes segments into filePath as a soft subtitle
// track via the Muxer and
// atomically replaces the source file with the muxed output, per spec.md
// §4.5 step 5's "overwrite the source file (atomic rename)". Failure here
// is non-fatal to the job: the transcription itself already succeeded and
// is already durably stored.
func embedTranscriptSubtitles(ctx context.Context, svc *Services, job *ledger.ProcessingJob, mediaFile *ledger.MediaFile, filePath string, segments []collaborators.Segment) error {
	muxedPath, err := svc.Muxer.EmbedSubtitles(ctx, filePath, segments, svc.SubtitleMarker)
	if err != nil {
		trackEvent(ctx, svc, "subtitle_embedding_error", &mediaFile.ID, jobIDPtr(job), map[string]any{"error": err.Error()})
		return err
	}
	if err := os.Rename(muxedPath, filePath); err != nil {
		trackEvent(ctx, svc, "subtitle_embedding_error", &mediaFile.ID, jobIDPtr(job), map[string]any{"error": err.Error()})
		return ledgererr.Storage("replace source file with muxed output", err)
	}
	trackEvent(ctx, svc, "subtitle_embedding_completed", &mediaFile.ID, jobIDPtr(job), map[string]any{"file_path": filePath})
	return nil
}

func failTranscribe(ctx context.Context, svc *Services, job *ledger.ProcessingJob, selfDrive bool, cause error) error {
	trackEvent(ctx, svc, "transcription_error", nil, jobIDPtr(job), map[string]any{"error": cause.Error()})
	if selfDrive {
		msg := cause.Error()
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobFailed, &msg); err != nil {
			slog.Error("failed to record transcription failure", "job_id", job.ID, "error", err)
		}
	}
	return cause
}

// TranscribeVideoHandler adapts RunTranscribeVideo into a worker.Handler
// for the "transcribe" job type. Whether to also embed subtitles is
// carried in the job's Parameters JSON (decoded here by
// decodeEmbedSubtitlesFlag; see embed_subtitles.go for the "embed_subtitles" job type,
// which instead drives only the muxing step for an already-transcribed
// file).
func TranscribeVideoHandler(svc *Services) func(ctx context.Context, job *ledger.ProcessingJob) error {
	return func(ctx context.Context, job *ledger.ProcessingJob) error {
		embed, _ := decodeEmbedSubtitlesFlag(job.Parameters)
		_, err := RunTranscribeVideo(ctx, svc, job, TranscribeVideoParams{
			FilePath:       job.InputPath,
			EmbedSubtitles: embed,
		}, false)
		return err
	}
}
