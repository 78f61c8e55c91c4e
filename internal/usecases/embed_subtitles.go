package usecases

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"spatelier/internal/collaborators"
	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
)

// embedSubtitlesParams is the Parameters JSON shape the "transcribe" job
// type reads (embed_subtitles: true). The standalone "embed_subtitles" job
// type does not read Parameters.
type embedSubtitlesParams struct {
	EmbedSubtitles bool `json:"embed_subtitles"`
}

func decodeEmbedSubtitlesFlag(parameters string) (bool, error) {
	if parameters == "" {
		return false, nil
	}
	var p embedSubtitlesParams
	if err := json.Unmarshal([]byte(parameters), &p); err != nil {
		return false, err
	}
	return p.EmbedSubtitles, nil
}

// EmbedSubtitlesHandler drives the "embed_subtitles" job type: given a
// MediaFile already transcribed, re-runs the muxing step in isolation
// against its stored transcript. Grounded on the same
// embed_transcript_subtitles_use_case.py flow original_source splits out
// from TranscribeVideoUseCase for operators who want to (re)apply
// subtitles without paying for another transcription pass.
func EmbedSubtitlesHandler(svc *Services) func(ctx context.Context, job *ledger.ProcessingJob) error {
	return func(ctx context.Context, job *ledger.ProcessingJob) error {
		if job.MediaFileID == nil {
			return ledgererr.New(ledgererr.KindPermanent, "embed_subtitles job has no associated media file")
		}
		mediaFile, err := svc.Ledger.Media.GetByID(ctx, *job.MediaFileID)
		if err != nil {
			return err
		}
		if mediaFile == nil {
			return ledgererr.NotFound("media file for embed_subtitles job")
		}
		transcription, err := svc.Ledger.Transcriptions.Get(ctx, mediaFile.ID)
		if err != nil {
			return err
		}
		if transcription == nil {
			return ledgererr.New(ledgererr.KindPermanent, "no stored transcription for media file")
		}
		if _, err := os.Stat(mediaFile.FilePath); err != nil {
			return ledgererr.Storage("stat file for subtitle embedding", err)
		}

		segments := make([]collaborators.Segment, len(transcription.Segments))
		for i, s := range transcription.Segments {
			segments[i] = collaborators.Segment{Start: s.Start, End: s.End, Text: s.Text}
		}

		if err := embedTranscriptSubtitles(ctx, svc, job, mediaFile, mediaFile.FilePath, segments); err != nil {
			return err
		}

		slog.Info("subtitles embedded", "media_file_id", mediaFile.ID, "job_id", job.ID)
		return nil
	}
}
