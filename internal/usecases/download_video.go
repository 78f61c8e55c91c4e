package usecases

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"spatelier/internal/collaborators"
	"spatelier/internal/ledger"
)

// DownloadVideoParams are the inputs to RunDownloadVideo.
type DownloadVideoParams struct {
	URL string
	// OutputDir is the destination directory; falls back to
	// Services.DefaultOutputDir when empty.
	OutputDir string
	// OriginalPath, when known, lets trackMediaFile migrate a previously
	// tracked row instead of creating a duplicate (spec.md §4.5 step 7).
	OriginalPath string
}

// DownloadVideoResult is what RunDownloadVideo reports on success.
type DownloadVideoResult struct {
	Skipped     bool
	MediaFileID int64
	FilePath    string
}

// RunDownloadVideo implements spec.md §4.5's DownloadVideo sequence,
// grounded on original_source/domain/use_cases/download_video_use_case.py
// (build/extract/download/track/enrich/complete) merged with
// modules/video/services/download_service.py (the NAS staging branch and
// the file-resolution/rename logic this function's steps 3, 6, and 8
// mirror).
//
// When selfDrive is true, this function owns job's full pending ->
// processing -> completed/failed lifecycle itself (the case when a use
// case creates its own subordinate job, e.g. DownloadPlaylist driving one
// entry, which the Worker Runtime never claims). When false, job arrived
// already in status=processing via the Runtime's ClaimNext, and the
// Runtime alone performs the terminal transition after this function
// returns, per worker.Handler's contract.
func RunDownloadVideo(ctx context.Context, svc *Services, job *ledger.ProcessingJob, params DownloadVideoParams, selfDrive bool) (DownloadVideoResult, error) {
	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = svc.DefaultOutputDir
	}
	isRemote := svc.Storage.IsRemote(outputDir)

	var workDir, stageDir string
	if isRemote {
		dir, err := svc.Storage.StageDirFor(job.ID)
		if err != nil {
			return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
		}
		stageDir = dir
		workDir = dir
		defer svc.Storage.Cleanup(stageDir)
	} else {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
		}
		workDir = outputDir
	}

	if selfDrive && job.Status == ledger.JobPending {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobProcessing, nil); err != nil {
			return DownloadVideoResult{}, err
		}
	}

	preMeta, err := svc.Downloader.ExtractMetadata(ctx, params.URL)
	if err != nil {
		slog.Warn("opportunistic metadata extraction failed", "url", params.URL, "error", err)
	}

	downloadResult, err := svc.Downloader.Download(ctx, params.URL, workDir)
	if err != nil {
		return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
	}

	resolvedPath, err := resolveOutputFile(downloadResult.AnnouncedPath, workDir, downloadResult.SourceID, svc.VideoExtensions)
	if err != nil {
		return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
	}

	finalDestPath := resolvedPath
	if isRemote {
		finalDestPath = filepath.Join(outputDir, filepath.Base(resolvedPath))
	}

	meta := mergeMetadata(downloadResult.Metadata, preMeta)
	mediaFile, err := trackMediaFile(ctx, svc, mediaTrackInput{
		FilePath:     finalDestPath,
		OriginalPath: params.OriginalPath,
		MediaType:    ledger.MediaVideo,
		SourceURL:    params.URL,
		SourceID:     downloadResult.SourceID,
		Meta:         convertMeta(meta),
	})
	if err != nil {
		return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
	}

	if err := svc.Ledger.Jobs.Update(ctx, job.ID, ledger.ProcessingJobPatch{MediaFileID: &mediaFile.ID, OutputPath: &finalDestPath}); err != nil {
		return DownloadVideoResult{}, err
	}

	if isRemote {
		if err := svc.Storage.Publish(ctx, resolvedPath, finalDestPath); err != nil {
			return DownloadVideoResult{}, failDownload(ctx, svc, job, selfDrive, err)
		}
	}

	trackEvent(ctx, svc, "download_completed", &mediaFile.ID, jobIDPtr(job), map[string]any{
		"url":       params.URL,
		"file_path": finalDestPath,
	})

	if selfDrive {
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobCompleted, nil); err != nil {
			return DownloadVideoResult{}, err
		}
	}

	return DownloadVideoResult{MediaFileID: mediaFile.ID, FilePath: finalDestPath}, nil
}

func failDownload(ctx context.Context, svc *Services, job *ledger.ProcessingJob, selfDrive bool, cause error) error {
	trackEvent(ctx, svc, "download_error", nil, jobIDPtr(job), map[string]any{"error": cause.Error()})
	if selfDrive {
		msg := cause.Error()
		if err := svc.Ledger.Jobs.UpdateStatus(ctx, job.ID, ledger.JobFailed, &msg); err != nil {
			slog.Error("failed to record download failure", "job_id", job.ID, "error", err)
		}
	}
	return cause
}

// mergeMetadata prefers fields reported after the download (post is
// generally more complete) falling back to the opportunistic
// pre-download extraction for anything post left zero-valued.
func mergeMetadata(post, pre collaborators.VideoMetadata) collaborators.VideoMetadata {
	merged := post
	if merged.Title == "" {
		merged.Title = pre.Title
	}
	if merged.Description == "" {
		merged.Description = pre.Description
	}
	if merged.Uploader == "" {
		merged.Uploader = pre.Uploader
	}
	if merged.UploaderID == "" {
		merged.UploaderID = pre.UploaderID
	}
	if merged.UploadDate == "" {
		merged.UploadDate = pre.UploadDate
	}
	if merged.ViewCount == nil {
		merged.ViewCount = pre.ViewCount
	}
	if merged.LikeCount == nil {
		merged.LikeCount = pre.LikeCount
	}
	if merged.Duration == nil {
		merged.Duration = pre.Duration
	}
	if merged.Language == "" {
		merged.Language = pre.Language
	}
	return merged
}

func convertMeta(v collaborators.VideoMetadata) collaboratorsMetadata {
	return collaboratorsMetadata{
		Title:       v.Title,
		Description: v.Description,
		Uploader:    v.Uploader,
		UploaderID:  v.UploaderID,
		UploadDate:  v.UploadDate,
		ViewCount:   v.ViewCount,
		LikeCount:   v.LikeCount,
		Duration:    v.Duration,
		Language:    v.Language,
	}
}

// DownloadVideoHandler adapts RunDownloadVideo into a worker.Handler for
// the "download_video" job type, dispatched by the Worker Runtime once it
// has already claimed the job (so job arrives in status=processing and
// this handler never touches job status itself, per worker.Handler's
// contract).
func DownloadVideoHandler(svc *Services) func(ctx context.Context, job *ledger.ProcessingJob) error {
	return func(ctx context.Context, job *ledger.ProcessingJob) error {
		_, err := RunDownloadVideo(ctx, svc, job, DownloadVideoParams{
			URL:       job.InputPath,
			OutputDir: job.OutputPath,
		}, false)
		return err
	}
}
