package ledger

import "time"

// MediaType distinguishes the two kinds of tracked files.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// JobStatus is the monotone status a ProcessingJob moves through.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// JobType names the handler a ProcessingJob should dispatch to.
type JobType string

const (
	JobDownloadVideo    JobType = "download_video"
	JobDownloadPlaylist JobType = "download_playlist"
	JobTranscribe       JobType = "transcribe"
	JobEmbedSubtitles   JobType = "embed_subtitles"
)

// MediaFile is a tracked file on disk. IDs are ledger-assigned SQLite row
// IDs (see SPEC_FULL.md's SUPPLEMENTED FEATURES: the pre-distillation
// source keys every entity on a plain auto-increment integer, not a UUID).
type MediaFile struct {
	ID             int64
	FilePath       string
	FileName       string
	FileSize       int64
	FileHash       string
	MediaType      MediaType
	MimeType       string
	FileDevice     *int64
	FileInode      *int64
	FileIdentifier *string
	SourceURL      *string
	SourcePlatform *string
	SourceID       *string
	Title          *string
	Description    *string
	Uploader       *string
	UploaderID     *string
	UploadDate     *string
	ViewCount      *int64
	LikeCount      *int64
	Duration       *float64
	Language       *string
	ThumbnailURL   *string
	CreatedAt      time.Time
}

// IsVideo reports whether the media type is video.
func (m *MediaFile) IsVideo() bool { return m.MediaType == MediaVideo }

// MediaFilePatch is a partial update to a MediaFile; nil fields are left
// untouched. This is the "typed patch struct" the design notes call for in
// place of arbitrary keyword updates.
type MediaFilePatch struct {
	FilePath       *string
	FileName       *string
	FileSize       *int64
	FileHash       *string
	FileDevice     *int64
	FileInode      *int64
	FileIdentifier *string
	Title          *string
	Description    *string
	Uploader       *string
	UploaderID     *string
	UploadDate     *string
	ViewCount      *int64
	LikeCount      *int64
	Duration       *float64
	Language       *string
	ThumbnailURL   *string
}

// MediaFileAttrs are the inputs to MediaRepo.Create.
type MediaFileAttrs struct {
	FilePath       string
	FileName       string
	FileSize       int64
	MediaType      MediaType
	MimeType       string
	FileHash       string
	FileDevice     *int64
	FileInode      *int64
	FileIdentifier *string
	SourceURL      *string
	SourcePlatform *string
	SourceID       *string
	Title          *string
	Description    *string
	Uploader       *string
	UploaderID     *string
	UploadDate     *string
	ViewCount      *int64
	LikeCount      *int64
	Duration       *float64
	Language       *string
}

// ProcessingJob is one unit of work tracked by the queue and worker runtime.
type ProcessingJob struct {
	ID              int64
	MediaFileID     *int64
	JobType         JobType
	InputPath       string
	OutputPath      string
	Parameters      string
	Status          JobStatus
	ErrorMessage    *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
	RetryCount      int
	MaxRetries      int
	WorkerPID       *int
}

// ProcessingJobPatch is a partial, non-status update to a ProcessingJob.
type ProcessingJobPatch struct {
	MediaFileID *int64
	OutputPath  *string
}

// Playlist is a named collection of videos from a remote source.
type Playlist struct {
	ID             int64
	PlaylistID     string
	Title          string
	Description    *string
	Uploader       *string
	UploaderID     *string
	SourceURL      string
	SourcePlatform string
	VideoCount     *int64
	ViewCount      *int64
	ThumbnailURL   *string
	CreatedAt      time.Time
}

// PlaylistAttrs are the inputs to PlaylistRepo.Create / Upsert.
type PlaylistAttrs struct {
	PlaylistID     string
	Title          string
	Description    *string
	Uploader       *string
	UploaderID     *string
	SourceURL      string
	SourcePlatform string
	VideoCount     *int64
	ViewCount      *int64
	ThumbnailURL   *string
}

// PlaylistVideo is the ordered many-to-many link between Playlist and
// MediaFile.
type PlaylistVideo struct {
	PlaylistID  int64
	MediaFileID int64
	Position    int
	VideoTitle  *string
}

// AnalyticsEvent is an append-only log entry.
type AnalyticsEvent struct {
	ID              int64
	EventType       string
	Timestamp       time.Time
	MediaFileID     *int64
	ProcessingJobID *int64
	EventData       string // opaque JSON, serialized by the caller
}

// TranscriptSegment is one timed span of spoken content.
type TranscriptSegment struct {
	Start float64
	End   float64
	Text  string
}

// Transcription is the textual result of transcribing a MediaFile.
type Transcription struct {
	ID             int64
	MediaFileID    int64
	Language       string
	Duration       float64
	ProcessingTime float64
	ModelUsed      string
	Segments       []TranscriptSegment
	FullText       string
	CreatedAt      time.Time
}
