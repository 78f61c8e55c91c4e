package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spatelier/internal/ledgererr"
)

// MediaRepo persists MediaFile rows. Grounded on
// original_source/domain/services/media_file_tracker.py's
// track_media_file/update_media_file_path/get_media_file_by_path, whose
// create-or-adopt-then-update semantics are implemented here as the
// lower-level Create/GetByFilePath/Update primitives the use-case layer
// composes.
type MediaRepo struct {
	db *sql.DB
}

// Create inserts a new MediaFile row. It fails with Conflict if file_path
// or file_identifier collides, per spec.md §4.1.
func (r *MediaRepo) Create(ctx context.Context, attrs MediaFileAttrs) (*MediaFile, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO media_files (
				file_path, file_name, file_size, file_hash, media_type, mime_type,
				file_device, file_inode, file_identifier,
				source_url, source_platform, source_id,
				title, description, uploader, uploader_id, upload_date,
				view_count, like_count, duration, language
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			attrs.FilePath, attrs.FileName, attrs.FileSize, attrs.FileHash, string(attrs.MediaType), attrs.MimeType,
			attrs.FileDevice, attrs.FileInode, attrs.FileIdentifier,
			attrs.SourceURL, attrs.SourcePlatform, attrs.SourceID,
			attrs.Title, attrs.Description, attrs.Uploader, attrs.UploaderID, attrs.UploadDate,
			attrs.ViewCount, attrs.LikeCount, attrs.Duration, attrs.Language,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ledgererr.Conflict("media file already exists at this path or identifier")
			}
			return ledgererr.Storage("insert media_file", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return ledgererr.Storage("read inserted media_file id", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByFilePath returns the row at path, or (nil, nil) if absent.
func (r *MediaRepo) GetByFilePath(ctx context.Context, path string) (*MediaFile, error) {
	return r.scanOne(ctx, mediaSelectBase+" WHERE file_path = ?", path)
}

// GetByID returns the row with id, or (nil, nil) if absent.
func (r *MediaRepo) GetByID(ctx context.Context, id int64) (*MediaFile, error) {
	return r.scanOne(ctx, mediaSelectBase+" WHERE id = ?", id)
}

// GetByIdentifier returns the row matching the (device, inode) identity
// tuple, or (nil, nil) if absent. Backs the "tracking the same file twice
// yields the same media_file_id" idempotence law in spec.md §8.
func (r *MediaRepo) GetByIdentifier(ctx context.Context, identifier string) (*MediaFile, error) {
	return r.scanOne(ctx, mediaSelectBase+" WHERE file_identifier = ?", identifier)
}

// Update applies patch to the row with id. Fails with NotFound if missing.
func (r *MediaRepo) Update(ctx context.Context, id int64, patch MediaFilePatch) error {
	sets := []string{}
	args := []any{}
	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if patch.FilePath != nil {
		add("file_path", *patch.FilePath)
	}
	if patch.FileName != nil {
		add("file_name", *patch.FileName)
	}
	if patch.FileSize != nil {
		add("file_size", *patch.FileSize)
	}
	if patch.FileHash != nil {
		add("file_hash", *patch.FileHash)
	}
	if patch.FileDevice != nil {
		add("file_device", *patch.FileDevice)
	}
	if patch.FileInode != nil {
		add("file_inode", *patch.FileInode)
	}
	if patch.FileIdentifier != nil {
		add("file_identifier", *patch.FileIdentifier)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Uploader != nil {
		add("uploader", *patch.Uploader)
	}
	if patch.UploaderID != nil {
		add("uploader_id", *patch.UploaderID)
	}
	if patch.UploadDate != nil {
		add("upload_date", *patch.UploadDate)
	}
	if patch.ViewCount != nil {
		add("view_count", *patch.ViewCount)
	}
	if patch.LikeCount != nil {
		add("like_count", *patch.LikeCount)
	}
	if patch.Duration != nil {
		add("duration", *patch.Duration)
	}
	if patch.Language != nil {
		add("language", *patch.Language)
	}
	if patch.ThumbnailURL != nil {
		add("thumbnail_url", *patch.ThumbnailURL)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE media_files SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			if isUniqueViolation(err) {
				return ledgererr.Conflict("update would collide with an existing media file")
			}
			return ledgererr.Storage("update media_file", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledgererr.Storage("read rows affected", err)
		}
		if n == 0 {
			return ledgererr.NotFound(fmt.Sprintf("media_file %d not found", id))
		}
		return nil
	})
}

const mediaSelectBase = `
	SELECT id, file_path, file_name, file_size, file_hash, media_type, mime_type,
	       file_device, file_inode, file_identifier,
	       source_url, source_platform, source_id,
	       title, description, uploader, uploader_id, upload_date,
	       view_count, like_count, duration, language, thumbnail_url, created_at
	FROM media_files`

func (r *MediaRepo) scanOne(ctx context.Context, query string, args ...any) (*MediaFile, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	m, err := scanMediaFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan media_file", err)
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaFile(row rowScanner) (*MediaFile, error) {
	var m MediaFile
	var mediaType string
	var fileDevice, fileInode, viewCount, likeCount sql.NullInt64
	var fileIdentifier, sourceURL, sourcePlatform, sourceID sql.NullString
	var title, description, uploader, uploaderID, uploadDate, language, thumbnailURL sql.NullString
	var duration sql.NullFloat64

	if err := row.Scan(
		&m.ID, &m.FilePath, &m.FileName, &m.FileSize, &m.FileHash, &mediaType, &m.MimeType,
		&fileDevice, &fileInode, &fileIdentifier,
		&sourceURL, &sourcePlatform, &sourceID,
		&title, &description, &uploader, &uploaderID, &uploadDate,
		&viewCount, &likeCount, &duration, &language, &thumbnailURL, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.MediaType = MediaType(mediaType)
	m.FileDevice = nullInt64Ptr(fileDevice)
	m.FileInode = nullInt64Ptr(fileInode)
	m.FileIdentifier = nullStringPtr(fileIdentifier)
	m.SourceURL = nullStringPtr(sourceURL)
	m.SourcePlatform = nullStringPtr(sourcePlatform)
	m.SourceID = nullStringPtr(sourceID)
	m.Title = nullStringPtr(title)
	m.Description = nullStringPtr(description)
	m.Uploader = nullStringPtr(uploader)
	m.UploaderID = nullStringPtr(uploaderID)
	m.UploadDate = nullStringPtr(uploadDate)
	m.ViewCount = nullInt64Ptr(viewCount)
	m.LikeCount = nullInt64Ptr(likeCount)
	m.Duration = nullFloat64Ptr(duration)
	m.Language = nullStringPtr(language)
	m.ThumbnailURL = nullStringPtr(thumbnailURL)
	return &m, nil
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullFloat64Ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
