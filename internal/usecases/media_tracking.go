package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"spatelier/internal/ledger"
	"spatelier/internal/ledgererr"
)

// trackedFile carries the few facts about an on-disk file every use case
// needs before touching the Ledger.
type trackedFile struct {
	size   int64
	hash   string
	device *int64
	inode  *int64
}

func statFile(path string) (trackedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return trackedFile{}, ledgererr.Storage("open file for tracking", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return trackedFile{}, ledgererr.Storage("stat file for tracking", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return trackedFile{}, ledgererr.Storage("hash file for tracking", err)
	}

	tf := trackedFile{size: info.Size(), hash: hex.EncodeToString(h.Sum(nil))}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		dev := int64(stat.Dev)
		ino := int64(stat.Ino)
		tf.device = &dev
		tf.inode = &ino
	}
	return tf, nil
}

func fileIdentifier(device, inode *int64) *string {
	if device == nil || inode == nil {
		return nil
	}
	id := strconv.FormatInt(*device, 10) + ":" + strconv.FormatInt(*inode, 10)
	return &id
}

// mediaTrackInput carries the metadata trackMediaFile should attach to a
// newly created or migrated MediaFile row.
type mediaTrackInput struct {
	FilePath     string
	OriginalPath string // non-empty when the caller knows a prior path this file moved from
	MediaType    ledger.MediaType
	SourceURL    string
	SourceID     string
	Meta         collaboratorsMetadata
}

// collaboratorsMetadata mirrors the subset of collaborators.VideoMetadata
// trackMediaFile persists, kept here (rather than importing the
// collaborators package directly) so this file has a single narrow
// dependency surface independent of which collaborator produced it.
type collaboratorsMetadata struct {
	Title       string
	Description string
	Uploader    string
	UploaderID  string
	UploadDate  string
	ViewCount   *int64
	LikeCount   *int64
	Duration    *float64
	Language    string
}

// trackMediaFile is the shared idempotent MediaFile create-or-migrate
// routine spec.md §4.5 step 7 describes, grounded on
// original_source/domain/services/media_file_tracker.py's
// track_media_file: if a row exists at the final path, update it in
// place; if one exists at a previously recorded path (the file moved),
// migrate that row to the new path; otherwise create.
func trackMediaFile(ctx context.Context, svc *Services, in mediaTrackInput) (*ledger.MediaFile, error) {
	tf, err := statFile(in.FilePath)
	if err != nil {
		return nil, err
	}
	identifier := fileIdentifier(tf.device, tf.inode)

	existing, err := svc.Ledger.Media.GetByFilePath(ctx, in.FilePath)
	if err != nil {
		return nil, err
	}
	if existing == nil && in.OriginalPath != "" {
		existing, err = svc.Ledger.Media.GetByFilePath(ctx, in.OriginalPath)
		if err != nil {
			return nil, err
		}
	}
	if existing == nil && identifier != nil {
		existing, err = svc.Ledger.Media.GetByIdentifier(ctx, *identifier)
		if err != nil {
			return nil, err
		}
	}

	fileName := filepath.Base(in.FilePath)
	mimeType := mimeTypeForExt(filepath.Ext(in.FilePath))

	if existing != nil {
		patch := ledger.MediaFilePatch{
			FilePath:       strPtr(in.FilePath),
			FileName:       strPtr(fileName),
			FileSize:       &tf.size,
			FileHash:       strPtr(tf.hash),
			FileDevice:     tf.device,
			FileInode:      tf.inode,
			FileIdentifier: identifier,
		}
		applyOptionalMeta(&patch, in.Meta)
		if err := svc.Ledger.Media.Update(ctx, existing.ID, patch); err != nil {
			return nil, err
		}
		return svc.Ledger.Media.GetByID(ctx, existing.ID)
	}

	attrs := ledger.MediaFileAttrs{
		FilePath:       in.FilePath,
		FileName:       fileName,
		FileSize:       tf.size,
		FileHash:       tf.hash,
		MediaType:      in.MediaType,
		MimeType:       mimeType,
		FileDevice:     tf.device,
		FileInode:      tf.inode,
		FileIdentifier: identifier,
		Title:          strPtrOrNil(in.Meta.Title),
		Description:    strPtrOrNil(in.Meta.Description),
		Uploader:       strPtrOrNil(in.Meta.Uploader),
		UploaderID:     strPtrOrNil(in.Meta.UploaderID),
		UploadDate:     strPtrOrNil(in.Meta.UploadDate),
		ViewCount:      in.Meta.ViewCount,
		LikeCount:      in.Meta.LikeCount,
		Duration:       in.Meta.Duration,
		Language:       strPtrOrNil(in.Meta.Language),
	}
	if in.SourceURL != "" {
		attrs.SourceURL = strPtr(in.SourceURL)
	}
	if in.SourceID != "" {
		attrs.SourceID = strPtr(in.SourceID)
	}
	return svc.Ledger.Media.Create(ctx, attrs)
}

func applyOptionalMeta(patch *ledger.MediaFilePatch, m collaboratorsMetadata) {
	if m.Title != "" {
		patch.Title = strPtr(m.Title)
	}
	if m.Description != "" {
		patch.Description = strPtr(m.Description)
	}
	if m.Uploader != "" {
		patch.Uploader = strPtr(m.Uploader)
	}
	if m.UploaderID != "" {
		patch.UploaderID = strPtr(m.UploaderID)
	}
	if m.UploadDate != "" {
		patch.UploadDate = strPtr(m.UploadDate)
	}
	if m.ViewCount != nil {
		patch.ViewCount = m.ViewCount
	}
	if m.LikeCount != nil {
		patch.LikeCount = m.LikeCount
	}
	if m.Duration != nil {
		patch.Duration = m.Duration
	}
	if m.Language != "" {
		patch.Language = strPtr(m.Language)
	}
}

func strPtr(s string) *string { return &s }

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mimeTypeForExt(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
