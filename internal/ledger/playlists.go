package ledger

import (
	"context"
	"database/sql"
	"errors"

	"spatelier/internal/ledgererr"
)

// PlaylistRepo persists Playlist rows. Grounded on
// original_source/domain/services/playlist_tracker.py's track_playlist,
// which upserts on playlist_id and otherwise creates.
type PlaylistRepo struct {
	db *sql.DB
}

// GetByPlaylistID returns the row for (playlist_id, source_platform), or
// (nil, nil) if absent.
func (r *PlaylistRepo) GetByPlaylistID(ctx context.Context, playlistID, sourcePlatform string) (*Playlist, error) {
	row := r.db.QueryRowContext(ctx, playlistSelectBase+" WHERE playlist_id = ? AND source_platform = ?", playlistID, sourcePlatform)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan playlist", err)
	}
	return p, nil
}

// Create inserts a new playlist row.
func (r *PlaylistRepo) Create(ctx context.Context, attrs PlaylistAttrs) (*Playlist, error) {
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO playlists (playlist_id, title, description, uploader, uploader_id, source_url, source_platform, video_count, view_count, thumbnail_url)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			attrs.PlaylistID, attrs.Title, attrs.Description, attrs.Uploader, attrs.UploaderID,
			attrs.SourceURL, attrs.SourcePlatform, attrs.VideoCount, attrs.ViewCount, attrs.ThumbnailURL,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ledgererr.Conflict("playlist already exists for this platform")
			}
			return ledgererr.Storage("insert playlist", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return ledgererr.Storage("read inserted playlist id", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, id)
}

// Upsert creates the playlist if it doesn't exist for (playlist_id,
// source_platform), otherwise updates the mutable metadata fields in
// place — mirroring playlist_tracker.py's branch between create() and the
// existing_playlist.title = ... field-by-field update.
func (r *PlaylistRepo) Upsert(ctx context.Context, attrs PlaylistAttrs) (*Playlist, error) {
	existing, err := r.GetByPlaylistID(ctx, attrs.PlaylistID, attrs.SourcePlatform)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return r.Create(ctx, attrs)
	}
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE playlists SET title = ?, description = ?, uploader = ?, uploader_id = ?,
				source_url = ?, video_count = ?, view_count = ?, thumbnail_url = ?
			WHERE id = ?`,
			attrs.Title, attrs.Description, attrs.Uploader, attrs.UploaderID,
			attrs.SourceURL, attrs.VideoCount, attrs.ViewCount, attrs.ThumbnailURL, existing.ID)
		if err != nil {
			return ledgererr.Storage("update playlist", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, existing.ID)
}

func (r *PlaylistRepo) getByID(ctx context.Context, id int64) (*Playlist, error) {
	row := r.db.QueryRowContext(ctx, playlistSelectBase+" WHERE id = ?", id)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan playlist", err)
	}
	return p, nil
}

const playlistSelectBase = `
	SELECT id, playlist_id, title, description, uploader, uploader_id, source_url, source_platform,
	       video_count, view_count, thumbnail_url, created_at
	FROM playlists`

func scanPlaylist(row rowScanner) (*Playlist, error) {
	var p Playlist
	var description, uploader, uploaderID, thumbnailURL sql.NullString
	var videoCount, viewCount sql.NullInt64
	if err := row.Scan(
		&p.ID, &p.PlaylistID, &p.Title, &description, &uploader, &uploaderID, &p.SourceURL, &p.SourcePlatform,
		&videoCount, &viewCount, &thumbnailURL, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.Description = nullStringPtr(description)
	p.Uploader = nullStringPtr(uploader)
	p.UploaderID = nullStringPtr(uploaderID)
	p.ThumbnailURL = nullStringPtr(thumbnailURL)
	p.VideoCount = nullInt64Ptr(videoCount)
	p.ViewCount = nullInt64Ptr(viewCount)
	return &p, nil
}

// PlaylistVideoRepo persists the playlist<->media_file link table.
type PlaylistVideoRepo struct {
	db *sql.DB
}

// AddVideoToPlaylist links mediaFileID into playlistID at position,
// failing with Conflict on a duplicate (playlist_id, position) pair per
// spec.md §4.1. Grounded on playlist_tracker.py's link_video_to_playlist.
func (r *PlaylistVideoRepo) AddVideoToPlaylist(ctx context.Context, playlistID, mediaFileID int64, position int, title *string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO playlist_videos (playlist_id, media_file_id, position, video_title)
			VALUES (?, ?, ?, ?)`, playlistID, mediaFileID, position, title)
		if err != nil {
			if isUniqueViolation(err) {
				return ledgererr.Conflict("duplicate playlist position")
			}
			return ledgererr.Storage("insert playlist_video", err)
		}
		return nil
	})
}

// ListByPlaylist returns every linked video, ordered by position.
func (r *PlaylistVideoRepo) ListByPlaylist(ctx context.Context, playlistID int64) ([]*PlaylistVideo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT playlist_id, media_file_id, position, video_title FROM playlist_videos
		WHERE playlist_id = ? ORDER BY position ASC`, playlistID)
	if err != nil {
		return nil, ledgererr.Storage("query playlist_videos", err)
	}
	defer rows.Close()

	var out []*PlaylistVideo
	for rows.Next() {
		var pv PlaylistVideo
		var title sql.NullString
		if err := rows.Scan(&pv.PlaylistID, &pv.MediaFileID, &pv.Position, &title); err != nil {
			return nil, ledgererr.Storage("scan playlist_video", err)
		}
		pv.VideoTitle = nullStringPtr(title)
		out = append(out, &pv)
	}
	return out, rows.Err()
}
