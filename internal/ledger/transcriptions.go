package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"spatelier/internal/ledgererr"
)

// TranscriptionRepo persists Transcription rows and keeps the FTS5 shadow
// index (transcriptions_fts, maintained by triggers in db.go) synchronized
// within the same transaction as every insert/update/delete, per spec.md
// §4.1's full-text search invariant.
type TranscriptionRepo struct {
	db *sql.DB
}

// Store inserts a new transcription for mediaFileID. full_text is
// computed as the deterministic space-join of segment texts (spec.md §3),
// not trusted from the caller, so the round-trip law in spec.md §8 holds
// by construction.
func (r *TranscriptionRepo) Store(ctx context.Context, mediaFileID int64, language string, duration, processingTime float64, modelUsed string, segments []TranscriptSegment) (*Transcription, error) {
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return nil, ledgererr.Permanent("marshal segments", err)
	}
	fullText := joinSegments(segments)

	var id int64
	txErr := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO transcriptions (media_file_id, language, duration, processing_time, model_used, segments_json, full_text)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			mediaFileID, language, duration, processingTime, modelUsed, string(segmentsJSON), fullText)
		if err != nil {
			return ledgererr.Storage("insert transcription", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return ledgererr.Storage("read inserted transcription id", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return r.getByID(ctx, id)
}

func joinSegments(segments []TranscriptSegment) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return strings.Join(texts, " ")
}

// Get returns the most recent transcription for mediaFileID, or (nil, nil)
// if none exists.
func (r *TranscriptionRepo) Get(ctx context.Context, mediaFileID int64) (*Transcription, error) {
	row := r.db.QueryRowContext(ctx, transcriptionSelectBase+" WHERE media_file_id = ? ORDER BY id DESC LIMIT 1", mediaFileID)
	t, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan transcription", err)
	}
	return t, nil
}

func (r *TranscriptionRepo) getByID(ctx context.Context, id int64) (*Transcription, error) {
	row := r.db.QueryRowContext(ctx, transcriptionSelectBase+" WHERE id = ?", id)
	t, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan transcription", err)
	}
	return t, nil
}

// Search runs query against the full-text shadow index, returning results
// ranked by relevance. Only rows visible at commit time are returned,
// since FTS5's content table mirrors transcriptions transactionally via
// the triggers in db.go.
func (r *TranscriptionRepo) Search(ctx context.Context, query string, limit int) ([]*Transcription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.media_file_id, t.language, t.duration, t.processing_time, t.model_used, t.segments_json, t.full_text, t.created_at
		FROM transcriptions_fts f
		JOIN transcriptions t ON t.id = f.rowid
		WHERE transcriptions_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, ledgererr.Storage("full-text search transcriptions", err)
	}
	defer rows.Close()

	var out []*Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, ledgererr.Storage("scan transcription search result", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const transcriptionSelectBase = `
	SELECT id, media_file_id, language, duration, processing_time, model_used, segments_json, full_text, created_at
	FROM transcriptions`

func scanTranscription(row rowScanner) (*Transcription, error) {
	var t Transcription
	var segmentsJSON string
	if err := row.Scan(
		&t.ID, &t.MediaFileID, &t.Language, &t.Duration, &t.ProcessingTime, &t.ModelUsed, &segmentsJSON, &t.FullText, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(segmentsJSON), &t.Segments); err != nil {
		return nil, err
	}
	return &t, nil
}
