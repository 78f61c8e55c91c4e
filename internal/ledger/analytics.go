package ledger

import (
	"context"
	"database/sql"
	"time"

	"spatelier/internal/ledgererr"
)

// AnalyticsRepo persists append-only AnalyticsEvent rows. Never mutated
// after insert, per spec.md §3.
type AnalyticsRepo struct {
	db *sql.DB
}

// TrackEvent records one event. Per spec.md §4.1, it never fails on
// malformed data (the caller is responsible for producing valid JSON in
// eventData); only persistence failures surface, and as a Storage error.
func (r *AnalyticsRepo) TrackEvent(ctx context.Context, eventType string, mediaFileID, processingJobID *int64, eventData string) error {
	if eventData == "" {
		eventData = "{}"
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analytics_events (event_type, media_file_id, processing_job_id, event_data)
			VALUES (?, ?, ?, ?)`, eventType, mediaFileID, processingJobID, eventData)
		if err != nil {
			return ledgererr.Storage("insert analytics_event", err)
		}
		return nil
	})
}

// ListByType returns events of the given type, most recent first, capped
// at limit.
func (r *AnalyticsRepo) ListByType(ctx context.Context, eventType string, limit int) ([]*AnalyticsEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, media_file_id, processing_job_id, event_data
		FROM analytics_events WHERE event_type = ? ORDER BY timestamp DESC LIMIT ?`, eventType, limit)
	if err != nil {
		return nil, ledgererr.Storage("query analytics_events", err)
	}
	defer rows.Close()

	var out []*AnalyticsEvent
	for rows.Next() {
		var e AnalyticsEvent
		var mediaFileID, jobID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.EventType, &e.Timestamp, &mediaFileID, &jobID, &e.EventData); err != nil {
			return nil, ledgererr.Storage("scan analytics_event", err)
		}
		e.MediaFileID = nullInt64Ptr(mediaFileID)
		e.ProcessingJobID = nullInt64Ptr(jobID)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SweepExpired deletes events older than cutoff. Carried into the Ledger
// alongside JobRepo.SweepExpired per SPEC_FULL.md's retention supplement;
// analytics rows have no natural terminal state so retention is the only
// thing that bounds their growth.
func (r *AnalyticsRepo) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE timestamp < ?`, before)
	if err != nil {
		return 0, ledgererr.Storage("sweep expired analytics_events", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ledgererr.Storage("read rows affected", err)
	}
	return n, nil
}
