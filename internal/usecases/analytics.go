package usecases

import (
	"context"
	"encoding/json"
	"log/slog"

	"spatelier/internal/ledger"
)

// trackEvent records one analytics event and never fails the caller: per
// original_source's _track_analytics_event (every use case wraps its
// tracking calls in a try/except that only logs), a broken analytics
// write must not roll back the work it is merely describing.
func trackEvent(ctx context.Context, svc *Services, eventType string, mediaFileID, jobID *int64, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to marshal analytics event data", "event_type", eventType, "error", err)
		return
	}
	if err := svc.Ledger.Analytics.TrackEvent(ctx, eventType, mediaFileID, jobID, string(payload)); err != nil {
		slog.Warn("failed to track analytics event", "event_type", eventType, "error", err)
	}
}

func jobIDPtr(job *ledger.ProcessingJob) *int64 {
	if job == nil {
		return nil
	}
	return &job.ID
}
