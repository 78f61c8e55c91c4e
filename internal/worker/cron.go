package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"spatelier/internal/ledger"
)

// RetentionSweeper periodically deletes terminal rows older than
// JobRetention, separate from the per-iteration stuck-job sweep in
// Runtime.Run. Grounded on the teacher's cmd/worker/main.go cleanup
// ticker (an hourly time.Ticker firing CleanupExpiredJobs), rewired onto
// robfig/cron/v3 so the schedule is a configurable expression rather
// than a hardcoded interval.
type RetentionSweeper struct {
	ledger    *ledger.Ledger
	retention time.Duration
	cron      *cron.Cron
}

// NewRetentionSweeper builds a sweeper that runs on schedule (a standard
// 5-field cron expression, e.g. "0 * * * *" for hourly) deleting rows
// completed more than retention ago.
func NewRetentionSweeper(l *ledger.Ledger, schedule string, retention time.Duration) (*RetentionSweeper, error) {
	c := cron.New()
	s := &RetentionSweeper{ledger: l, retention: retention, cron: c}
	if _, err := c.AddFunc(schedule, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron schedule in the background.
func (s *RetentionSweeper) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight sweep to finish.
func (s *RetentionSweeper) Stop() { <-s.cron.Stop().Done() }

func (s *RetentionSweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	before := time.Now().UTC().Add(-s.retention)
	jobsRemoved, err := s.ledger.Jobs.SweepExpired(ctx, before)
	if err != nil {
		slog.Error("job retention sweep failed", "error", err)
		return
	}
	eventsRemoved, err := s.ledger.Analytics.SweepExpired(ctx, before)
	if err != nil {
		slog.Error("analytics retention sweep failed", "error", err)
		return
	}
	if jobsRemoved > 0 || eventsRemoved > 0 {
		slog.Info("retention sweep complete", "jobs_removed", jobsRemoved, "events_removed", eventsRemoved)
	}
}
