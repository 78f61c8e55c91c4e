// Package queue is the thin protocol layer over the Ledger's
// ProcessingJob table that spec.md §4.3 describes: enqueue, claim_next,
// complete, fail, get_jobs_by_status, get_queue_status. The Ledger is the
// queue of record; Redis, which the teacher used as the queue itself
// (internal/queue/queue.go's waiting/running/success/failed key scheme),
// is repurposed here as a side channel: a pub/sub notification bus so
// workers don't have to busy-poll, and a distributed throttle clock for
// MinTimeBetweenJobs when multiple worker processes share one Redis.
package queue

import (
	"context"

	"spatelier/internal/ledger"
)

// Queue wraps a Ledger with the notification side channel. bus may be
// nil, in which case Enqueue/Complete/Fail simply skip publishing and
// callers fall back to polling ClaimNext on an interval.
type Queue struct {
	ledger *ledger.Ledger
	bus    *NotificationBus
}

// New builds a Queue over ledger, optionally wired to a NotificationBus.
func New(l *ledger.Ledger, bus *NotificationBus) *Queue {
	return &Queue{ledger: l, bus: bus}
}

// Enqueue creates a new pending job and, if a bus is attached, publishes
// an enqueued event to the bus's subscribers (see NotificationBus.Subscribe).
func (q *Queue) Enqueue(ctx context.Context, attrs ledger.JobAttrs) (*ledger.ProcessingJob, error) {
	job, err := q.ledger.Jobs.Create(ctx, attrs)
	if err != nil {
		return nil, err
	}
	q.notify(ctx, EventEnqueued, job.ID)
	return job, nil
}

// ClaimNext atomically claims the oldest runnable job for workerPID. A
// nil, nil return means nothing is currently claimable.
func (q *Queue) ClaimNext(ctx context.Context, workerPID int) (*ledger.ProcessingJob, error) {
	return q.ledger.Jobs.ClaimNext(ctx, workerPID)
}

// Complete marks jobID completed.
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	if err := q.ledger.Jobs.UpdateStatus(ctx, jobID, ledger.JobCompleted, nil); err != nil {
		return err
	}
	q.notify(ctx, EventCompleted, jobID)
	return nil
}

// Fail marks jobID failed with reason. If the job still has retries
// remaining, ClaimNext will pick it back up on a future poll; Fail
// itself only records the terminal attempt's outcome, per
// JobRepo.UpdateStatus's monotone state machine.
func (q *Queue) Fail(ctx context.Context, jobID int64, reason string) error {
	if err := q.ledger.Jobs.UpdateStatus(ctx, jobID, ledger.JobFailed, &reason); err != nil {
		return err
	}
	q.notify(ctx, EventFailed, jobID)
	return nil
}

// Retry increments jobID's retry counter. The job's status stays failed;
// ClaimNext picks a failed job up again while retry_count < max_retries.
func (q *Queue) Retry(ctx context.Context, jobID int64) error {
	if err := q.ledger.Jobs.IncrementRetry(ctx, jobID); err != nil {
		return err
	}
	q.notify(ctx, EventRetried, jobID)
	return nil
}

// ExhaustRetries marks jobID as permanently failed: no future ClaimNext
// sweep will treat it as retryable.
func (q *Queue) ExhaustRetries(ctx context.Context, jobID int64) error {
	return q.ledger.Jobs.ExhaustRetries(ctx, jobID)
}

// ManualRetry reactivates a failed job regardless of retry exhaustion,
// for the status API's manual-retry control.
func (q *Queue) ManualRetry(ctx context.Context, jobID int64) error {
	if err := q.ledger.Jobs.ManualRetry(ctx, jobID); err != nil {
		return err
	}
	q.notify(ctx, EventRetried, jobID)
	return nil
}

// GetJob returns a single job by ID.
func (q *Queue) GetJob(ctx context.Context, jobID int64) (*ledger.ProcessingJob, error) {
	return q.ledger.Jobs.GetByID(ctx, jobID)
}

// GetJobsByStatus lists jobs in a given status.
func (q *Queue) GetJobsByStatus(ctx context.Context, status ledger.JobStatus) ([]*ledger.ProcessingJob, error) {
	return q.ledger.Jobs.GetJobsByStatus(ctx, status)
}

// GetQueueStatus returns aggregate counts across all statuses.
func (q *Queue) GetQueueStatus(ctx context.Context) (ledger.JobStatistics, error) {
	return q.ledger.Jobs.GetJobStatistics(ctx)
}

func (q *Queue) notify(ctx context.Context, event string, jobID int64) {
	if q.bus == nil {
		return
	}
	if err := q.bus.Publish(ctx, event, jobID); err != nil {
		// Notification is an optimization, not a correctness requirement:
		// the Worker Runtime finds work by polling ClaimNext, not by
		// subscribing, so a missed publish changes no job's outcome.
		_ = err
	}
}
