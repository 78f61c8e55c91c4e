package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"spatelier/internal/ledgererr"
)

// JobRepo persists ProcessingJob rows and is the sole entry point for
// status transitions, per spec.md §4.1. Grounded on
// original_source/domain/services/job_manager.py (create_job,
// update_job_status, update) for the shape of the contract, and on
// spec.md §4.3's claim_next description for ClaimNext's conditional-update
// semantics.
type JobRepo struct {
	db *sql.DB
}

// JobAttrs are the inputs to JobRepo.Create.
type JobAttrs struct {
	MediaFileID *int64
	JobType     JobType
	InputPath   string
	OutputPath  string
	Parameters  string
	MaxRetries  int
}

// Create inserts a new pending job with retry_count = 0.
func (r *JobRepo) Create(ctx context.Context, attrs JobAttrs) (*ProcessingJob, error) {
	maxRetries := attrs.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	var id int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO processing_jobs (media_file_id, job_type, input_path, output_path, parameters, status, retry_count, max_retries)
			VALUES (?, ?, ?, ?, ?, 'pending', 0, ?)`,
			attrs.MediaFileID, string(attrs.JobType), attrs.InputPath, attrs.OutputPath, attrs.Parameters, maxRetries,
		)
		if err != nil {
			return ledgererr.Storage("insert processing_job", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return ledgererr.Storage("read inserted processing_job id", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns the job with id, or (nil, nil) if absent.
func (r *JobRepo) GetByID(ctx context.Context, id int64) (*ProcessingJob, error) {
	row := r.db.QueryRowContext(ctx, jobSelectBase+" WHERE id = ?", id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Storage("scan processing_job", err)
	}
	return j, nil
}

// Update applies a non-status patch (media_file_id / output_path).
func (r *JobRepo) Update(ctx context.Context, id int64, patch ProcessingJobPatch) error {
	if patch.MediaFileID == nil && patch.OutputPath == nil {
		return nil
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		var res sql.Result
		switch {
		case patch.MediaFileID != nil && patch.OutputPath != nil:
			res, err = tx.ExecContext(ctx, `UPDATE processing_jobs SET media_file_id = ?, output_path = ? WHERE id = ?`,
				*patch.MediaFileID, *patch.OutputPath, id)
		case patch.MediaFileID != nil:
			res, err = tx.ExecContext(ctx, `UPDATE processing_jobs SET media_file_id = ? WHERE id = ?`, *patch.MediaFileID, id)
		default:
			res, err = tx.ExecContext(ctx, `UPDATE processing_jobs SET output_path = ? WHERE id = ?`, *patch.OutputPath, id)
		}
		if err != nil {
			return ledgererr.Storage("update processing_job", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledgererr.Storage("read rows affected", err)
		}
		if n == 0 {
			return ledgererr.NotFound("processing_job not found")
		}
		return nil
	})
}

var monotoneEdges = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing},
	JobProcessing: {JobCompleted, JobFailed},
	// a failed job that still has retries left is reclaimed straight to
	// processing by ClaimNext, not by update_status directly.
}

// UpdateStatus is the sole entry point for status changes (spec.md §4.1).
// It enforces monotonicity, stamps started_at on pending->processing, and
// on any terminal edge stamps completed_at and computes duration_seconds
// when started_at is known.
func (r *JobRepo) UpdateStatus(ctx context.Context, id int64, newStatus JobStatus, errMsg *string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var current JobStatus
		var startedAt sql.NullTime
		row := tx.QueryRowContext(ctx, `SELECT status, started_at FROM processing_jobs WHERE id = ?`, id)
		if err := row.Scan(&current, &startedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledgererr.NotFound("processing_job not found")
			}
			return ledgererr.Storage("read processing_job status", err)
		}

		if !transitionAllowed(current, newStatus) {
			return ledgererr.InvalidTransition(string(current) + " -> " + string(newStatus))
		}

		now := nowUTC()
		switch newStatus {
		case JobProcessing:
			_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET status = ?, started_at = ?, error_message = NULL WHERE id = ?`,
				string(newStatus), now, id)
			if err != nil {
				return ledgererr.Storage("update processing_job status", err)
			}
		case JobCompleted, JobFailed:
			var duration any
			if startedAt.Valid {
				duration = now.Sub(startedAt.Time).Seconds()
			}
			_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET status = ?, completed_at = ?, duration_seconds = ?, error_message = ? WHERE id = ?`,
				string(newStatus), now, duration, errMsg, id)
			if err != nil {
				return ledgererr.Storage("update processing_job status", err)
			}
		default:
			_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET status = ? WHERE id = ?`, string(newStatus), id)
			if err != nil {
				return ledgererr.Storage("update processing_job status", err)
			}
		}
		return nil
	})
}

func transitionAllowed(from, to JobStatus) bool {
	if from == to {
		return false
	}
	for _, allowed := range monotoneEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ClaimNext atomically selects the oldest pending (or retryable failed)
// job, transitions it to processing, and records worker_pid/started_at.
// The conditional UPDATE ... WHERE status = <observed> guards against two
// concurrent claimers racing the same row (spec.md §4.3, §8 scenario 6).
// It also refuses to claim a job whose media_file_id already has an
// in-flight sibling, generalizing the teacher's Queue.IsUserRunning
// per-user single-flight lock (internal/queue/queue.go in the teacher) to
// per-media-file single-flight (spec.md §5).
func (r *JobRepo) ClaimNext(ctx context.Context, workerPID int) (*ProcessingJob, error) {
	var claimed *ProcessingJob
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id FROM processing_jobs
			WHERE (
				status = 'pending'
				OR (status = 'failed' AND retry_count < max_retries)
			)
			AND (
				media_file_id IS NULL
				OR media_file_id NOT IN (
					SELECT media_file_id FROM processing_jobs
					WHERE status = 'processing' AND media_file_id IS NOT NULL
				)
			)
			ORDER BY
				CASE WHEN status = 'pending' THEN 0 ELSE 1 END,
				id ASC
			LIMIT 1`)
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return ledgererr.Storage("select next claimable job", err)
		}

		now := nowUTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'processing', worker_pid = ?, started_at = ?, error_message = NULL
			WHERE id = ? AND status IN ('pending', 'failed')`,
			workerPID, now, id)
		if err != nil {
			return ledgererr.Storage("claim processing_job", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledgererr.Storage("read rows affected", err)
		}
		if n == 0 {
			// lost the race to another claimer between SELECT and UPDATE;
			// the caller's next poll iteration will try again.
			return nil
		}

		row2 := tx.QueryRowContext(ctx, jobSelectBase+" WHERE id = ?", id)
		j, err := scanJob(row2)
		if err != nil {
			return ledgererr.Storage("scan claimed processing_job", err)
		}
		claimed = j
		return nil
	})
	return claimed, err
}

// IncrementRetry bumps retry_count by one; used by Fail when a job is
// retryable and under its max_retries.
func (r *JobRepo) IncrementRetry(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET retry_count = retry_count + 1 WHERE id = ?`, id)
		if err != nil {
			return ledgererr.Storage("increment retry_count", err)
		}
		return nil
	})
}

// ExhaustRetries caps max_retries down to the job's current retry_count,
// so ClaimNext's "failed AND retry_count < max_retries" claimability
// check stops matching it. Used when the worker classifies a failure as
// Permanent: the row stays failed without needing retry_count to climb
// all the way to max_retries first.
func (r *JobRepo) ExhaustRetries(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET max_retries = retry_count WHERE id = ?`, id)
		if err != nil {
			return ledgererr.Storage("exhaust retries", err)
		}
		return nil
	})
}

// GetJobsByStatus lists jobs in the given status, oldest first.
func (r *JobRepo) GetJobsByStatus(ctx context.Context, status JobStatus) ([]*ProcessingJob, error) {
	rows, err := r.db.QueryContext(ctx, jobSelectBase+" WHERE status = ? ORDER BY id ASC", string(status))
	if err != nil {
		return nil, ledgererr.Storage("query processing_jobs by status", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// GetStuckCandidates returns processing jobs whose started_at is older
// than cutoff, for the worker runtime's stuck-job sweep to liveness-check.
func (r *JobRepo) GetStuckCandidates(ctx context.Context, cutoff time.Time) ([]*ProcessingJob, error) {
	rows, err := r.db.QueryContext(ctx, jobSelectBase+" WHERE status = 'processing' AND started_at < ? ORDER BY id ASC", cutoff)
	if err != nil {
		return nil, ledgererr.Storage("query stuck candidates", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// JobStatistics summarizes queue depth by status.
type JobStatistics struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Retrying   int // failed, retry_count < max_retries
}

// GetJobStatistics computes queue-wide counts (spec.md §4.3's
// get_queue_status).
func (r *JobRepo) GetJobStatistics(ctx context.Context) (JobStatistics, error) {
	var stats JobStatistics
	row := r.db.QueryRowContext(ctx, `
		SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' AND retry_count < max_retries THEN 1 ELSE 0 END)
		FROM processing_jobs`)
	var pending, processing, completed, failed, retrying sql.NullInt64
	if err := row.Scan(&pending, &processing, &completed, &failed, &retrying); err != nil {
		return stats, ledgererr.Storage("compute job statistics", err)
	}
	stats.Pending = int(pending.Int64)
	stats.Processing = int(processing.Int64)
	stats.Completed = int(completed.Int64)
	stats.Failed = int(failed.Int64)
	stats.Retrying = int(retrying.Int64)
	return stats, nil
}

// SweepExpired deletes terminal (completed or failed-exhausted) jobs
// completed before cutoff. Grounded on the teacher's
// Queue.CleanupExpiredJobs retention sweep (internal/queue/queue.go),
// since spec.md §3 says terminal rows are "retained (history)" but not
// forever.
func (r *JobRepo) SweepExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM processing_jobs
		WHERE completed_at IS NOT NULL AND completed_at < ?
		AND (status = 'completed' OR (status = 'failed' AND retry_count >= max_retries))`, before)
	if err != nil {
		return 0, ledgererr.Storage("sweep expired processing_jobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ledgererr.Storage("read rows affected", err)
	}
	return n, nil
}

// ManualRetry reactivates a failed job for the status API's operator-
// triggered retry control (spec.md §4.3's queue operations extended with
// a manual override, since automatic retries alone leave an
// exhausted-retries job permanently failed). It only accepts jobs
// currently in JobFailed, and raises max_retries by one beyond the
// current retry_count so ClaimNext's "failed AND retry_count <
// max_retries" predicate picks the row back up on the very next sweep,
// regardless of whether automatic retries had already been exhausted.
func (r *JobRepo) ManualRetry(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status string
		var retryCount int
		row := tx.QueryRowContext(ctx, `SELECT status, retry_count FROM processing_jobs WHERE id = ?`, id)
		if err := row.Scan(&status, &retryCount); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledgererr.NotFound("processing_job not found")
			}
			return ledgererr.Storage("read processing_job for manual retry", err)
		}
		if JobStatus(status) != JobFailed {
			return ledgererr.InvalidTransition("manual retry requires a failed job, got " + status)
		}
		_, err := tx.ExecContext(ctx, `UPDATE processing_jobs SET max_retries = ?, error_message = NULL WHERE id = ?`, retryCount+1, id)
		if err != nil {
			return ledgererr.Storage("reactivate job for manual retry", err)
		}
		return nil
	})
}

const jobSelectBase = `
	SELECT id, media_file_id, job_type, input_path, output_path, parameters, status, error_message,
	       created_at, started_at, completed_at, duration_seconds, retry_count, max_retries, worker_pid
	FROM processing_jobs`

func scanJob(row rowScanner) (*ProcessingJob, error) {
	var j ProcessingJob
	var jobType, status string
	var mediaFileID, workerPID sql.NullInt64
	var outputPath, parameters, errorMessage sql.NullString
	var startedAt, completedAt sql.NullTime
	var durationSeconds sql.NullFloat64

	if err := row.Scan(
		&j.ID, &mediaFileID, &jobType, &j.InputPath, &outputPath, &parameters, &status, &errorMessage,
		&j.CreatedAt, &startedAt, &completedAt, &durationSeconds, &j.RetryCount, &j.MaxRetries, &workerPID,
	); err != nil {
		return nil, err
	}
	j.JobType = JobType(jobType)
	j.Status = JobStatus(status)
	j.MediaFileID = nullInt64Ptr(mediaFileID)
	if outputPath.Valid {
		j.OutputPath = outputPath.String
	}
	if parameters.Valid {
		j.Parameters = parameters.String
	}
	j.ErrorMessage = nullStringPtr(errorMessage)
	j.StartedAt = nullTimePtr(startedAt)
	j.CompletedAt = nullTimePtr(completedAt)
	j.DurationSeconds = nullFloat64Ptr(durationSeconds)
	j.WorkerPID = nullIntPtr(workerPID)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*ProcessingJob, error) {
	var out []*ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, ledgererr.Storage("scan processing_job", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
