package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"spatelier/internal/ledger"
	"spatelier/internal/queue"
)

// Mode is spec.md §4.4's deployment mode. It never changes correctness,
// only how cmd/worker wires signal handling and lock files around Run.
type Mode string

const (
	ModeThread Mode = "thread"
	ModeDaemon Mode = "daemon"
	ModeAuto   Mode = "auto"
)

// Config holds the Runtime's tunables, all sourced from
// internal/config.Config per spec.md §4.4.
type Config struct {
	Mode                Mode
	MinTimeBetweenJobs  time.Duration
	AdditionalSleepTime time.Duration
	PollInterval        time.Duration
	StuckJobTimeout     time.Duration
	ProgressGrace       time.Duration
	SweepInterval       time.Duration
	VideoExtensions     []string
}

// activeJob is spec.md §4.4's active_jobs[job_id] entry.
type activeJob struct {
	PID       int
	StartedAt time.Time
	JobPath   string
	JobType   ledger.JobType
}

// Runtime is the Worker Runtime: the claim-dispatch-complete loop plus
// throttling, stuck-job sweeps, and stats. Grounded on the teacher's
// cmd/worker/main.go main loop (signal-aware select-with-default dequeue)
// generalized from one hardcoded job kind to the Registry.
type Runtime struct {
	queue    *queue.Queue
	registry *Registry
	stats    *Stats
	detector *StuckDetector
	throttle *queue.ThrottleClock
	cfg      Config
	workerPID int

	mu         sync.Mutex
	active     map[int64]activeJob
	lastJobAt  time.Time
	stopped    bool
}

// New builds a Runtime. throttle may be nil for single-process
// deployments, in which case MinTimeBetweenJobs is enforced purely via
// lastJobAt, local to this process.
func New(q *queue.Queue, jobs *ledger.JobRepo, registry *Registry, stats *Stats, throttle *queue.ThrottleClock, cfg Config) *Runtime {
	return &Runtime{
		queue:     q,
		registry:  registry,
		stats:     stats,
		detector:  NewStuckDetector(jobs, cfg.StuckJobTimeout, cfg.ProgressGrace, cfg.VideoExtensions),
		throttle:  throttle,
		cfg:       cfg,
		workerPID: os.Getpid(),
		active:    make(map[int64]activeJob),
	}
}

// Stop requests a graceful shutdown: the loop exits after its current
// iteration, matching spec.md §4.4's cooperative stop().
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.stopped = true
}

func (rt *Runtime) isStopped() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.stopped
}

// Run executes the main loop until ctx is cancelled or Stop is called.
// It implements spec.md §4.4's seven numbered steps in order on every
// iteration.
func (rt *Runtime) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rt.isStopped() {
			return nil
		}

		// Step 1: throttle.
		if wait, throttled := rt.shouldThrottle(ctx); throttled {
			sleep(ctx, wait+rt.cfg.AdditionalSleepTime)
			continue
		}

		// Step 2: sweep stuck jobs. Retryable-failed jobs need no
		// separate "reclaim into pending" step here: ClaimNext already
		// treats status='failed' AND retry_count<max_retries as directly
		// claimable (see JobRepo.ClaimNext), and ExhaustRetries removes a
		// permanently-failed job from that set the moment it's classified,
		// so there is nothing left for an explicit reclaim pass to do.
		if n, err := rt.detector.Sweep(ctx); err != nil {
			slog.Error("stuck job sweep failed", "error", err)
		} else if n > 0 {
			rt.stats.IncStuck(n)
			slog.Info("reclaimed stuck jobs", "count", n)
		}

		// Step 3: claim.
		job, err := rt.queue.ClaimNext(ctx, rt.workerPID)
		if err != nil {
			slog.Error("claim_next failed", "error", err)
			sleep(ctx, rt.cfg.PollInterval)
			continue
		}
		if job == nil {
			sleep(ctx, rt.cfg.PollInterval)
			continue
		}

		rt.runJob(ctx, job)
	}
}

func (rt *Runtime) runJob(ctx context.Context, job *ledger.ProcessingJob) {
	// Step 4: resolve handler.
	handler, ok := rt.registry.Resolve(job.JobType)
	if !ok {
		reason := "NoProcessor: no handler registered for job type " + string(job.JobType)
		if err := rt.queue.Fail(ctx, job.ID, reason); err != nil {
			slog.Error("failed to fail job with no handler", "job_id", job.ID, "error", err)
		}
		rt.stats.IncFailed()
		return
	}

	// Step 5: record active job.
	rt.mu.Lock()
	rt.active[job.ID] = activeJob{PID: rt.workerPID, StartedAt: time.Now().UTC(), JobPath: job.InputPath, JobType: job.JobType}
	rt.mu.Unlock()
	defer func() {
		// Step 7 (PID bookkeeping half): always remove the active-job entry.
		rt.mu.Lock()
		delete(rt.active, job.ID)
		rt.lastJobAt = time.Now().UTC()
		rt.mu.Unlock()
	}()

	// Step 6: invoke.
	err := handler(ctx, job)
	if err == nil {
		if cerr := rt.queue.Complete(ctx, job.ID); cerr != nil {
			slog.Error("failed to mark job completed", "job_id", job.ID, "error", cerr)
		}
		rt.stats.IncProcessed()
		return
	}

	class := Classify(err)
	retryable := ShouldRetry(class, job.RetryCount, job.MaxRetries)
	if ferr := rt.queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
		slog.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
	}
	if retryable {
		if rerr := rt.queue.Retry(ctx, job.ID); rerr != nil {
			slog.Error("failed to bump retry count", "job_id", job.ID, "error", rerr)
		}
		rt.stats.IncRetried()
	} else {
		if eerr := rt.queue.ExhaustRetries(ctx, job.ID); eerr != nil {
			slog.Error("failed to exhaust retries", "job_id", job.ID, "error", eerr)
		}
		rt.stats.IncFailed()
	}
}

// shouldThrottle reports whether the worker should sleep before claiming
// again, and for how long. Enforced by min_time_between_jobs measured
// against last_job_time, never against the sweep in step 2.
func (rt *Runtime) shouldThrottle(ctx context.Context) (time.Duration, bool) {
	if rt.throttle != nil {
		allowed, err := rt.throttle.Allow(ctx, rt.cfg.MinTimeBetweenJobs)
		if err != nil {
			slog.Warn("distributed throttle check failed, falling back to local clock", "error", err)
		} else if !allowed {
			return rt.cfg.MinTimeBetweenJobs, true
		} else {
			return 0, false
		}
	}

	rt.mu.Lock()
	last := rt.lastJobAt
	rt.mu.Unlock()
	if last.IsZero() {
		return 0, false
	}
	elapsed := time.Since(last)
	if elapsed >= rt.cfg.MinTimeBetweenJobs {
		return 0, false
	}
	return rt.cfg.MinTimeBetweenJobs - elapsed, true
}

// Status is spec.md §4.4's observable-stats block.
type Status struct {
	WorkerRunning bool              `json:"worker_running"`
	Mode          Mode              `json:"mode"`
	Throttling    ThrottlingStatus  `json:"throttling"`
	WorkerStats   Snapshot          `json:"worker_stats"`
	QueueStatus   ledger.JobStatistics `json:"queue_status"`
}

// ThrottlingStatus reports the configured throttle parameters.
type ThrottlingStatus struct {
	MinTime          time.Duration `json:"min_time"`
	AdditionalSleep  time.Duration `json:"additional_sleep"`
}

// Status returns a point-in-time snapshot for the HTTP status endpoint.
func (rt *Runtime) Status(ctx context.Context) (Status, error) {
	qs, err := rt.queue.GetQueueStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		WorkerRunning: !rt.isStopped(),
		Mode:          rt.cfg.Mode,
		Throttling:    ThrottlingStatus{MinTime: rt.cfg.MinTimeBetweenJobs, AdditionalSleep: rt.cfg.AdditionalSleepTime},
		WorkerStats:   rt.stats.Snapshot(),
		QueueStatus:   qs,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
