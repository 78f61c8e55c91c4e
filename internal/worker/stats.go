package worker

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats tracks the counters spec.md §4.4's observable-stats block names:
// processed, failed, retried, stuck_detected. Prometheus counters are
// registered with the Registerer given to NewStats (cmd/worker passes the
// default registry; no HTTP route in this module serves it); the atomic
// fields back Snapshot() for in-process status reporting.
type Stats struct {
	processed uint64
	failed    uint64
	retried   uint64
	stuck     uint64

	processedTotal prometheus.Counter
	failedTotal    prometheus.Counter
	retriedTotal   prometheus.Counter
	stuckTotal     prometheus.Counter
}

// NewStats registers the worker's counters against reg.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		processedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatelier_worker_jobs_processed_total",
			Help: "Jobs completed successfully.",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatelier_worker_jobs_failed_total",
			Help: "Jobs that reached a terminal failed state.",
		}),
		retriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatelier_worker_jobs_retried_total",
			Help: "Jobs reclaimed for another attempt after a transient failure.",
		}),
		stuckTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spatelier_worker_jobs_stuck_detected_total",
			Help: "Jobs reclaimed by stuck-job detection.",
		}),
	}
	reg.MustRegister(s.processedTotal, s.failedTotal, s.retriedTotal, s.stuckTotal)
	return s
}

func (s *Stats) IncProcessed() { atomic.AddUint64(&s.processed, 1); s.processedTotal.Inc() }
func (s *Stats) IncFailed()    { atomic.AddUint64(&s.failed, 1); s.failedTotal.Inc() }
func (s *Stats) IncRetried()   { atomic.AddUint64(&s.retried, 1); s.retriedTotal.Inc() }
func (s *Stats) IncStuck(n int) {
	atomic.AddUint64(&s.stuck, uint64(n))
	s.stuckTotal.Add(float64(n))
}

// Snapshot is spec.md §4.4's worker_stats block.
type Snapshot struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Retried   uint64 `json:"retried"`
	Stuck     uint64 `json:"stuck_detected"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Processed: atomic.LoadUint64(&s.processed),
		Failed:    atomic.LoadUint64(&s.failed),
		Retried:   atomic.LoadUint64(&s.retried),
		Stuck:     atomic.LoadUint64(&s.stuck),
	}
}
