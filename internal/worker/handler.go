// Package worker implements the Worker Runtime (spec.md §4.4): the main
// claim-dispatch-complete loop, stuck-job detection, retry
// classification, and observable stats. Grounded on the teacher's
// cmd/worker/main.go (signal handling, cleanup ticker, select-with-default
// dequeue loop) and internal/processor.Processor (the handler-dispatch
// shape), generalized from a single podcast-sync job type to
// spec.md's job_type -> handler registry.
package worker

import (
	"context"

	"spatelier/internal/ledger"
)

// Handler processes one job and returns ok or error. Per spec.md §4.4's
// Registration note, a handler must never update queue state itself —
// the Runtime owns every status transition.
type Handler func(ctx context.Context, job *ledger.ProcessingJob) error

// Registry maps job_type to Handler, spec.md §4.4's register_processor.
type Registry struct {
	handlers map[ledger.JobType]Handler
}

// NewRegistry builds an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[ledger.JobType]Handler)}
}

// Register installs fn as the handler for jobType, overwriting any
// previous registration.
func (r *Registry) Register(jobType ledger.JobType, fn Handler) {
	r.handlers[jobType] = fn
}

// Resolve returns the handler for jobType, or (nil, false) if none is
// registered.
func (r *Registry) Resolve(jobType ledger.JobType) (Handler, bool) {
	fn, ok := r.handlers[jobType]
	return fn, ok
}
