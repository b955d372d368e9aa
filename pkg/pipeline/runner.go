package pipeline

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/menta2k/image-fusion/pkg/types"
)

// Runner allows a single composition at a time and tracks its progress.
type Runner struct {
	orchestrator *Orchestrator
	sem          *semaphore.Weighted
	running      atomic.Bool
	tracker      *Tracker
}

// NewRunner wraps an orchestrator
func NewRunner(o *Orchestrator) *Runner {
	return &Runner{
		orchestrator: o,
		sem:          semaphore.NewWeighted(1),
		tracker:      NewTracker(),
	}
}

// Run starts a composition, or fails with types.ErrBusy while another one
// is in flight. The tracker is reset at the start and cleared on failure.
func (r *Runner) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*types.CompositionResult, error) {
	if !r.sem.TryAcquire(1) {
		return nil, types.ErrBusy
	}
	r.running.Store(true)
	defer func() {
		r.running.Store(false)
		r.sem.Release(1)
	}()

	r.tracker.Reset()
	result, err := r.orchestrator.Run(ctx, req, r.tracker.Observe(onProgress))
	if err != nil {
		r.tracker.Clear()
		return nil, err
	}
	return result, nil
}

// Busy reports whether a run is in flight
func (r *Runner) Busy() bool {
	return r.running.Load()
}

// Progress returns the stage statuses of the current or last run
func (r *Runner) Progress() []StageProgress {
	return r.tracker.Snapshot()
}
