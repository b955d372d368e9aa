package pipeline

import (
	"sync"

	"github.com/menta2k/image-fusion/pkg/types"
)

// StageProgress is the status of one stage
type StageProgress struct {
	Stage  types.Stage       `json:"stage"`
	Status types.StageStatus `json:"status"`
}

// Tracker keeps the per-stage status of the current run. Stages only move
// forward; reporting an earlier stage than the current one is ignored.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[types.Stage]types.StageStatus
	current  int
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{current: -1}
}

// Reset marks every stage pending
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses = make(map[types.Stage]types.StageStatus, len(types.Stages()))
	for _, s := range types.Stages() {
		t.statuses[s] = types.StatusPending
	}
	t.current = -1
}

// Clear drops all state, as after an abort or a failure
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses = nil
	t.current = -1
}

// Advance records that stage has started. Earlier stages become completed;
// StageDone completes every stage.
func (t *Tracker) Advance(stage types.Stage) {
	idx := stage.Index()
	if idx < 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx < t.current {
		return
	}
	if t.statuses == nil {
		t.statuses = make(map[types.Stage]types.StageStatus, len(types.Stages()))
	}
	t.current = idx
	for i, s := range types.Stages() {
		switch {
		case i < idx:
			t.statuses[s] = types.StatusCompleted
		case i == idx:
			t.statuses[s] = types.StatusInProgress
		default:
			t.statuses[s] = types.StatusPending
		}
	}
}

// Observe returns a ProgressFunc that advances the tracker and then calls next.
func (t *Tracker) Observe(next ProgressFunc) ProgressFunc {
	return func(stage types.Stage) {
		t.Advance(stage)
		if next != nil {
			next(stage)
		}
	}
}

// Snapshot returns the stages in execution order, or nil when cleared.
func (t *Tracker) Snapshot() []StageProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.statuses == nil {
		return nil
	}
	out := make([]StageProgress, 0, len(t.statuses))
	for _, s := range types.Stages() {
		out = append(out, StageProgress{Stage: s, Status: t.statuses[s]})
	}
	return out
}

// Status returns the status of one stage, pending when unknown
func (t *Tracker) Status(stage types.Stage) types.StageStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.statuses[stage]; ok {
		return st
	}
	return types.StatusPending
}
