package client

import (
	"context"
	"sync"

	"backend-bustracker/internal/eta"
	"backend-bustracker/internal/reading"
	"backend-bustracker/internal/shared/geo"
)

// View is what the tracker currently shows: the destination and the
// estimate computed for it, if any.
type View struct {
	Destination *geo.Point
	Estimate    *eta.Estimate
	Generation  uint64
}

// Tracker owns the selected destination and its ETA. Every destination
// change bumps the generation; an estimate started under an older
// generation is dropped when it completes.
type Tracker struct {
	estimator *eta.Estimator

	mu         sync.Mutex
	dest       *geo.Point
	estimate   *eta.Estimate
	generation uint64
}

func NewTracker(estimator *eta.Estimator) *Tracker {
	return &Tracker{estimator: estimator}
}

// SetDestination selects dest and clears the previous estimate.
func (t *Tracker) SetDestination(dest geo.Point) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	d := dest
	t.dest = &d
	t.estimate = nil
	return t.generation
}

func (t *Tracker) ClearDestination() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.dest = nil
	t.estimate = nil
}

func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := View{Generation: t.generation}
	if t.dest != nil {
		d := *t.dest
		v.Destination = &d
	}
	if t.estimate != nil {
		e := *t.estimate
		v.Estimate = &e
	}
	return v
}

// Refresh estimates the ETA for the current destination against history.
// It reports false when there is no destination or the destination changed
// while the estimate was running.
func (t *Tracker) Refresh(ctx context.Context, history []reading.Reading) bool {
	t.mu.Lock()
	if t.dest == nil {
		t.mu.Unlock()
		return false
	}
	dest := *t.dest
	gen := t.generation
	t.mu.Unlock()

	est := t.estimator.Estimate(ctx, history, dest)
	return t.apply(gen, est)
}

func (t *Tracker) apply(gen uint64, est eta.Estimate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return false
	}
	t.estimate = &est
	return true
}
