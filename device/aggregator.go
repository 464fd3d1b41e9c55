package device

import (
	"sync"
	"sync/atomic"
	"time"
)

// Aggregator merges partial readings into one current status. Each frame only overwrites
// the fields it carries; everything else keeps the most recent value seen.
//
// Status() is lock-free: Apply publishes a new immutable status on every update, so the
// checkpoint and metrics readers never hold up the notification path.
type Aggregator struct {
	// serializes writers only; readers go through the atomic pointer.
	mu sync.Mutex

	current atomic.Pointer[Status]
}

// Status is the aggregator's merged view. Version increments on every applied frame and
// UpdatedAt is the time of the last one.
type Status struct {
	Reading
	Version   uint64
	UpdatedAt time.Time
}

func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.current.Store(&Status{})

	return a
}

// Apply merges a decoded frame. Frames that don't carry fields are dropped.
func (a *Aggregator) Apply(f Frame) {
	if !f.Decoded() {
		return
	}

	a.ApplyReading(f.Reading, time.Now())
}

func (a *Aggregator) ApplyReading(r Reading, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := *a.current.Load()

	if r.HasSpeed {
		next.SpeedKph, next.HasSpeed = r.SpeedKph, true
	}

	if r.HasIncline {
		next.InclineDeg, next.HasIncline = r.InclineDeg, true
	}

	if r.HasDistance {
		next.DistanceKm, next.HasDistance = r.DistanceKm, true
	}

	if r.HasElapsed {
		next.ElapsedSeconds, next.HasElapsed = r.ElapsedSeconds, true
	}

	next.Version += 1
	next.UpdatedAt = at

	a.current.Store(&next)
}

// Status returns the merged view. Fields never seen are zero with their Has* flag unset.
func (a *Aggregator) Status() Status {
	return *a.current.Load()
}

// CurrentStatus returns just the merged reading.
func (a *Aggregator) CurrentStatus() Reading {
	return a.current.Load().Reading
}
