package session

import (
	"sync"
	"time"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/energy"
)

// MovingThresholdKph is the speed above which the belt counts as moving.
const MovingThresholdKph = 0.1

// Energy is the live expenditure figure shown while a workout is in progress.
type Energy struct {
	RatePerHour float64
	TotalKcal   float64
}

// Tracker integrates the instantaneous energy rate over time. It is only an estimate for
// the live view; exported runs are computed from the checkpoints instead.
type Tracker struct {
	mu       sync.Mutex
	weightKg float64
	last     time.Time
	current  Energy
}

func NewTracker(weightKg float64) *Tracker {
	return &Tracker{weightKg: weightKg}
}

// SetWeight changes the body weight used from the next tick on.
func (t *Tracker) SetWeight(kg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.weightKg = kg
}

// Tick updates the rate from r and, if the belt is moving, accumulates the energy spent
// since the previous tick.
func (t *Tracker) Tick(r device.Reading, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dt := now.Sub(t.last).Seconds()
	first := t.last.IsZero()

	if !first && dt <= 0 {
		return
	}

	t.last = now
	t.current.RatePerHour = energy.RatePerHour(t.weightKg, r.SpeedKph, r.InclineDeg)

	if !first && r.SpeedKph > MovingThresholdKph {
		t.current.TotalKcal += t.current.RatePerHour / 3600 * dt
	}
}

// Restart forgets the previous tick, so the next one only sets the rate. A gap while the
// machine was unreachable is not counted.
func (t *Tracker) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = time.Time{}
}

func (t *Tracker) Energy() Energy {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current
}
