// Package reconcile rebuilds workout runs from a batch of recorded snapshots.
package reconcile

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/energy"
)

const (
	// A pair of snapshots going back by more than either threshold straddles a counter
	// reset on the machine.
	ResetDistanceKm = 0.1
	ResetSeconds    = 5

	// Runs this short or shorter are noise.
	MinExportDistanceKm = 0.01
)

// Segment is one reconstructed workout interval.
type Segment struct {
	Start           time.Time
	End             time.Time
	DistanceKm      float64
	DurationSeconds float64
	ElevationGainM  float64
	CaloriesKcal    float64
}

// AvgSpeedKmh is the mean speed over the accumulated duration, 0 without one.
func (s Segment) AvgSpeedKmh() float64 {
	if s.DurationSeconds <= 0 {
		return 0
	}

	return s.DistanceKm * 3600 / s.DurationSeconds
}

func (s Segment) String() string {
	return fmt.Sprintf("Segment[Start=%v,Distance=%.3fkm,Duration=%.0fs,Elevation=%.1fm,Energy=%.1fkcal]",
		s.Start.Format(time.RFC3339), s.DistanceKm, s.DurationSeconds, s.ElevationGainM, s.CaloriesKcal)
}

// Summary is the outcome of one reconstruction pass.
type Summary struct {
	// Segments is empty for degenerate batches. Otherwise the whole batch is reduced to a
	// single aggregate segment, even across resets.
	Segments []Segment

	Samples int
	// Resets counts the pairs skipped because the machine counters went backwards.
	Resets int
	// WallClockFallback is set when no elapsed time could be accumulated and the duration
	// was taken from the snapshot timestamps instead.
	WallClockFallback bool
}

// Run returns the aggregate segment, if any.
func (s Summary) Run() (Segment, bool) {
	if len(s.Segments) == 0 {
		return Segment{}, false
	}

	return s.Segments[0], true
}

// Reconstruct walks the snapshots in timestamp order and accumulates distance, duration,
// elevation gain and energy between consecutive pairs. The input slice is left untouched.
func Reconstruct(snapshots []device.Snapshot, weightKg float64) Summary {
	summary := Summary{Samples: len(snapshots)}

	if len(snapshots) < 2 {
		return summary
	}

	points := slices.Clone(snapshots)

	// the persisted order is not trusted; ties keep their insertion order.
	slices.SortStableFunc(points, func(a, b device.Snapshot) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	first, last := points[0], points[len(points)-1]
	seg := Segment{Start: first.Timestamp, End: last.Timestamp}

	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]

		distanceDelta := curr.DistanceKm - prev.DistanceKm
		timeDelta := curr.ElapsedSeconds - prev.ElapsedSeconds

		if distanceDelta < -ResetDistanceKm || timeDelta < -ResetSeconds {
			summary.Resets += 1
			continue
		}

		if distanceDelta > 0 {
			seg.DistanceKm += distanceDelta
			seg.ElevationGainM += distanceDelta * 1000 * math.Sin(prev.InclineDeg*math.Pi/180)
		}

		if timeDelta > 0 {
			seg.DurationSeconds += float64(timeDelta)
			seg.CaloriesKcal += energy.Estimate(weightKg, segmentSpeed(prev, distanceDelta, timeDelta),
				prev.InclineDeg, float64(timeDelta))
		}
	}

	if seg.DurationSeconds <= 0 {
		seg.DurationSeconds = last.Timestamp.Sub(first.Timestamp).Seconds()
		summary.WallClockFallback = true
	}

	summary.Segments = []Segment{seg}

	return summary
}

// segmentSpeed prefers the speed the machine reported at the start of the interval and
// falls back to the one implied by the distance covered.
func segmentSpeed(prev device.Snapshot, distanceDelta float64, timeDelta int) float64 {
	if prev.SpeedKph > 0 {
		return prev.SpeedKph
	}

	if distanceDelta > 0 {
		return distanceDelta / float64(timeDelta) * 3600
	}

	return 0
}

type Verdict uint8

const (
	// VerdictDiscard marks a batch that is noise: it's purged without exporting.
	VerdictDiscard Verdict = iota
	VerdictExport
)

func (v Verdict) String() string {
	switch v {
	case VerdictDiscard:
		return "Discard"
	case VerdictExport:
		return "Export"
	default:
		panic("unknown Verdict value")
	}
}

// Classify decides whether the reconstructed batch is worth exporting.
func Classify(s Summary) Verdict {
	run, ok := s.Run()

	if !ok || run.DistanceKm <= MinExportDistanceKm {
		return VerdictDiscard
	}

	return VerdictExport
}
