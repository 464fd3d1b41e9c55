package device

import (
	"fmt"
	"strings"
	"time"
)

// Reading is one partial status update from the machine. Frames carry disjoint subsets
// of the fields, so every field has its own presence flag: an unset field is distinct
// from a zero one.
type Reading struct {
	SpeedKph       float64
	InclineDeg     float64
	DistanceKm     float64
	ElapsedSeconds int

	HasSpeed    bool
	HasIncline  bool
	HasDistance bool
	HasElapsed  bool
}

func (r Reading) String() string {
	var fields []string

	if r.HasSpeed {
		fields = append(fields, fmt.Sprintf("Speed=%.2fkph", r.SpeedKph))
	}

	if r.HasIncline {
		fields = append(fields, fmt.Sprintf("Incline=%.2fdeg", r.InclineDeg))
	}

	if r.HasDistance {
		fields = append(fields, fmt.Sprintf("Distance=%.3fkm", r.DistanceKm))
	}

	if r.HasElapsed {
		fields = append(fields, fmt.Sprintf("Elapsed=%ds", r.ElapsedSeconds))
	}

	return fmt.Sprintf("Reading[%v]", strings.Join(fields, ","))
}

// Snapshot is a fully resolved reading at a point in time, as persisted by the
// checkpoint store. Snapshots are values and are never mutated once appended.
type Snapshot struct {
	Timestamp      time.Time
	SpeedKph       float64
	InclineDeg     float64
	DistanceKm     float64
	ElapsedSeconds int
}

// Snapshot materializes the reading at the given time. Unset fields resolve to zero.
func (r Reading) Snapshot(at time.Time) Snapshot {
	return Snapshot{
		Timestamp:      at,
		SpeedKph:       r.SpeedKph,
		InclineDeg:     r.InclineDeg,
		DistanceKm:     r.DistanceKm,
		ElapsedSeconds: r.ElapsedSeconds,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot[At=%v,Speed=%.2fkph,Incline=%.2fdeg,Distance=%.3fkm,Elapsed=%ds]",
		s.Timestamp.Format(time.RFC3339), s.SpeedKph, s.InclineDeg, s.DistanceKm, s.ElapsedSeconds)
}
