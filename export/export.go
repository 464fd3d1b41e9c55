// Package export reconstructs runs from the checkpoint files and hands them to the
// configured sinks. A day file is deleted once its run is exported or found to be noise.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/reconcile"
)

// Activity is one reconstructed run ready to be exported.
type Activity struct {
	reconcile.Segment

	// Snapshots are the samples the run was rebuilt from, in timestamp order.
	Snapshots []device.Snapshot

	// Source is the checkpoint file the run came from.
	Source string
}

func (a Activity) String() string {
	return fmt.Sprintf("activity[source=%q, %v]", a.Source, a.Segment)
}

// Exporter is a sink for reconstructed runs. String names it in logs.
type Exporter interface {
	fmt.Stringer
	// Export must not return before the run is durably accepted: a nil error gets the
	// source file deleted.
	Export(ctx context.Context, a Activity) error
}

// WeightSource looks up the user's body weight in kg.
type WeightSource interface {
	Weight(ctx context.Context) (float64, error)
}

// Multi exports to every sink in order and stops at the first failure. Sinks that can
// safely be repeated should come first, since a failure keeps the file for the next pass.
type Multi []Exporter

func (m Multi) String() string {
	names := make([]string, len(m))

	for i, e := range m {
		names[i] = e.String()
	}

	return "multi[" + strings.Join(names, ",") + "]"
}

func (m Multi) Export(ctx context.Context, a Activity) error {
	for _, e := range m {
		if err := e.Export(ctx, a); err != nil {
			return fmt.Errorf("%v: %w", e, err)
		}
	}

	return nil
}
