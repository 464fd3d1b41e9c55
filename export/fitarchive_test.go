package export_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/export"
)

func archivedActivity() export.Activity {
	a := testActivity()
	a.DurationSeconds = 360

	for i := 0; i <= 12; i++ {
		a.Snapshots = append(a.Snapshots, device.Snapshot{
			Timestamp:      a.Start.Add(time.Duration(i) * 30 * time.Second),
			SpeedKph:       10,
			DistanceKm:     2 + float64(i)/12,
			ElapsedSeconds: 600 + i*30,
		})
	}

	return a
}

func TestEncodeFIT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.EncodeFIT(&buf, archivedActivity()))

	decoded, err := fit.Decode(&buf)
	require.NoError(t, err)

	activity, err := decoded.Activity()
	require.NoError(t, err)

	require.Len(t, activity.Sessions, 1)
	session := activity.Sessions[0]

	assert.Equal(t, fit.SportRunning, session.Sport)
	assert.Equal(t, fit.SubSportTreadmill, session.SubSport)
	assert.InDelta(t, 1000.0, session.GetTotalDistanceScaled(), 0.01)
	assert.InDelta(t, 360.0, session.GetTotalTimerTimeScaled(), 0.001)
	assert.EqualValues(t, 123, session.TotalCalories)
	assert.EqualValues(t, 12, session.TotalAscent)

	require.Len(t, activity.Records, 13)
	assert.InDelta(t, 0.0, activity.Records[0].GetDistanceScaled(), 0.01)
	assert.InDelta(t, 1000.0, activity.Records[12].GetDistanceScaled(), 0.01)
	assert.InDelta(t, 10/3.6, activity.Records[5].GetSpeedScaled(), 0.001)
}

func TestFitArchive_ExportOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fit")
	archive := &export.FitArchive{Dir: dir}
	a := archivedActivity()

	require.NoError(t, archive.Export(context.Background(), a))
	require.NoError(t, archive.Export(context.Background(), a))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, filepath.Base(archive.PathFor(a)), entries[0].Name())
}
