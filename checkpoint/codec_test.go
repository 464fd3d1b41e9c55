package checkpoint_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-treadfit/checkpoint"
	"github.com/robertof/go-treadfit/device"
)

func snapshotAt(sec int64, distance float64, elapsed int) device.Snapshot {
	return device.Snapshot{
		Timestamp:      time.Unix(sec, 0),
		SpeedKph:       8.5,
		InclineDeg:     1.5,
		DistanceKm:     distance,
		ElapsedSeconds: elapsed,
	}
}

func encodeAll(t *testing.T, snaps ...device.Snapshot) []byte {
	t.Helper()

	var buf bytes.Buffer

	for _, s := range snaps {
		chunk, err := checkpoint.Encode(s)
		require.NoError(t, err)
		buf.Write(chunk)
	}

	return buf.Bytes()
}

func assertSnapshotsEqual(t *testing.T, want, got []device.Snapshot) {
	t.Helper()

	require.Len(t, got, len(want))

	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d: %v != %v",
			i, want[i].Timestamp, got[i].Timestamp)
		assert.Equal(t, want[i].SpeedKph, got[i].SpeedKph)
		assert.Equal(t, want[i].InclineDeg, got[i].InclineDeg)
		assert.Equal(t, want[i].DistanceKm, got[i].DistanceKm)
		assert.Equal(t, want[i].ElapsedSeconds, got[i].ElapsedSeconds)
	}
}

func TestEncode_OneElementList(t *testing.T) {
	chunk, err := checkpoint.Encode(snapshotAt(1760000000, 1.234, 300))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(chunk, []byte("- timestamp: ")), "got %q", chunk)
	assert.Contains(t, string(chunk), "seconds_total: 300\n")
	assert.Contains(t, string(chunk), "distance_km: 1.234\n")
}

func TestDecode_FlattensAppendedLists(t *testing.T) {
	want := []device.Snapshot{
		snapshotAt(1760000000, 0.1, 30),
		snapshotAt(1760000030, 0.2, 60),
		snapshotAt(1760000060, 0.3, 90),
	}

	b, err := checkpoint.Decode(encodeAll(t, want...))
	require.NoError(t, err)

	assert.False(t, b.Partial)
	assertSnapshotsEqual(t, want, b.Snapshots)
}

func TestDecode_FractionalTimestamps(t *testing.T) {
	s := snapshotAt(0, 2, 10)
	s.Timestamp = time.Unix(1760000000, 500_000_000)

	b, err := checkpoint.Decode(encodeAll(t, s))
	require.NoError(t, err)

	assertSnapshotsEqual(t, []device.Snapshot{s}, b.Snapshots)
}

func TestDecode_ForeignWriterLayout(t *testing.T) {
	// sorted keys, integral floats, separate documents and no speed on the last record.
	data := []byte(`- distance_km: 0.5
  incline_deg: 1.0
  seconds_total: 120
  speed_kph: 6.0
  timestamp: 1760000030.25
---
- distance_km: 1
  incline_deg: 0
  seconds_total: 240
  timestamp: 1760000060
`)

	b, err := checkpoint.Decode(data)
	require.NoError(t, err)
	require.Len(t, b.Snapshots, 2)

	assert.Equal(t, 6.0, b.Snapshots[0].SpeedKph)
	assert.Equal(t, 120, b.Snapshots[0].ElapsedSeconds)
	assert.True(t, time.Unix(1760000030, 250_000_000).Equal(b.Snapshots[0].Timestamp))

	assert.Zero(t, b.Snapshots[1].SpeedKph)
	assert.Equal(t, 1.0, b.Snapshots[1].DistanceKm)
}

func TestDecode_SingleMappingDocument(t *testing.T) {
	b, err := checkpoint.Decode([]byte("timestamp: 10\nincline_deg: 0\ndistance_km: 0\nseconds_total: 0\n"))
	require.NoError(t, err)

	assert.Len(t, b.Snapshots, 1)
}

func TestDecode_Empty(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("\n\n"), []byte("---\n")} {
		b, err := checkpoint.Decode(data)
		require.NoError(t, err)

		assert.Empty(t, b.Snapshots)
		assert.False(t, b.Partial)
	}
}

func TestDecode_DropsTrailingRecordMidWrite(t *testing.T) {
	complete := []device.Snapshot{
		snapshotAt(1760000000, 0.1, 30),
		snapshotAt(1760000030, 0.2, 60),
	}
	data := encodeAll(t, complete...)
	tail := encodeAll(t, snapshotAt(1760000060, 0.3, 90))

	// every cut through the last record must yield the first two snapshots.
	for cut := 1; cut < len(tail); cut++ {
		b, err := checkpoint.Decode(append(append([]byte(nil), data...), tail[:cut]...))
		require.NoError(t, err, "cut at %d: %q", cut, tail[:cut])

		assert.True(t, b.Partial, "cut at %d", cut)
		assertSnapshotsEqual(t, complete, b.Snapshots)
	}
}

func TestDecode_OnlyRecordMidWrite(t *testing.T) {
	tail := encodeAll(t, snapshotAt(1760000060, 0.3, 90))

	b, err := checkpoint.Decode(tail[:len(tail)/2])
	require.NoError(t, err)

	assert.Empty(t, b.Snapshots)
	assert.True(t, b.Partial)
}

func TestDecode_MissingKey(t *testing.T) {
	data := []byte(`- timestamp: 1
  incline_deg: 0
  seconds_total: 0
- timestamp: 2
  incline_deg: 0
  distance_km: 0
  seconds_total: 0
`)

	_, err := checkpoint.Decode(data)
	assert.ErrorIs(t, err, checkpoint.ErrMissingKey)
}

func TestDecode_Garbage(t *testing.T) {
	for _, data := range []string{
		"this is not a checkpoint\n",
		"- [1, 2\n",
		"- timestamp: yesterday\n  incline_deg: 0\n  distance_km: 0\n  seconds_total: 0\n",
	} {
		_, err := checkpoint.Decode([]byte(data))
		assert.Error(t, err, "data %q", data)
	}
}
