package checkpoint

import (
	"bytes"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/robertof/go-treadfit/device"
)

var ErrMissingKey = errors.New("missing key")

// record is the on-disk shape of a snapshot. Every append writes a one-element list, so a
// day file is a concatenation of such lists.
type record struct {
	Timestamp    float64 `yaml:"timestamp"`
	SpeedKph     float64 `yaml:"speed_kph"`
	InclineDeg   float64 `yaml:"incline_deg"`
	DistanceKm   float64 `yaml:"distance_km"`
	SecondsTotal int     `yaml:"seconds_total"`
}

// looseRecord accepts what older writers produced: integral or fractional numbers, and a
// missing speed.
type looseRecord struct {
	Timestamp    *float64 `yaml:"timestamp"`
	SpeedKph     *float64 `yaml:"speed_kph"`
	InclineDeg   *float64 `yaml:"incline_deg"`
	DistanceKm   *float64 `yaml:"distance_km"`
	SecondsTotal *float64 `yaml:"seconds_total"`
}

// Encode renders one snapshot as an appendable chunk.
func Encode(s device.Snapshot) ([]byte, error) {
	r := record{
		Timestamp:    float64(s.Timestamp.UnixNano()) / float64(time.Second),
		SpeedKph:     s.SpeedKph,
		InclineDeg:   s.InclineDeg,
		DistanceKm:   s.DistanceKm,
		SecondsTotal: s.ElapsedSeconds,
	}

	out, err := yaml.Marshal([]record{r})

	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: failed to encode snapshot")
	}

	return out, nil
}

// Batch is the decoded content of a day file.
type Batch struct {
	Snapshots []device.Snapshot

	// Partial is set when a trailing record was still being written and got dropped.
	Partial bool
}

// Decode parses the content of a day file, flattening every appended list. A trailing
// record that was still being written (no final newline, unparsable, or short of keys) is
// dropped rather than reported.
func Decode(data []byte) (b Batch, err error) {
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = data[:lastRecordStart(data)]
		b.Partial = true
	}

	recs, err := decodeRecords(data)

	if err != nil {
		// maybe only the tail is garbage: retry without it.
		start := lastRecordStart(data)

		if start == 0 {
			return b, err
		}

		if recs, err = decodeRecords(data[:start]); err != nil {
			return b, err
		}

		b.Partial = true
	} else if n := len(recs); n > 0 && !recs[n-1].hasRequiredKeys() {
		recs = recs[:n-1]
		b.Partial = true
	}

	b.Snapshots = make([]device.Snapshot, 0, len(recs))

	for i, r := range recs {
		s, err := r.snapshot()

		if err != nil {
			return Batch{}, errors.Wrapf(err, "record %d", i)
		}

		b.Snapshots = append(b.Snapshots, s)
	}

	return b, nil
}

func decodeRecords(data []byte) ([]looseRecord, error) {
	var out []looseRecord

	dec := yaml.NewDecoder(bytes.NewReader(data))

	for {
		var doc yaml.Node

		err := dec.Decode(&doc)

		if err == io.EOF {
			return out, nil
		}

		if err != nil {
			return nil, errors.Wrap(err, "checkpoint: malformed document")
		}

		if len(doc.Content) == 0 {
			continue
		}

		switch node := doc.Content[0]; node.Kind {
		case yaml.SequenceNode:
			var recs []looseRecord

			if err := node.Decode(&recs); err != nil {
				return nil, errors.Wrap(err, "checkpoint: malformed record list")
			}

			out = append(out, recs...)
		case yaml.MappingNode:
			var r looseRecord

			if err := node.Decode(&r); err != nil {
				return nil, errors.Wrap(err, "checkpoint: malformed record")
			}

			out = append(out, r)
		case yaml.ScalarNode:
			if node.Tag == "!!null" {
				continue
			}

			return nil, errors.Errorf("checkpoint: unexpected scalar %q at line %d", node.Value, node.Line)
		default:
			return nil, errors.Errorf("checkpoint: unexpected node at line %d", node.Line)
		}
	}
}

// lastRecordStart returns the offset of the last line opening a list item (or a
// document marker).
func lastRecordStart(data []byte) int {
	idx := bytes.LastIndex(data, []byte("\n-"))

	if idx < 0 {
		return 0
	}

	return idx + 1
}

func (r looseRecord) hasRequiredKeys() bool {
	return r.Timestamp != nil && r.InclineDeg != nil && r.DistanceKm != nil && r.SecondsTotal != nil
}

func (r looseRecord) snapshot() (s device.Snapshot, err error) {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"timestamp", r.Timestamp},
		{"incline_deg", r.InclineDeg},
		{"distance_km", r.DistanceKm},
		{"seconds_total", r.SecondsTotal},
	} {
		if f.v == nil {
			return s, errors.Wrap(ErrMissingKey, f.name)
		}
	}

	sec, frac := math.Modf(*r.Timestamp)

	s.Timestamp = time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond))
	s.InclineDeg = *r.InclineDeg
	s.DistanceKm = *r.DistanceKm
	s.ElapsedSeconds = int(*r.SecondsTotal)

	if r.SpeedKph != nil {
		s.SpeedKph = *r.SpeedKph
	}

	return s, nil
}
