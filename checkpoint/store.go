// Package checkpoint persists periodic snapshots of the machine status in one
// append-only file per calendar day.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-treadfit/device"
)

const (
	filePrefix = "treadmill_data_"
	fileSuffix = ".yaml"
	dateLayout = "2006-01-02"
)

var (
	appendsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_checkpoint_appends_total",
	})
	appendFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_checkpoint_append_failures_total",
	})
)

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(appendsCounter, appendFailuresCounter)
}

type Store struct {
	// Dir holds the day files. Created on first append.
	Dir string
	// Location decides which calendar day a snapshot belongs to. Defaults to time.Local.
	Location *time.Location

	mu sync.Mutex
}

func New(dir string) *Store {
	return &Store{Dir: dir, Location: time.Local}
}

// PathFor returns the day file a snapshot taken at t goes to.
func (s *Store) PathFor(t time.Time) string {
	loc := s.Location

	if loc == nil {
		loc = time.Local
	}

	return filepath.Join(s.Dir, filePrefix+t.In(loc).Format(dateLayout)+fileSuffix)
}

// Append writes the snapshot at the end of its day file with a single write call, so a
// concurrent reader sees either nothing or a possibly truncated trailing record.
func (s *Store) Append(snap device.Snapshot) (err error) {
	defer func() {
		if err != nil {
			appendFailuresCounter.Inc()
		} else {
			appendsCounter.Inc()
		}
	}()

	chunk, err := Encode(snap)

	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	path := s.PathFor(snap.Timestamp)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)

	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	if _, err := f.Write(chunk); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %q: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", path, err)
	}

	log.Trace().Str("Path", path).Stringer("Snapshot", snap).Msg("checkpoint: appended snapshot")

	return nil
}

// Files lists the day files, oldest first. A missing directory has no files.
func (s *Store) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, filePrefix+"*"+fileSuffix))

	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint files: %w", err)
	}

	// the date layout sorts lexically.
	sort.Strings(matches)

	return matches, nil
}

// Load reads and decodes one day file.
func (s *Store) Load(path string) (Batch, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return Batch{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	b, err := Decode(data)

	if err != nil {
		return Batch{}, fmt.Errorf("failed to decode %q: %w", path, err)
	}

	return b, nil
}

// Remove deletes a day file. Removing a file that is already gone is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}

	return nil
}

// DayOf extracts the date a day file was named after.
func DayOf(path string) (time.Time, bool) {
	name := filepath.Base(path)

	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(dateLayout,
		strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), time.Local)

	return t, err == nil
}
