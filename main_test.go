package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/robertof/go-treadfit/checkpoint"
	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/energy"
	"github.com/robertof/go-treadfit/export"
)

var runStart = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

var testCredentials = export.FitbitCredentials{
	ClientID:     "client",
	ClientSecret: "secret",
	AccessToken:  "access",
	RefreshToken: "refresh",
}

// withConfig swaps the process configuration for the duration of the test.
func withConfig(t *testing.T, c config) {
	t.Helper()

	saved := cfg
	cfg = c

	t.Cleanup(func() { cfg = saved })
}

// storeWithRun returns a store holding one 1 km run and the path of its day file.
func storeWithRun(t *testing.T) (*checkpoint.Store, string) {
	t.Helper()

	store := checkpoint.New(t.TempDir())
	store.Location = time.UTC

	for i, d := range []float64{0, 0.5, 1} {
		require.NoError(t, store.Append(device.Snapshot{
			Timestamp:      runStart.Add(time.Duration(i) * 3 * time.Minute),
			SpeedKph:       10,
			DistanceKm:     d,
			ElapsedSeconds: i * 180,
		}))
	}

	return store, store.PathFor(runStart)
}

func archivedFiles(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "*.fit"))
	require.NoError(t, err)

	return matches
}

func TestExportPass_SkipsWithoutSinks(t *testing.T) {
	withConfig(t, config{WeightKg: energy.DefaultWeightKg})

	store, path := storeWithRun(t)

	report, err := exportPass(context.Background(), store, newFitbit())
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.FileExists(t, path)
}

func TestExportPass_ArchiveOnlyKeepsCheckpoints(t *testing.T) {
	archive := t.TempDir()
	withConfig(t, config{WeightKg: energy.DefaultWeightKg, FitArchiveDir: archive})

	store, path := storeWithRun(t)

	for pass := 0; pass < 2; pass++ {
		report, err := exportPass(context.Background(), store, newFitbit())
		require.NoError(t, err)

		assert.Equal(t, 1, report.Count(export.OutcomeArchived), "pass %d", pass)
		assert.Equal(t, 0, report.Count(export.OutcomeExported), "pass %d", pass)

		// the run stays pending for the activity log, the archive is overwritten.
		assert.FileExists(t, path)
		assert.Len(t, archivedFiles(t, archive), 1)
	}
}

func TestExportPass_FitbitAndArchive(t *testing.T) {
	archive := t.TempDir()
	withConfig(t, config{
		WeightKg:      energy.DefaultWeightKg,
		FitArchiveDir: archive,
		TokenFile:     filepath.Join(t.TempDir(), "token.json"),
	})

	var logged atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/1/user/-/profile.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"weight":72.5}}`))
	})
	mux.HandleFunc("/1/user/-/activities.json", func(w http.ResponseWriter, r *http.Request) {
		logged.Add(1)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"activityLog":{"logId":1}}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	fb := export.NewFitbit(testCredentials)
	fb.BaseURL = srv.URL
	fb.Client = srv.Client()

	store, path := storeWithRun(t)

	report, err := exportPass(context.Background(), store, fb)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(export.OutcomeExported))
	assert.Equal(t, 72.5, report.WeightKg)
	assert.EqualValues(t, 1, logged.Load())
	assert.NoFileExists(t, path)
	assert.Len(t, archivedFiles(t, archive), 1)

	// nothing was refreshed, so nothing was saved.
	assert.NoFileExists(t, cfg.TokenFile)
}

func TestNewFitbit(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	withConfig(t, config{TokenFile: tokenFile})
	assert.Nil(t, newFitbit())

	cfg.Fitbit = testCredentials

	fb := newFitbit()
	require.NotNil(t, fb)

	tok, refreshed := fb.Token()
	assert.Equal(t, "access", tok.AccessToken)
	assert.False(t, refreshed)

	// a token saved by an earlier run wins over the configured one.
	require.NoError(t, export.SaveToken(tokenFile, &oauth2.Token{AccessToken: "saved", RefreshToken: "saved-refresh"}))

	tok, _ = newFitbit().Token()
	assert.Equal(t, "saved", tok.AccessToken)
	assert.Equal(t, "saved-refresh", tok.RefreshToken)
}
