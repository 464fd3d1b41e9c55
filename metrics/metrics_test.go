package metrics_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/metrics"
	"github.com/robertof/go-treadfit/session"
)

func serve(t *testing.T, live metrics.Live, path string) *http.Response {
	t.Helper()

	f := func() metrics.Live { return live }

	reg := prometheus.NewRegistry()
	metrics.RegisterCollector(f, reg)

	rec := httptest.NewRecorder()
	metrics.NewRouter(reg, f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec.Result()
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(data)
}

var polling = metrics.Live{
	Status: device.Status{
		Reading: device.Reading{
			SpeedKph: 8.5, DistanceKm: 1.25, ElapsedSeconds: 600,
			HasSpeed: true, HasDistance: true, HasElapsed: true,
		},
		Version:   3,
		UpdatedAt: time.Date(2026, 3, 1, 7, 10, 0, 0, time.UTC),
	},
	State:  session.Transition{State: session.StatePolling},
	Energy: session.Energy{RatePerHour: 900, TotalKcal: 150},
}

func TestMetrics_Readings(t *testing.T) {
	resp := serve(t, polling, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := body(t, resp)

	assert.Contains(t, out, "treadmill_speed_kph 8.5")
	assert.Contains(t, out, "treadmill_distance_km 1.25")
	assert.Contains(t, out, "treadmill_elapsed_seconds 600")
	assert.NotContains(t, out, "treadmill_incline_degrees")
	assert.Contains(t, out, "treadmill_energy_kcal 150")
	assert.Contains(t, out, `treadmill_session_state_info{state="Polling"} 1`)
	assert.Contains(t, out, `treadmill_session_state_info{state="Scanning"} 0`)
}

func TestMetrics_NothingReceived(t *testing.T) {
	live := metrics.Live{State: session.Transition{State: session.StateScanning}}

	out := body(t, serve(t, live, "/metrics"))

	assert.NotContains(t, out, "treadmill_speed_kph")
	assert.Contains(t, out, `treadmill_session_state_info{state="Scanning"} 1`)
}

func TestStatus_JSON(t *testing.T) {
	resp := serve(t, polling, "/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, "Polling", got["state"])
	assert.Equal(t, 8.5, got["speed_kph"])
	assert.Nil(t, got["incline_deg"])
	assert.Equal(t, 600.0, got["seconds_total"])
	assert.Equal(t, 900.0, got["calories_per_hour"])
	assert.Equal(t, "2026-03-01T07:10:00Z", got["updated_at"])
	assert.NotContains(t, got, "reason")
}

func TestStatus_DisconnectedReason(t *testing.T) {
	live := metrics.Live{State: session.Transition{State: session.StateDisconnected, Reason: session.ErrLinkLost}}

	var got map[string]any
	require.NoError(t, json.NewDecoder(serve(t, live, "/status").Body).Decode(&got))

	assert.Equal(t, "Disconnected", got["state"])
	assert.Equal(t, "link lost", got["reason"])
	assert.Nil(t, got["updated_at"])
}

func TestRouter_RejectsOtherMethods(t *testing.T) {
	f := func() metrics.Live { return polling }

	rec := httptest.NewRecorder()
	metrics.NewRouter(prometheus.NewRegistry(), f).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
