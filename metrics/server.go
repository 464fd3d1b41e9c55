package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// statusResponse is the JSON body of /status. Readings never received are null.
type statusResponse struct {
	State           string     `json:"state"`
	Reason          string     `json:"reason,omitempty"`
	SpeedKph        *float64   `json:"speed_kph"`
	InclineDeg      *float64   `json:"incline_deg"`
	DistanceKm      *float64   `json:"distance_km"`
	SecondsTotal    *int       `json:"seconds_total"`
	CaloriesPerHour float64    `json:"calories_per_hour"`
	CaloriesTotal   float64    `json:"calories_total"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

func newStatusResponse(live Live) statusResponse {
	r := live.Status.Reading

	out := statusResponse{
		State:           live.State.State.String(),
		CaloriesPerHour: live.Energy.RatePerHour,
		CaloriesTotal:   live.Energy.TotalKcal,
	}

	if live.State.Reason != nil {
		out.Reason = live.State.Reason.Error()
	}

	if r.HasSpeed {
		out.SpeedKph = &r.SpeedKph
	}

	if r.HasIncline {
		out.InclineDeg = &r.InclineDeg
	}

	if r.HasDistance {
		out.DistanceKm = &r.DistanceKm
	}

	if r.HasElapsed {
		out.SecondsTotal = &r.ElapsedSeconds
	}

	if live.Status.Version > 0 {
		out.UpdatedAt = &live.Status.UpdatedAt
	}

	return out
}

// NewRouter serves the registry on /metrics and the live view as JSON on /status.
func NewRouter(gatherer prometheus.Gatherer, f CollectFunc) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := json.NewEncoder(w).Encode(newStatusResponse(f())); err != nil {
			log.Debug().Err(err).Msg("metrics: failed to write status response")
		}
	}).Methods(http.MethodGet)

	r.Use(loggingMiddleware)

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		log.Trace().
			Str("Method", r.Method).
			Str("Path", r.URL.Path).
			Dur("Took", time.Since(start)).
			Msg("metrics: served request")
	})
}
