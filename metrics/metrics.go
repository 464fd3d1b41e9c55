package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robertof/go-treadfit/device"
	"github.com/robertof/go-treadfit/session"
)

var (
	descSpeed = prometheus.NewDesc(
		"treadmill_speed_kph",
		"Belt speed reported by the machine in km/h.",
		nil,
		nil,
	)

	descIncline = prometheus.NewDesc(
		"treadmill_incline_degrees",
		"Incline reported by the machine in degrees.",
		nil,
		nil,
	)

	descDistance = prometheus.NewDesc(
		"treadmill_distance_km",
		"Distance counter of the current workout on the machine.",
		nil,
		nil,
	)

	descElapsed = prometheus.NewDesc(
		"treadmill_elapsed_seconds",
		"Elapsed time counter of the current workout on the machine.",
		nil,
		nil,
	)

	descEnergyRate = prometheus.NewDesc(
		"treadmill_energy_rate_kcal_per_hour",
		"Estimated instantaneous energy expenditure.",
		nil,
		nil,
	)

	descEnergyTotal = prometheus.NewDesc(
		"treadmill_energy_kcal",
		"Estimated energy spent while the belt was moving since start.",
		nil,
		nil,
	)

	descState = prometheus.NewDesc(
		"treadmill_session_state_info",
		"Connection state of the device session. 1 for the current state.",
		[]string{"state"},
		nil,
	)
)

var allStates = []session.State{
	session.StateIdle,
	session.StateScanning,
	session.StateConnecting,
	session.StateHandshaking,
	session.StatePolling,
	session.StateDisconnected,
}

// Live is what the exporter shows at scrape time.
type Live struct {
	Status device.Status
	State  session.Transition
	Energy session.Energy
}

type CollectFunc func() Live

// FromSession reads the live view of a running session.
func FromSession(s *session.Session) CollectFunc {
	return func() Live {
		return Live{
			Status: s.Aggregator().Status(),
			State:  s.State(),
			Energy: s.Tracker().Energy(),
		}
	}
}

type collector struct {
	CollectFunc
}

// Describe lists every descriptor up front: readings only show up once received.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descSpeed, descIncline, descDistance, descElapsed, descEnergyRate, descEnergyTotal, descState,
	} {
		ch <- d
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	live := c.CollectFunc()

	for _, st := range allStates {
		v := 0.0

		if st == live.State.State {
			v = 1
		}

		ch <- prometheus.MustNewConstMetric(descState, prometheus.GaugeValue, v, st.String())
	}

	ch <- prometheus.MustNewConstMetric(descEnergyRate, prometheus.GaugeValue, live.Energy.RatePerHour)
	ch <- prometheus.MustNewConstMetric(descEnergyTotal, prometheus.GaugeValue, live.Energy.TotalKcal)

	// nothing was ever received: leave the readings out instead of reporting zeros.
	if live.Status.Version == 0 {
		return
	}

	ts := live.Status.UpdatedAt
	r := live.Status.Reading

	for _, m := range []struct {
		desc *prometheus.Desc
		has  bool
		v    float64
	}{
		{descSpeed, r.HasSpeed, r.SpeedKph},
		{descIncline, r.HasIncline, r.InclineDeg},
		{descDistance, r.HasDistance, r.DistanceKm},
		{descElapsed, r.HasElapsed, float64(r.ElapsedSeconds)},
	} {
		if !m.has {
			continue
		}

		ch <- prometheus.NewMetricWithTimestamp(ts,
			prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, m.v))
	}
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
	c := &collector{f}

	reg.MustRegister(c)
}
