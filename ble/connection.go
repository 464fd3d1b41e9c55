package ble

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_ble_failed_connections_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_ble_disconnections_total",
	})
	scanPassesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treadfit_ble_scan_passes_total",
	})
)

// Connect dials the peripheral. Only one connection is held at a time: callers must
// cancel the returned client before dialing again.
func (h *Handle) Connect(ctx context.Context, addr Addr) (Client, error) {
	conn, err := h.dev.Dial(ctx, addr)

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, err
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Stringer("Addr", addr).Msg("ble: successfully opened new connection to device")

	// spawn a watchdog accounting for the connection breaking.
	go func() {
		<-conn.Disconnected()

		disconnectsCounter.Inc()
		log.Debug().Stringer("Addr", addr).Msg("ble: connection with device closed")
	}()

	return conn, nil
}
