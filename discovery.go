package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/robertof/go-treadfit/ble"
	"github.com/robertof/go-treadfit/utils"
)

func discoverCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List nearby Bluetooth devices, to find the treadmill name",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ctx, cancelScan := context.WithTimeout(ctx, duration)
			defer cancelScan()

			return doDeviceDiscovery(ctx, duration)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to collect advertisements for")

	return cmd
}

func doDeviceDiscovery(ctx context.Context, duration time.Duration) error {
	log.Info().Dur("Duration", duration).Msg("Starting in device discovery mode - collecting devices...")

	handle, err := ble.Init(cfg.BluetoothDeviceId, ble.FlagScanTypeActive|ble.FlagAllowDuplicates)

	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Bluetooth device")
		return err
	}

	defer handle.Stop()

	devices := newDiscoveredDevices()

	err = handle.ScanAll(ctx, func(a ble.Advertisement) {
		// the BLE lib could send an advertisement even after `ScanAll()` returns.
		select {
		case <-ctx.Done():
			return
		default:
		}

		info := devices.add(a)

		log.Debug().
			Str("Addr", a.Addr().String()).
			Str("Name", a.LocalName()).
			Bool("Connectable", a.Connectable()).
			Strs("Services", info.services).
			Hex("ManufacturerData", a.ManufacturerData()).
			Msg("Received device advertisement")
	})

	if err != nil && !utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("Failed to initiate scan")
		return err
	}

	found := devices.snapshot()

	log.Info().Int("Found", len(found)).Msg("Finished device discovery")

	for addr, data := range found {
		ev := log.Info()

		if data.name == cfg.DeviceName {
			ev = log.Warn().Bool("Treadmill", true)
		}

		ev.
			Str("Addr", addr).
			Str("Name", data.name).
			Bool("Connectable", data.connectable).
			Int("RSSI", data.rssi).
			Strs("Services", data.services).
			Msg("Found device")
	}

	return nil
}

type deviceInfo struct {
	name        string
	connectable bool
	rssi        int
	services    []string
}

// discoveredDevices merges advertisements per address. It is written from the scan
// callback and read once the scan is over, possibly while late callbacks still run.
type discoveredDevices struct {
	mu      sync.Mutex
	devices map[string]deviceInfo
}

func newDiscoveredDevices() *discoveredDevices {
	return &discoveredDevices{devices: make(map[string]deviceInfo)}
}

func (d *discoveredDevices) add(a ble.Advertisement) deviceInfo {
	services := make(map[string]bool)

	for _, uuid := range a.Services() {
		services[uuid.String()] = true
	}

	addr := a.Addr().String()

	d.mu.Lock()
	defer d.mu.Unlock()

	info, ok := d.devices[addr]

	if ok {
		// merge: names usually come in the scan response only.
		if info.name == "" {
			info.name = a.LocalName()
		}

		for _, uuid := range info.services {
			services[uuid] = true
		}
	} else {
		info.name = a.LocalName()
	}

	info.connectable = a.Connectable()
	info.rssi = a.RSSI()
	info.services = maps.Keys(services)

	d.devices[addr] = info

	return info
}

// snapshot copies the devices seen so far. Entries are never mutated in place, so the
// copy is safe to read without the lock.
func (d *discoveredDevices) snapshot() map[string]deviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return maps.Clone(d.devices)
}
