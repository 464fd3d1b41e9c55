package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robertof/go-treadfit/device"
	"github.com/rs/zerolog/log"
)

// Perform an active or passive scan and return every advertisement found. Repeated
// advertisements are only reported with FlagAllowDuplicates.
func (h *Handle) ScanAll(ctx context.Context, onDevice func(Advertisement)) error {
	scanPassesCounter.Inc()

	err := h.dev.Scan(ctx, h.flags&FlagAllowDuplicates == FlagAllowDuplicates, onDevice)

	if err != nil {
		return fmt.Errorf("failed to initiate scan: %w", err)
	}

	return nil
}

// Scan until a peripheral advertises exactly the requested local name and return its
// advertisement. When ctx expires first, device.ErrNotFound is returned.
func (h *Handle) FindByName(parentCtx context.Context, name string) (Advertisement, error) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	var (
		once  sync.Once
		found Advertisement
	)

	scanPassesCounter.Inc()

	err := h.dev.Scan(ctx, false, func(a Advertisement) {
		// the BLE lib could send an advertisement even after `Scan()` returns. do not waste
		// time matching if we're done.
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.LocalName() != name {
			return
		}

		once.Do(func() {
			log.Trace().
				Str("Addr", a.Addr().String()).
				Str("LocalName", a.LocalName()).
				Int("RSSI", a.RSSI()).
				Msg("ble: found advertisement matching name")

			found = a
			cancel()
		})
	})

	// wait for the callback to settle before reading `found`.
	once.Do(func() {})

	if found != nil {
		return found, nil
	}

	if errors.Is(parentCtx.Err(), context.Canceled) {
		return nil, parentCtx.Err()
	}

	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no advertisement for %q", device.ErrNotFound, name)
	}

	return nil, fmt.Errorf("failed to initiate scan: %w", err)
}
