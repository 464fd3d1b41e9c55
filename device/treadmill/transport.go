package treadmill

import (
	"context"
	"fmt"

	"github.com/robertof/go-treadfit/ble"
	"github.com/robertof/go-treadfit/device"
)

// Transport finds and connects to the machine over a local HCI device.
type Transport struct {
	Handle *ble.Handle
}

func (t *Transport) Find(ctx context.Context, name string) (device.Peripheral, error) {
	a, err := t.Handle.FindByName(ctx, name)

	if err != nil {
		return device.Peripheral{}, err
	}

	return device.Peripheral{Name: a.LocalName(), Addr: a.Addr().String()}, nil
}

func (t *Transport) Connect(ctx context.Context, p device.Peripheral) (device.Link, error) {
	client, err := t.Handle.Connect(ctx, ble.NewAddr(p.Addr))

	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	link, err := NewLink(client)

	if err != nil {
		// release the half-open connection before the next attempt.
		_ = client.CancelConnection()
		return nil, err
	}

	return link, nil
}
