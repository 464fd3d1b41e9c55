package treadmill

import (
	"errors"
	"fmt"

	"github.com/robertof/go-treadfit/ble"
	"github.com/rs/zerolog/log"
)

var ErrCharacteristicNotFound = errors.New("characteristic not found")

// Link is an open GATT connection to the machine with its write and notify
// characteristics resolved.
type Link struct {
	client ble.Client
	write  *ble.Characteristic
	notify *ble.Characteristic
}

// NewLink discovers the vendor characteristics on an established connection. The client
// is left untouched on failure: closing it is up to the caller.
func NewLink(client ble.Client) (*Link, error) {
	p, err := client.DiscoverProfile(true)

	if err != nil {
		return nil, fmt.Errorf("cannot discover profile for device: %w", err)
	}

	l := &Link{client: client}

	for _, c := range []struct {
		uuid string
		dst  **ble.Characteristic
	}{
		{WriteCharacteristicUUID, &l.write},
		{NotifyCharacteristicUUID, &l.notify},
	} {
		char, ok := p.Find(ble.NewCharacteristic(ble.MustParse(c.uuid))).(*ble.Characteristic)

		if !ok || char == nil {
			return nil, fmt.Errorf("%w: %v", ErrCharacteristicNotFound, c.uuid)
		}

		*c.dst = char
	}

	log.Trace().
		Str("Addr", client.Addr().String()).
		Uint16("WriteHandle", l.write.ValueHandle).
		Uint16("NotifyHandle", l.notify.ValueHandle).
		Msg("treadmill: resolved vendor characteristics")

	return l, nil
}

// Write sends one command and waits for the write response.
func (l *Link) Write(data []byte) error {
	if err := l.client.WriteCharacteristic(l.write, data, false); err != nil {
		return fmt.Errorf("failed to write characteristic '%v': %w", l.write.UUID, err)
	}

	return nil
}

// Subscribe routes every notification payload to h, in arrival order.
func (l *Link) Subscribe(h func([]byte)) error {
	if err := l.client.Subscribe(l.notify, false, h); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic '%v': %w", l.notify.UUID, err)
	}

	return nil
}

func (l *Link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Close drops the subscription and tears the connection down.
func (l *Link) Close() error {
	if err := l.client.ClearSubscriptions(); err != nil {
		log.Trace().Err(err).Msg("treadmill: failed to clear subscriptions")
	}

	return l.client.CancelConnection()
}

func (l *Link) String() string {
	return fmt.Sprintf("treadmill[name=%q, addr=%v]", l.client.Name(), l.client.Addr())
}
