package device

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("device not found")

// Peripheral identifies a discovered machine.
type Peripheral struct {
	Name string
	Addr string
}

func (p Peripheral) String() string {
	return fmt.Sprintf("peripheral[name=%q, addr=%v]", p.Name, p.Addr)
}

// Link is an open connection to the machine: one write channel for commands and one
// notification channel for frames.
type Link interface {
	Write(data []byte) error
	// Subscribe routes every notification payload to h in arrival order.
	Subscribe(h func(data []byte)) error
	// Disconnected is closed when the connection drops.
	Disconnected() <-chan struct{}
	Close() error
}

// Transport discovers and connects to machines.
type Transport interface {
	// Find runs one scan pass for a peripheral advertising exactly the given name. It
	// returns ErrNotFound if none showed up before ctx expired.
	Find(ctx context.Context, name string) (Peripheral, error)
	Connect(ctx context.Context, p Peripheral) (Link, error)
}
