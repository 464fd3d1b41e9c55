package ble

import (
	"fmt"
	"slices"

	"github.com/go-ble/ble/linux/hci/cmd"
)

type ConnParams string

const (
	ConnParamsDefault ConnParams = "default"
	// ConnParamsRelaxed uses longer connection intervals with slave latency. See
	// AdapterOptions for the numbers.
	ConnParamsRelaxed ConnParams = "relaxed"
)

// *flag.Value / pflag.Value
func (c *ConnParams) String() string {
	return string(*c)
}

func (c *ConnParams) Set(v string) error {
	if v == "" {
		*c = ConnParamsDefault
		return nil
	}

	allParams := []ConnParams{ConnParamsDefault, ConnParamsRelaxed}
	p := ConnParams(v)

	if !slices.Contains(allParams, p) {
		return fmt.Errorf("unknown connection param %v (must be one of %v)", p, allParams)
	}

	*c = p
	return nil
}

func (c *ConnParams) Type() string {
	return "connParams"
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
	p := cmd.LECreateConnection{
		LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
		LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
		InitiatorFilterPolicy: 0x00,      // White list is not used
		PeerAddressType:       0x00,      // Public Device Address
		PeerAddress:           [6]byte{}, //
		OwnAddressType:        0x00,      // Public Device Address
		ConnIntervalMin:       0x0018,    // 0x0006 - 0x0C80; N * 1.25 msec
		ConnIntervalMax:       0x0028,    // 0x0006 - 0x0C80; N * 1.25 msec
		ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
		SupervisionTimeout:    0x0190,    // 0x000A - 0x0C80; N * 10 msec
		MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
		MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
	}

	switch c {
	case ConnParamsDefault:
		break
	case ConnParamsRelaxed:
		// for adapters that keep dropping the link at the default 30-50ms interval. The
		// machine only talks once per 1s poll: one batch of 3 writes plus the notifications
		// fits in a single 100-150ms event, and the peripheral may skip 2 events, so the
		// worst-case answer delay is 450ms, under the poll interval.
		// - interval max * (latency + 1) <= 1/2 supervision timeout
		p.ConnIntervalMin = 0x0050    // 100ms
		p.ConnIntervalMax = 0x0078    // 150ms
		p.ConnLatency = 0x0002        // 2
		p.SupervisionTimeout = 0x0258 // 6s
	default:
		panic("unknown Bluetooth connection param: " + c)
	}

	return p
}
