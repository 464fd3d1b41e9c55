package session

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is the reason the session ends up Disconnected after its context is done.
	ErrStopped = errors.New("session stopped")
	// ErrLinkLost is the reason reported when the machine drops the connection.
	ErrLinkLost = errors.New("link lost")
)

type State uint8

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateHandshaking
	StatePolling
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StatePolling:
		return "Polling"
	case StateDisconnected:
		return "Disconnected"
	default:
		panic("unknown State value")
	}
}

// Transition is a state change. Reason is only set for StateDisconnected.
type Transition struct {
	State  State
	Reason error
}

func (t Transition) String() string {
	if t.State == StateDisconnected && t.Reason != nil {
		return fmt.Sprintf("%v(%v)", t.State, t.Reason)
	}

	return t.State.String()
}
