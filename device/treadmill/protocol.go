package treadmill

import (
	"encoding/hex"
	"time"
)

const (
	// DefaultName is the advertised local name of the supported machine.
	DefaultName = "I_TL"

	WriteCharacteristicUUID  = "00001534-1412-efde-1523-785feabcd123"
	NotifyCharacteristicUUID = "00001535-1412-efde-1523-785feabcd123"

	DefaultCommandDelay = 100 * time.Millisecond
	DefaultPollInterval = time.Second
)

// The command sequences below are opaque vendor data: they're replayed byte for byte and
// in order. Nothing in this package interprets them.
var (
	initSequence = mustDecodeAll(
		"fe022c04",
		"0012020402280428900701cec4b0aaa2a8949696",
		"0112aca8a2bad0dccefe14003a52786486a6fc18",
		"ff08324aa0880200004400000000000000000000",
	)

	pollSequence = mustDecodeAll(
		"fe021403",
		"001202040210041002000a1b9430000040500080",
		"ff02182700000000000000000000000000000000",
	)
)

// InitSequence returns a copy of the handshake commands, in transmission order.
func InitSequence() [][]byte {
	return clone(initSequence)
}

// PollSequence returns a copy of the commands that prompt the next notification batch.
func PollSequence() [][]byte {
	return clone(pollSequence)
}

func mustDecodeAll(cmds ...string) [][]byte {
	out := make([][]byte, len(cmds))

	for i, cmd := range cmds {
		b, err := hex.DecodeString(cmd)

		if err != nil {
			panic("treadmill: invalid command constant " + cmd)
		}

		out[i] = b
	}

	return out
}

func clone(seq [][]byte) [][]byte {
	out := make([][]byte, len(seq))

	for i, cmd := range seq {
		out[i] = append([]byte(nil), cmd...)
	}

	return out
}
