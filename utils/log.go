package utils

import (
	"fmt"

	"github.com/rs/zerolog"
)

func ToZeroLogArray[T fmt.Stringer](arr []T) (ret *zerolog.Array) {
	ret = zerolog.Arr()

	for _, elem := range arr {
		ret = ret.Str(elem.String())
	}

	return ret
}

// HexArray logs a table of opaque commands, one hex string per entry.
func HexArray(cmds [][]byte) (ret *zerolog.Array) {
	ret = zerolog.Arr()

	for _, cmd := range cmds {
		ret = ret.Str(fmt.Sprintf("%x", cmd))
	}

	return ret
}
