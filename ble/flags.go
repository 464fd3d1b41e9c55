package ble

import (
	"strconv"
	"strings"
)

type Flags int

const (
	// FlagScanTypeActive requests scan responses. The treadmill only puts its local name
	// there, so name matching needs it.
	FlagScanTypeActive Flags = 1 << iota
	// FlagAllowDuplicates makes ScanAll report every advertisement instead of the first
	// one per peripheral. Discovery uses it to keep RSSI and late scan responses current.
	FlagAllowDuplicates
)

func (f Flags) String() string {
	var flags []string

	if f&FlagScanTypeActive == FlagScanTypeActive {
		flags = append(flags, "active scan")
	}

	if f&FlagAllowDuplicates == FlagAllowDuplicates {
		flags = append(flags, "duplicates")
	}

	if len(flags) == 0 {
		return "none"
	}

	return strings.Join(flags, ", ")
}

type scanType uint8

const (
	scanTypePassive scanType = iota
	scanTypeActive
)

func (s scanType) String() string {
	switch s {
	case scanTypeActive:
		return "Active"
	case scanTypePassive:
		return "Passive"
	default:
		panic("unknown scanType value: " + strconv.Itoa(int(s)))
	}
}
