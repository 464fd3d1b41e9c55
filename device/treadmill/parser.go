package treadmill

import (
	"encoding/binary"

	"github.com/robertof/go-treadfit/device"
)

const (
	// MinFrameLength is the shortest payload worth looking at. Anything shorter is a
	// partial read and gets dropped.
	MinFrameLength = 12

	discriminatorKinematic byte = 0x00
	discriminatorElapsed   byte = 0x01
	discriminatorAck       byte = 0x02
	discriminatorControl   byte = 0xfe

	speedOffset    = 10
	inclineOffset  = 12
	distanceOffset = 16
	elapsedOffset  = 9

	speedScale    = 100.0
	inclineScale  = 100.0
	distanceScale = 1000.0
)

// Decode turns one notification payload into a frame. It never fails: short, partial or
// unrecognized payloads decode to FrameIgnored or FrameUnknown.
func Decode(data []byte) device.Frame {
	if len(data) < MinFrameLength {
		return device.Frame{Kind: device.FrameIgnored}
	}

	f := device.Frame{Discriminator: data[0]}
	bo := binary.LittleEndian

	switch data[0] {
	case discriminatorKinematic:
		// the distance field sits past the minimum length.
		if len(data) < distanceOffset+2 {
			f.Kind = device.FrameIgnored
			return f
		}

		f.Kind = device.FrameKinematic
		f.Reading = device.Reading{
			SpeedKph:    float64(bo.Uint16(data[speedOffset:])) / speedScale,
			InclineDeg:  float64(bo.Uint16(data[inclineOffset:])) / inclineScale,
			DistanceKm:  float64(bo.Uint16(data[distanceOffset:])) / distanceScale,
			HasSpeed:    true,
			HasIncline:  true,
			HasDistance: true,
		}
	case discriminatorElapsed:
		f.Kind = device.FrameElapsed
		f.Reading = device.Reading{
			ElapsedSeconds: int(bo.Uint16(data[elapsedOffset:])),
			HasElapsed:     true,
		}
	case discriminatorAck, discriminatorControl:
		f.Kind = device.FrameIgnored
	default:
		f.Kind = device.FrameUnknown
	}

	return f
}
