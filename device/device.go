package device

// Frame is the outcome of decoding one notification payload.
type Frame struct {
	Kind FrameKind

	// Reading holds the fields carried by the frame. Only populated for FrameKinematic and
	// FrameElapsed.
	Reading Reading

	// Discriminator is the first byte of the payload, when there is one.
	Discriminator byte
}

type FrameKind uint8

const (
	// FrameIgnored is a payload that carries nothing of interest: too short, an
	// acknowledgement or a control frame.
	FrameIgnored FrameKind = iota
	// FrameUnknown is ignored too, but its discriminator is not one the decoder knows.
	FrameUnknown
	FrameKinematic
	FrameElapsed
)

func (k FrameKind) String() string {
	switch k {
	case FrameIgnored:
		return "Ignored"
	case FrameUnknown:
		return "Unknown"
	case FrameKinematic:
		return "Kinematic"
	case FrameElapsed:
		return "Elapsed"
	default:
		panic("unknown FrameKind value")
	}
}

// Decoded reports whether the frame carries fields for the aggregator.
func (f Frame) Decoded() bool {
	return f.Kind == FrameKinematic || f.Kind == FrameElapsed
}
