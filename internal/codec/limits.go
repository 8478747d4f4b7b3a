package codec

// Wire-format limits. These are named constants rather than magic numbers
// scattered through encode/decode, the way the teacher collects its
// operational constants in limits.go.
const (
	// FrameBodyCapacity bounds the plaintext command body (reliable +
	// unreliable command lists combined) of a single frame, before AEAD
	// expansion. The spec treats this as a fixed budget, not negotiated.
	FrameBodyCapacity = 1024

	// MaxHeaders bounds the number of headers a single frame may carry.
	MaxHeaders = 8

	// MaxAckedFrameIds bounds the Ack header's acked-id list.
	MaxAckedFrameIds = 32

	// MaxBufferLen is the wire-format ceiling for a length-prefixed Buffer
	// (a single byte length prefix).
	MaxBufferLen = 255
)
