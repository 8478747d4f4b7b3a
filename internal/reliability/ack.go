package reliability

import "relay/internal/codec"

// ackProducer accumulates frame ids to acknowledge as inbound frames
// arrive, to be piggybacked on the session's next outbound frame. Bounded
// so a burst of inbound frames can't grow an ack header past
// MaxAckedFrameIds worth of useful information (older, less useful acks
// are dropped first — the peer's retransmit backoff means the newest acks
// matter most).
type ackProducer struct {
	pending []uint64
}

func (a *ackProducer) record(frameId uint64) {
	a.pending = append(a.pending, frameId)
	if len(a.pending) > codec.MaxAckedFrameIds {
		a.pending = a.pending[len(a.pending)-codec.MaxAckedFrameIds:]
	}
}

// take returns the accumulated ids and clears the pending set, or nil if
// there's nothing to acknowledge yet.
func (a *ackProducer) take() []uint64 {
	if len(a.pending) == 0 {
		return nil
	}
	out := a.pending
	a.pending = nil
	return out
}
