package reliability

import (
	"time"

	"golang.org/x/time/rate"

	"relay/internal/codec"
	"relay/internal/model"
)

// Protocol is the per-session reliability/ordering engine. It owns no
// socket and no cipher: the network layer hands it already-decoded
// *codec.Frame values and takes already-built *codec.Frame values back out
// to encode and send. Like the room engine it belongs to, a Protocol is
// touched by exactly one goroutine (the server's tick loop) and never
// locks.
type Protocol struct {
	memberId model.MemberId

	state             SessionState
	disconnectTimeout time.Duration
	disconnectReason  string

	hasReceivedFrame   bool
	lastReceiveFrameId uint64
	lastReceiveAt      time.Time

	nextFrameId uint64
	orderedSeq  map[uint16]uint32

	out        *outboundQueue
	retransmit *retransmitBuffer
	acks       *ackProducer
	in         *inboundCollectors
	rtt        *rttEstimator
	keepAlive  *keepAliveTracker
	limiter    *rate.Limiter
}

// NewProtocol constructs a Protocol in StateConnecting. inboundRate/
// inboundBurst configure the per-session token bucket guarding against a
// peer flooding frames (spec.md §7's "malformed/over-rate input is logged
// and dropped, never a fatal error").
func NewProtocol(memberId model.MemberId, now time.Time, disconnectTimeout time.Duration, inboundRate rate.Limit, inboundBurst int) *Protocol {
	return &Protocol{
		memberId:          memberId,
		state:             StateConnecting,
		disconnectTimeout: disconnectTimeout,
		lastReceiveAt:     now,
		nextFrameId:       1,
		orderedSeq:        make(map[uint16]uint32),
		out:               &outboundQueue{},
		retransmit:        newRetransmitBuffer(),
		acks:              &ackProducer{},
		in:                newInboundCollectors(),
		rtt:               newRTTEstimator(now),
		keepAlive:         newKeepAliveTracker(now),
		limiter:           rate.NewLimiter(inboundRate, inboundBurst),
	}
}

func (p *Protocol) State() SessionState { return p.state }

// Enqueue hands a room-produced S2C command to the outbound side. It will
// go out on a subsequent BuildOutgoingFrame call, possibly several ticks
// later if the queue is deep. ReliableOrdered channels get a per-group Seq
// stamped here, at enqueue time, so the receiver sees a gap-free stream for
// that group regardless of how the shared frame_id or interleaved
// acks/keep-alives/other channels land on the wire.
func (p *Protocol) Enqueue(ch codec.Channel, cmd codec.Command) {
	if p.state == StateDisconnected {
		return
	}
	if ch.Kind == codec.ChannelReliableOrdered {
		ch.Seq = p.nextOrderedSeq(ch.Group)
	}
	p.out.push(codec.CommandEnvelope{Channel: ch, Command: cmd})
}

func (p *Protocol) nextOrderedSeq(group uint16) uint32 {
	seq := p.orderedSeq[group]
	p.orderedSeq[group] = seq + 1
	return seq
}

// Receive processes one inbound, already-decrypted frame: it updates
// liveness/state, applies the peer's Ack header against our retransmit
// buffer, records this frame for our own next ack, and runs every
// contained command through its channel's ordering/dedup rule. It returns
// the commands that should be handed to the room engine now, in the
// relative order they appear in the frame (reliable before unreliable,
// matching the wire layout).
func (p *Protocol) Receive(f *codec.Frame, now time.Time) ([]codec.CommandEnvelope, error) {
	if p.state == StateDisconnected {
		return nil, ErrSessionDisconnected
	}
	if !p.limiter.AllowN(now, 1) {
		return nil, ErrRateLimited
	}

	for _, h := range f.Headers {
		if d, ok := h.(codec.DisconnectHeader); ok {
			p.disconnectReason = d.Reason
			p.state = StateDisconnected
			return nil, nil
		}
	}

	effectiveFrameId := f.FrameId
	for _, h := range f.Headers {
		if r, ok := h.(codec.RetransmitFrameHeader); ok {
			effectiveFrameId = r.OriginalFrameId
			break
		}
	}

	isNewest := !p.hasReceivedFrame || f.FrameId > p.lastReceiveFrameId
	if isNewest {
		p.hasReceivedFrame = true
		p.lastReceiveFrameId = f.FrameId
	}
	p.lastReceiveAt = now
	if p.state == StateConnecting {
		p.state = StateConnected
	}

	for _, h := range f.Headers {
		switch v := h.(type) {
		case codec.AckHeader:
			p.retransmit.ack(v.AckedFrameIds)
		case codec.RoundTripTimeHeader:
			p.rtt.observe(now, v.SelfTimeMs)
		}
	}
	p.acks.record(f.FrameId)

	// Every command in a frame shares its effective frame id, so the
	// dedup/stale decision is made once per stream and reused for the
	// frame's later commands on that stream.
	decided := make(map[channelKey]bool)
	deliverOnce := func(ch codec.Channel) bool {
		k := keyOf(ch)
		if ok, seen := decided[k]; seen {
			return ok
		}
		ok := p.in.deliver(ch, effectiveFrameId)
		decided[k] = ok
		return ok
	}

	var delivered []codec.CommandEnvelope
	for _, env := range f.Reliable {
		if env.Channel.Kind == codec.ChannelReliableOrdered {
			ready := p.in.deliverOrdered(env.Channel, env.Channel.Seq, []codec.CommandEnvelope{env})
			delivered = append(delivered, ready...)
			continue
		}
		if deliverOnce(env.Channel) {
			delivered = append(delivered, env)
		}
	}
	for _, env := range f.Unreliable {
		if deliverOnce(env.Channel) {
			delivered = append(delivered, env)
		}
	}
	return delivered, nil
}

// BuildOutgoingFrame assembles the next frame to send for this session:
// due retransmits first (re-keyed under a fresh frame id), then freshly
// queued reliable and unreliable commands, plus housekeeping headers
// (identity, piggybacked acks, RTT probe). It returns ok=false when there
// is nothing worth sending and the keep-alive interval hasn't elapsed
// either — callers should skip the send entirely rather than emit an
// empty datagram every tick.
func (p *Protocol) BuildOutgoingFrame(now time.Time, roomId model.RoomId) (*codec.Frame, bool) {
	if p.state == StateDisconnected {
		return nil, false
	}

	if due := p.retransmit.due(now); len(due) > 0 {
		rec := due[0]
		oldId := p.currentKeyOf(rec)
		newId := p.allocFrameId()
		p.retransmit.reKey(rec, oldId, newId, now)
		orig := rec.originalFrameId
		f := p.finishFrame(newId, roomId, rec.reliable, nil, &orig, now)
		return f, true
	}

	reliable := p.out.drain(maxReliablePerFrame, &p.out.reliable)
	unreliable := p.out.drain(maxUnreliablePerFrame, &p.out.unreliable)

	hasContent := len(reliable) > 0 || len(unreliable) > 0
	hasAcks := len(p.acks.pending) > 0
	if !hasContent && !hasAcks && !p.keepAlive.due(now) {
		return nil, false
	}

	frameId := p.allocFrameId()
	if len(reliable) > 0 {
		p.retransmit.add(frameId, reliable, now)
	}
	f := p.finishFrame(frameId, roomId, reliable, unreliable, nil, now)
	return f, true
}

func (p *Protocol) allocFrameId() uint64 {
	id := p.nextFrameId
	p.nextFrameId++
	return id
}

// currentKeyOf finds the map key a record is currently stored under. The
// buffer only ever holds one entry per logical message so this is a
// short, bounded scan triggered only on the (rare) retransmit path.
func (p *Protocol) currentKeyOf(rec *retransmitRecord) uint64 {
	for k, v := range p.retransmit.byFrameId {
		if v == rec {
			return k
		}
	}
	return rec.originalFrameId
}

func (p *Protocol) finishFrame(frameId uint64, roomId model.RoomId, reliable, unreliable []codec.CommandEnvelope, retransmitOf *uint64, now time.Time) *codec.Frame {
	headers := []codec.Header{
		codec.MemberAndRoomIdHeader{RoomId: roomId, MemberId: p.memberId},
		codec.RoundTripTimeHeader{SelfTimeMs: p.rtt.selfTimeMs(now)},
	}
	if retransmitOf != nil {
		headers = append(headers, codec.RetransmitFrameHeader{OriginalFrameId: *retransmitOf})
	}
	if ids := p.acks.take(); ids != nil {
		headers = append(headers, codec.AckHeader{AckedFrameIds: ids})
	}
	if !p.hasReceivedFrame && p.state == StateConnecting {
		headers = append(headers, codec.HelloHeader{})
	}
	p.keepAlive.markSent(now)
	return &codec.Frame{FrameId: frameId, Headers: headers, Reliable: reliable, Unreliable: unreliable}
}

// CheckTimeout evaluates liveness and the stalled-retransmit-backlog cap,
// moving the session to StateDisconnected if either fires. Returns true
// when the session just transitioned (i.e. the caller should now start
// tearing it down).
func (p *Protocol) CheckTimeout(now time.Time) bool {
	if p.state == StateDisconnected {
		return false
	}
	if now.Sub(p.lastReceiveAt) > p.disconnectTimeout {
		p.disconnectReason = "timeout"
		p.state = StateDisconnected
		return true
	}
	if p.retransmit.len() > retransmitBacklogLimit {
		p.disconnectReason = "stalled"
		p.state = StateDisconnected
		return true
	}
	return false
}

// Disconnect transitions the session immediately, recording reason for
// diagnostics. The caller is still responsible for emitting a
// DisconnectHeader frame if it wants to tell the peer.
func (p *Protocol) Disconnect(reason string) {
	p.disconnectReason = reason
	p.state = StateDisconnected
}

func (p *Protocol) DisconnectReason() string { return p.disconnectReason }

func (p *Protocol) RTT() time.Duration { return p.rtt.current() }
