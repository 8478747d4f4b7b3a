package codec

import (
	"relay/internal/model"
)

// HeaderTag identifies a header's shape on the wire. Headers are always
// cleartext — the receiver needs them (MemberAndRoomId in particular) to
// find the right session and cipher before it can even attempt to decrypt
// the body.
type HeaderTag uint8

const (
	HeaderMemberAndRoomId HeaderTag = iota
	HeaderHello
	HeaderRetransmitFrame
	HeaderDisconnect
	HeaderAck
	HeaderRoundTripTime
)

// Header is the tagged union of frame headers.
type Header interface {
	Tag() HeaderTag
}

// MemberAndRoomIdHeader identifies the (room, member) pair a frame belongs
// to. Required to look up the session and its cipher.
type MemberAndRoomIdHeader struct {
	RoomId   model.RoomId
	MemberId model.MemberId
}

func (MemberAndRoomIdHeader) Tag() HeaderTag { return HeaderMemberAndRoomId }

// HelloHeader marks the first frame of a session (handshake).
type HelloHeader struct{}

func (HelloHeader) Tag() HeaderTag { return HeaderHello }

// RetransmitFrameHeader marks a frame as a resend of a prior unacked
// frame, carrying the original frame id so the peer can dedup/ack
// correctly.
type RetransmitFrameHeader struct {
	OriginalFrameId uint64
}

func (RetransmitFrameHeader) Tag() HeaderTag { return HeaderRetransmitFrame }

// DisconnectHeader signals a graceful disconnect with a short reason.
type DisconnectHeader struct {
	Reason string
}

func (DisconnectHeader) Tag() HeaderTag { return HeaderDisconnect }

// AckHeader acknowledges up to MaxAckedFrameIds frame ids.
type AckHeader struct {
	AckedFrameIds []uint64
}

func (AckHeader) Tag() HeaderTag { return HeaderAck }

// RoundTripTimeHeader carries the sender's local clock (ms) to be echoed
// back by the peer in its next frame, letting the original sender compute
// RTT from the echo.
type RoundTripTimeHeader struct {
	SelfTimeMs uint32
}

func (RoundTripTimeHeader) Tag() HeaderTag { return HeaderRoundTripTime }

func encodeHeader(w *writer, h Header) error {
	w.u8(uint8(h.Tag()))
	switch v := h.(type) {
	case MemberAndRoomIdHeader:
		w.u64(uint64(v.RoomId))
		w.u16(uint16(v.MemberId))
	case HelloHeader:
	case RetransmitFrameHeader:
		w.u64(v.OriginalFrameId)
	case DisconnectHeader:
		reason := v.Reason
		if len(reason) > MaxBufferLen {
			reason = reason[:MaxBufferLen]
		}
		w.buffer(model.Buffer(reason))
	case AckHeader:
		ids := v.AckedFrameIds
		if len(ids) > MaxAckedFrameIds {
			ids = ids[len(ids)-MaxAckedFrameIds:]
		}
		w.u8(uint8(len(ids)))
		for _, id := range ids {
			w.u64(id)
		}
	case RoundTripTimeHeader:
		w.u32(v.SelfTimeMs)
	default:
		return ErrUnknownHeader
	}
	return nil
}

func decodeHeader(r *reader) (Header, error) {
	tagByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	switch HeaderTag(tagByte) {
	case HeaderMemberAndRoomId:
		roomId, err := r.u64()
		if err != nil {
			return nil, err
		}
		memberId, err := r.u16()
		if err != nil {
			return nil, err
		}
		return MemberAndRoomIdHeader{RoomId: model.RoomId(roomId), MemberId: model.MemberId(memberId)}, nil
	case HeaderHello:
		return HelloHeader{}, nil
	case HeaderRetransmitFrame:
		orig, err := r.u64()
		if err != nil {
			return nil, err
		}
		return RetransmitFrameHeader{OriginalFrameId: orig}, nil
	case HeaderDisconnect:
		b, err := r.buffer()
		if err != nil {
			return nil, err
		}
		return DisconnectHeader{Reason: string(b)}, nil
	case HeaderAck:
		n, err := r.u8()
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, n)
		for i := uint8(0); i < n; i++ {
			id, err := r.u64()
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return AckHeader{AckedFrameIds: ids}, nil
	case HeaderRoundTripTime:
		ms, err := r.u32()
		if err != nil {
			return nil, err
		}
		return RoundTripTimeHeader{SelfTimeMs: ms}, nil
	default:
		return nil, ErrUnknownHeader
	}
}

// ChannelKind is the delivery-semantics tag carried alongside every
// command in a frame.
type ChannelKind uint8

const (
	ChannelReliableUnordered ChannelKind = iota
	ChannelReliableOrdered
	ChannelReliableSequence
	ChannelUnreliableUnordered
	ChannelUnreliableOrdered
)

// HasGroup reports whether this channel kind carries a group tag on the
// wire (Ordered/Sequence channels isolate independent ordering streams;
// Unordered channels don't need one).
func (k ChannelKind) HasGroup() bool {
	return k == ChannelReliableOrdered || k == ChannelReliableSequence || k == ChannelUnreliableOrdered
}

// Reliable reports whether commands on this channel participate in the
// ack/retransmit machinery.
func (k ChannelKind) Reliable() bool {
	return k == ChannelReliableUnordered || k == ChannelReliableOrdered || k == ChannelReliableSequence
}

// Channel pairs a delivery kind with its (optional) ordering-group tag.
// Seq is meaningful only for ChannelReliableOrdered: a per-group counter
// assigned by the sender at enqueue time, independent of the frame's own
// frame_id. frame_id is shared across every channel and is also consumed
// by frames carrying nothing for a given channel (acks, keep-alives,
// other channels' traffic), so it is never a gap-free per-channel
// sequence on its own — Seq is what lets a ReliableOrdered stream detect
// reordering without waiting forever on an id that was never going to
// arrive.
type Channel struct {
	Kind  ChannelKind
	Group uint16
	Seq   uint32
}

func ReliableUnordered() Channel { return Channel{Kind: ChannelReliableUnordered} }
func ReliableOrdered(group uint16) Channel {
	return Channel{Kind: ChannelReliableOrdered, Group: group}
}
func ReliableSequence(group uint16) Channel {
	return Channel{Kind: ChannelReliableSequence, Group: group}
}
func UnreliableUnordered() Channel { return Channel{Kind: ChannelUnreliableUnordered} }
func UnreliableOrdered(group uint16) Channel {
	return Channel{Kind: ChannelUnreliableOrdered, Group: group}
}

func encodeChannel(w *writer, c Channel) {
	w.u8(uint8(c.Kind))
	if c.Kind.HasGroup() {
		w.varint(uint64(c.Group))
	}
	if c.Kind == ChannelReliableOrdered {
		w.varint(uint64(c.Seq))
	}
}

func decodeChannel(r *reader) (Channel, error) {
	kindByte, err := r.u8()
	if err != nil {
		return Channel{}, err
	}
	kind := ChannelKind(kindByte)
	c := Channel{Kind: kind}
	if kind.HasGroup() {
		g, err := r.varint()
		if err != nil {
			return Channel{}, err
		}
		c.Group = uint16(g)
	}
	if kind == ChannelReliableOrdered {
		s, err := r.varint()
		if err != nil {
			return Channel{}, err
		}
		c.Seq = uint32(s)
	}
	return c, nil
}
