package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	"relay/internal/model"
)

// writer accumulates a frame's cleartext bytes (headers) or plaintext bytes
// (command body) before encryption. It never returns an error on write;
// EncodeFrame checks the body size once at the end against
// FrameBodyCapacity.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *writer) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *writer) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf.Write(b[:]) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }
func (w *writer) bytes(p []byte) { w.buf.Write(p) }

func (w *writer) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf.Write(tmp[:n])
}

// buffer writes a length-prefixed Buffer (len u8 + bytes). Callers must
// ensure len(b) <= MaxBufferLen before calling; Encode callers validate
// this up front so a violation here indicates a programming error, not
// attacker input.
func (w *writer) buffer(b model.Buffer) {
	w.u8(uint8(len(b)))
	w.buf.Write(b)
}

// gameObjectId writes a GameObjectId as: id(u32) · isRoom(u8) · member(u16).
func (w *writer) gameObjectId(id model.GameObjectId) {
	w.u32(id.Id)
	if id.Owner.IsRoom() {
		w.u8(1)
		w.u16(0)
	} else {
		member, _ := id.Owner.Member()
		w.u8(0)
		w.u16(uint16(member))
	}
}

func (w *writer) bytesOut() []byte { return w.buf.Bytes() }

// reader consumes a decode buffer, returning ErrTruncated on any short read
// instead of panicking.
type reader struct {
	r *bytes.Reader
}

func newReader(p []byte) *reader { return &reader{r: bytes.NewReader(p)} }

func (r *reader) remaining() int { return r.r.Len() }

func (r *reader) u8() (uint8, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.r.Len() < n {
		return nil, ErrTruncated
	}
	p := make([]byte, n)
	if _, err := r.r.Read(p); err != nil {
		return nil, ErrTruncated
	}
	return p, nil
}

func (r *reader) u16() (uint16, error) {
	p, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (r *reader) u32() (uint32, error) {
	p, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (r *reader) u64() (uint64, error) {
	p, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *reader) f64() (float64, error) {
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) varint() (uint64, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, ErrTruncated
	}
	return v, nil
}

func (r *reader) buffer() (model.Buffer, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return model.Buffer{}, nil
	}
	p, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return model.Buffer(p), nil
}

func (r *reader) gameObjectId() (model.GameObjectId, error) {
	id, err := r.u32()
	if err != nil {
		return model.GameObjectId{}, err
	}
	isRoom, err := r.u8()
	if err != nil {
		return model.GameObjectId{}, err
	}
	member, err := r.u16()
	if err != nil {
		return model.GameObjectId{}, err
	}
	if isRoom != 0 {
		return model.GameObjectId{Id: id, Owner: model.OwnerRoom}, nil
	}
	return model.GameObjectId{Id: id, Owner: model.OwnerMember(model.MemberId(member))}, nil
}
