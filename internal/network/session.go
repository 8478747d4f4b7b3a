package network

import (
	"net"
	"time"

	"golang.org/x/time/rate"

	"relay/internal/codec"
	"relay/internal/model"
	"relay/internal/reliability"
)

// inboundFrameRate and inboundFrameBurst bound how many frames per second
// one session's token bucket accepts before Receive starts returning
// ErrRateLimited — generalizing the teacher's hand-rolled control-message
// rate limit (client.go's controlRateLimit) into a reusable x/time/rate
// policy that also covers the data path.
const (
	inboundFrameRate  rate.Limit = 200
	inboundFrameBurst            = 400
)

// session is one member's live connection: its reliability protocol
// state, the socket address frames last arrived from (rebound only on a
// strictly newer frame, matching Protocol's own frame-id freshness rule),
// and its AEAD cipher.
type session struct {
	roomId   model.RoomId
	memberId model.MemberId
	addr     *net.UDPAddr
	cipher   *codec.Cipher
	protocol *reliability.Protocol

	hasAddrFrame   bool
	lastAddrFrameId uint64
}

func newSession(roomId model.RoomId, memberId model.MemberId, addr *net.UDPAddr, cipher *codec.Cipher, now time.Time, disconnectTimeout time.Duration) *session {
	return &session{
		roomId:   roomId,
		memberId: memberId,
		addr:     addr,
		cipher:   cipher,
		protocol: reliability.NewProtocol(memberId, now, disconnectTimeout, inboundFrameRate, inboundFrameBurst),
	}
}

type sessionKey struct {
	roomId   model.RoomId
	memberId model.MemberId
}

// sessionTable indexes sessions by (room, member) for frame dispatch. It
// has no index by socket address.
type sessionTable struct {
	byKey map[sessionKey]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byKey: make(map[sessionKey]*session)}
}

func (t *sessionTable) get(roomId model.RoomId, memberId model.MemberId) (*session, bool) {
	s, ok := t.byKey[sessionKey{roomId, memberId}]
	return s, ok
}

func (t *sessionTable) put(s *session) {
	t.byKey[sessionKey{s.roomId, s.memberId}] = s
}

func (t *sessionTable) remove(roomId model.RoomId, memberId model.MemberId) {
	delete(t.byKey, sessionKey{roomId, memberId})
}

// rebind updates a session's socket address only when frameId is
// strictly newer than every previously seen frame — a stale or
// out-of-order (or spoofed) datagram can never hijack a session's
// address.
func (s *session) rebind(addr *net.UDPAddr, frameId uint64) {
	if s.hasAddrFrame && frameId <= s.lastAddrFrameId {
		return
	}
	s.hasAddrFrame = true
	s.lastAddrFrameId = frameId
	s.addr = addr
}
