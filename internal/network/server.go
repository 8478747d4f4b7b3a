// Package network hosts the UDP server loop: a non-blocking socket, the
// session table, and the per-tick pipeline that decodes inbound frames,
// drives each session's reliability.Protocol, feeds ready commands into
// the right room.Room, and flushes outbound frames back out. It never
// holds a room lock because there isn't one — each Room and each
// Protocol belongs to exactly this one goroutine.
package network

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"relay/internal/codec"
	"relay/internal/model"
	"relay/internal/room"
)

// receiveBufferBytes/sendBufferBytes size the kernel socket buffers
// generously enough to absorb a burst of datagrams between ticks without
// the kernel silently dropping them.
const (
	receiveBufferBytes = 4 << 20
	sendBufferBytes    = 4 << 20
	maxDatagramBytes   = 2048
)

// ErrUnknownSession is returned when a frame's MemberAndRoomId header
// doesn't match any live session; the caller logs and drops the
// datagram rather than treating it as fatal.
var ErrUnknownSession = errors.New("network: unknown (room, member) session")

// RoomRegistry is how the server looks up the Room a frame belongs to.
// The manager package owns room lifecycle; the network server only reads.
type RoomRegistry interface {
	Room(id model.RoomId) (*room.Room, bool)
}

// Server owns the UDP socket and drives the receive/process/send tick.
type Server struct {
	conn     *net.UDPConn
	logger   *slog.Logger
	rooms    RoomRegistry
	sessions *sessionTable

	disconnectTimeout time.Duration
	clock             Clock
}

// Clock abstracts wall-clock time so tests (and the admin-controlled
// TimeOffset management task) can advance the server's notion of "now"
// independently of the real clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Listen opens a non-blocking UDP socket bound to addr and tunes its
// kernel buffers via golang.org/x/sys/unix, generalizing the socket
// tuning the teacher applies at the TLS/QUIC listener layer to a raw UDP
// socket instead.
func Listen(addr string, logger *slog.Logger, rooms RoomRegistry, disconnectTimeout time.Duration) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	if raw, err := conn.SyscallConn(); err == nil {
		_ = raw.Control(func(fd uintptr) {
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferBytes)
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendBufferBytes)
		})
	}

	return &Server{
		conn:              conn,
		logger:            logger,
		rooms:             rooms,
		sessions:          newSessionTable(),
		disconnectTimeout: disconnectTimeout,
		clock:             realClock{},
	}, nil
}

func (s *Server) Close() error { return s.conn.Close() }

// SetClock swaps the server's time source, used to install
// clock.Clock (an offsettable clock backing the TimeOffset management
// task) in place of the real wall clock.
func (s *Server) SetClock(c Clock) { s.clock = c }

// RegisterSession installs a session for (roomId, memberId) using cipher
// for its AEAD key. Called by the manager when a member is created.
func (s *Server) RegisterSession(roomId model.RoomId, memberId model.MemberId, cipher *codec.Cipher) {
	s.sessions.put(newSession(roomId, memberId, nil, cipher, s.clock.Now(), s.disconnectTimeout))
}

func (s *Server) RemoveSession(roomId model.RoomId, memberId model.MemberId) {
	s.sessions.remove(roomId, memberId)
}

// Outbox returns a room.Outbox that delivers to this server's live
// sessions for roomId, for callers outside the tick loop (the manager's
// DeleteMember wiring in cmd/relay/main.go) that need to run room-side
// teardown such as Room.Disconnect.
func (s *Server) Outbox(roomId model.RoomId) room.Outbox {
	return roomOutbox{server: s, roomId: roomId}
}

// Tick runs exactly one receive/send/sweep pass. There is no separate
// room step: received commands are applied to their room as each frame
// is handled, and management tasks are applied by manager.Manager.Drain,
// which the caller runs before Tick. The caller (cmd/relay/main.go) loops
// this at a fixed rate; tests drive the steps directly with a fake Clock
// for determinism.
func (s *Server) Tick() {
	now := s.clock.Now()
	s.receiveAvailable(now)
	s.sendOutgoing(now)
	s.sweepDisconnected(now)
}

func (s *Server) receiveAvailable(now time.Time) {
	buf := make([]byte, maxDatagramBytes)
	for {
		// The deadline comes from the wall clock, not s.clock (which may be
		// offset or fake): a deadline already in the past fails every read,
		// even with datagrams queued.
		_ = s.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			return
		}
		s.handleDatagram(buf[:n], addr, now)
	}
}

func (s *Server) handleDatagram(data []byte, addr *net.UDPAddr, now time.Time) {
	frame, sess, err := s.decodeFor(data)
	if err != nil {
		s.logger.Debug("drop: frame decode failed", "err", err)
		return
	}

	sess.rebind(addr, frame.FrameId)

	delivered, err := sess.protocol.Receive(frame, now)
	if err != nil {
		s.logger.Debug("drop: protocol reject", "room", sess.roomId, "member", sess.memberId, "err", err)
		return
	}

	rm, ok := s.rooms.Room(sess.roomId)
	if !ok {
		return
	}
	out := roomOutbox{server: s, roomId: sess.roomId}
	for _, env := range delivered {
		if err := rm.Process(sess.memberId, env.Channel, env.Command, out); err != nil {
			s.logger.Debug("drop: command rejected", "room", sess.roomId, "member", sess.memberId, "err", err)
		}
	}
}

func (s *Server) decodeFor(data []byte) (*codec.Frame, *session, error) {
	var found *session
	frame, err := codec.DecodeFrame(data, func(headers []codec.Header) (*codec.Cipher, error) {
		mr, ok := codec.MemberAndRoomId(headers)
		if !ok {
			return nil, ErrUnknownSession
		}
		sess, ok := s.sessions.get(mr.RoomId, mr.MemberId)
		if !ok {
			return nil, ErrUnknownSession
		}
		found = sess
		return sess.cipher, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return frame, found, nil
}

func (s *Server) sendOutgoing(now time.Time) {
	for _, sess := range s.sessions.byKey {
		if sess.addr == nil {
			continue
		}
		f, ok := sess.protocol.BuildOutgoingFrame(now, sess.roomId)
		if !ok {
			continue
		}
		data, err := codec.EncodeFrame(f, sess.cipher)
		if err != nil {
			s.logger.Warn("encode failed", "room", sess.roomId, "member", sess.memberId, "err", err)
			continue
		}
		if _, err := s.conn.WriteToUDP(data, sess.addr); err != nil {
			s.logger.Debug("send failed", "room", sess.roomId, "member", sess.memberId, "err", err)
		}
	}
}

// maxDisconnectSweepPerTick bounds how many stalled/timed-out sessions get
// torn down in a single tick, so one slow tick can never block the loop
// on an unbounded batch.
const maxDisconnectSweepPerTick = 1000

func (s *Server) sweepDisconnected(now time.Time) {
	swept := 0
	for key, sess := range s.sessions.byKey {
		if swept >= maxDisconnectSweepPerTick {
			return
		}
		if !sess.protocol.CheckTimeout(now) {
			continue
		}
		if rm, ok := s.rooms.Room(sess.roomId); ok {
			rm.Disconnect(sess.memberId, roomOutbox{server: s, roomId: sess.roomId})
		}
		delete(s.sessions.byKey, key)
		swept++
	}
}

// roomOutbox adapts Server's per-session protocols to room.Outbox.
type roomOutbox struct {
	server *Server
	roomId model.RoomId
}

func (o roomOutbox) Send(to model.MemberId, ch codec.Channel, cmd codec.Command) {
	sess, ok := o.server.sessions.get(o.roomId, to)
	if !ok {
		return
	}
	sess.protocol.Enqueue(ch, cmd)
}
