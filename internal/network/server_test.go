package network

import (
	"net"
	"testing"
	"time"

	"relay/internal/model"
)

func TestSessionTablePutGetRemove(t *testing.T) {
	tbl := newSessionTable()
	s := newSession(1, 2, nil, nil, time.Now(), 30*time.Second)
	tbl.put(s)

	got, ok := tbl.get(1, 2)
	if !ok || got != s {
		t.Fatalf("get(1,2) = (%v,%v), want (%v,true)", got, ok, s)
	}

	tbl.remove(1, 2)
	if _, ok := tbl.get(1, 2); ok {
		t.Fatal("expected session removed")
	}
}

func TestSessionRebindOnlyOnStrictlyNewerFrame(t *testing.T) {
	s := newSession(1, 2, nil, nil, time.Now(), 30*time.Second)
	addrA := &net.UDPAddr{Port: 1}
	addrB := &net.UDPAddr{Port: 2}

	s.rebind(addrA, 5)
	if s.addr != addrA {
		t.Fatalf("addr = %v, want %v", s.addr, addrA)
	}

	s.rebind(addrB, 3) // stale frame id, must not rebind
	if s.addr != addrA {
		t.Fatalf("addr after stale rebind = %v, want unchanged %v", s.addr, addrA)
	}

	s.rebind(addrB, 6)
	if s.addr != addrB {
		t.Fatalf("addr = %v, want %v", s.addr, addrB)
	}
}

func TestCheckDisconnectSweepsStalledSession(t *testing.T) {
	reg := newFakeRegistry()
	reg.rooms[model.RoomId(1)] = newRoomWithMember(t, 1, 2)

	srv := &Server{
		rooms:             reg,
		sessions:          newSessionTable(),
		disconnectTimeout: 30 * time.Second,
		clock:             &fakeClock{now: time.Now()},
	}
	s := newSession(1, 2, nil, nil, srv.clock.Now(), srv.disconnectTimeout)
	srv.sessions.put(s)

	fc := srv.clock.(*fakeClock)
	srv.sweepDisconnected(fc.now)
	if _, ok := srv.sessions.get(1, 2); !ok {
		t.Fatal("session should not be swept before timeout")
	}

	fc.now = fc.now.Add(31 * time.Second)
	srv.sweepDisconnected(fc.now)
	if _, ok := srv.sessions.get(1, 2); ok {
		t.Fatal("expected session swept after disconnect timeout")
	}
}
