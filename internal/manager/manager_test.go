package manager

import (
	"testing"
	"time"

	"relay/internal/model"
	"relay/internal/room"
)

func newTestManager() *Manager {
	return newTestManagerWithClock(func(time.Duration) {})
}

func newTestManagerWithClock(setClock ClockSetter) *Manager {
	return New(
		func(id model.RoomId) *room.Room { return room.New(id) },
		func(model.RoomId, model.MemberId, model.AccessGroups) error { return nil },
		func(model.RoomId, model.MemberId) {},
		setClock,
	)
}

func TestApplyCreateRoomThenCreateMember(t *testing.T) {
	m := newTestManager()
	r := m.apply(task{kind: taskCreateRoom})
	if r.err != nil {
		t.Fatalf("CreateRoom: %v", r.err)
	}
	roomId := r.rooms[0]

	r = m.apply(task{kind: taskCreateMember, roomId: roomId, memberId: 1, groups: 0b1})
	if r.err != nil {
		t.Fatalf("CreateMember: %v", r.err)
	}

	rm, ok := m.Room(roomId)
	if !ok {
		t.Fatal("expected room to exist")
	}
	if _, ok := rm.Member(1); !ok {
		t.Fatal("expected member 1 registered in room")
	}
}

func TestApplyCreateMemberUnknownRoomFails(t *testing.T) {
	m := newTestManager()
	r := m.apply(task{kind: taskCreateMember, roomId: 999, memberId: 1})
	if r.err == nil {
		t.Fatal("expected error for unknown room")
	}
}

func TestApplyDeleteRoomRemovesIt(t *testing.T) {
	m := newTestManager()
	r := m.apply(task{kind: taskCreateRoom})
	roomId := r.rooms[0]

	r = m.apply(task{kind: taskDeleteRoom, roomId: roomId})
	if r.err != nil {
		t.Fatalf("DeleteRoom: %v", r.err)
	}
	if _, ok := m.Room(roomId); ok {
		t.Fatal("expected room removed")
	}
}

func TestApplyGetRoomsReflectsCreated(t *testing.T) {
	m := newTestManager()
	m.apply(task{kind: taskCreateRoom})
	m.apply(task{kind: taskCreateRoom})

	r := m.apply(task{kind: taskGetRooms})
	if len(r.rooms) != 2 {
		t.Fatalf("GetRooms() = %v, want 2 rooms", r.rooms)
	}
}

func TestApplyTimeOffsetCallsClockSetter(t *testing.T) {
	var got time.Duration
	m := newTestManagerWithClock(func(d time.Duration) { got = d })

	r := m.apply(task{kind: taskTimeOffset, offset: 5 * time.Second})
	if r.err != nil {
		t.Fatalf("TimeOffset: %v", r.err)
	}
	if got != 5*time.Second {
		t.Fatalf("clock setter received %v, want 5s", got)
	}
}

// TestSubmitRoundTripsThroughDrain exercises the real channel-based public
// API end to end, with a background goroutine standing in for the
// server's tick loop calling Drain.
func TestSubmitRoundTripsThroughDrain(t *testing.T) {
	m := newTestManager()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Drain()
			}
		}
	}()

	roomId, err := m.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.CreateMember(roomId, 1, 0b1); err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	if _, ok := m.Room(roomId); !ok {
		t.Fatal("expected room to exist")
	}
}
