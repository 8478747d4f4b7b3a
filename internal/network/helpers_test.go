package network

import (
	"testing"
	"time"

	"relay/internal/model"
	"relay/internal/room"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRegistry struct {
	rooms map[model.RoomId]*room.Room
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rooms: make(map[model.RoomId]*room.Room)}
}

func (r *fakeRegistry) Room(id model.RoomId) (*room.Room, bool) {
	rm, ok := r.rooms[id]
	return rm, ok
}

func newRoomWithMember(t *testing.T, roomId model.RoomId, memberId model.MemberId) *room.Room {
	t.Helper()
	rm := room.New(roomId)
	rm.AddMember(memberId, 1)
	return rm
}
