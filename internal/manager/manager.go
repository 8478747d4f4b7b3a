// Package manager implements the control-plane façade described in
// spec.md §4.6: a single channel of typed management tasks the server's
// tick loop drains once per tick, applied with the same single-threaded
// discipline as room command processing. It never races the tick loop
// because the tick loop is the only reader.
package manager

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"relay/internal/model"
	"relay/internal/room"
)

// replyTimeout bounds how long a submitting caller waits for Drain to
// pick its task up (spec.md §4.6's "1s reply timeout surfaced as a
// channel receive error").
const replyTimeout = time.Second

// ErrChannelRecv is returned to a caller whose task wasn't picked up
// within the reply timeout — the manager channel's consumer (the tick
// loop) may be stalled or the server may be shutting down.
var ErrChannelRecv = errors.New("manager: timed out waiting for task execution")

// TaskError is the ManagementTaskExecutionError family: a task that
// reached the tick loop but failed for a documented reason.
type TaskError struct {
	Op  string
	Err error
}

func (e *TaskError) Error() string { return "manager: " + e.Op + ": " + e.Err.Error() }
func (e *TaskError) Unwrap() error { return e.Err }

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrRoomExists     = errors.New("room already exists")
)

// taskKind tags the union of management operations.
type taskKind int

const (
	taskCreateRoom taskKind = iota
	taskDeleteRoom
	taskCreateMember
	taskDeleteMember
	taskDump
	taskGetRooms
	taskGetRoomsMembers
	taskTimeOffset
)

type task struct {
	kind     taskKind
	roomId   model.RoomId
	memberId model.MemberId
	groups   model.AccessGroups
	offset   time.Duration
	reply    chan result
}

type result struct {
	rooms   []model.RoomId
	members map[model.RoomId][]model.MemberId
	dump    string
	err     error
}

// RoomFactory creates a new, empty Room for a freshly allocated room id —
// supplied by the caller so manager doesn't need to import network's
// session-registration concerns.
type RoomFactory func(id model.RoomId) *room.Room

// MemberRegistrar wires a newly created member into the network layer's
// session table; Manager calls it synchronously from the tick loop so no
// session exists before the reply is sent.
type MemberRegistrar func(roomId model.RoomId, memberId model.MemberId, groups model.AccessGroups) error

// MemberUnregistrar tears a member's session down.
type MemberUnregistrar func(roomId model.RoomId, memberId model.MemberId)

// ClockSetter applies a TimeOffset task to the server's running clock;
// Manager holds no clock of its own so the network layer supplies this the
// same way it supplies MemberRegistrar/MemberUnregistrar.
type ClockSetter func(offset time.Duration)

// Manager is the control-plane façade. Construct with New, then call Drain
// once per tick from the goroutine that owns every Room, the same one that
// calls network.Server.Tick (see cmd/relay/main.go for the wiring).
type Manager struct {
	tasks chan task
	halt  atomic.Bool

	rooms       map[model.RoomId]*room.Room
	nextRoomId  model.RoomId
	newRoom     RoomFactory
	register    MemberRegistrar
	unregister  MemberUnregistrar
	setClock    ClockSetter
}

func New(newRoom RoomFactory, register MemberRegistrar, unregister MemberUnregistrar, setClock ClockSetter) *Manager {
	return &Manager{
		tasks:      make(chan task, 64),
		rooms:      make(map[model.RoomId]*room.Room),
		nextRoomId: 1,
		newRoom:    newRoom,
		register:   register,
		unregister: unregister,
		setClock:   setClock,
	}
}

// Room implements network.RoomRegistry.
func (m *Manager) Room(id model.RoomId) (*room.Room, bool) {
	r, ok := m.rooms[id]
	return r, ok
}

// Halt signals the tick loop to stop calling Drain after the current
// tick; it's a plain atomic flag, not a channel close, because multiple
// callers may request shutdown concurrently.
func (m *Manager) Halt() { m.halt.Store(true) }

func (m *Manager) Halted() bool { return m.halt.Load() }

// Drain applies every task currently queued, called once per tick from
// the same goroutine that owns every Room — this is what keeps room
// mutation single-threaded despite the control plane living on a
// channel.
func (m *Manager) Drain() {
	for {
		select {
		case t := <-m.tasks:
			t.reply <- m.apply(t)
		default:
			return
		}
	}
}

func (m *Manager) apply(t task) result {
	switch t.kind {
	case taskCreateRoom:
		id := m.nextRoomId
		m.nextRoomId++
		m.rooms[id] = m.newRoom(id)
		return result{rooms: []model.RoomId{id}}
	case taskDeleteRoom:
		if _, ok := m.rooms[t.roomId]; !ok {
			return result{err: &TaskError{"DeleteRoom", ErrRoomNotFound}}
		}
		delete(m.rooms, t.roomId)
		return result{}
	case taskCreateMember:
		r, ok := m.rooms[t.roomId]
		if !ok {
			return result{err: &TaskError{"CreateMember", ErrRoomNotFound}}
		}
		r.AddMember(t.memberId, t.groups)
		if err := m.register(t.roomId, t.memberId, t.groups); err != nil {
			return result{err: &TaskError{"CreateMember", err}}
		}
		return result{}
	case taskDeleteMember:
		r, ok := m.rooms[t.roomId]
		if !ok {
			return result{err: &TaskError{"DeleteMember", ErrRoomNotFound}}
		}
		if _, ok := r.Member(t.memberId); !ok {
			return result{err: &TaskError{"DeleteMember", ErrMemberNotFound}}
		}
		m.unregister(t.roomId, t.memberId)
		return result{}
	case taskGetRooms:
		ids := make([]model.RoomId, 0, len(m.rooms))
		for id := range m.rooms {
			ids = append(ids, id)
		}
		return result{rooms: ids}
	case taskGetRoomsMembers:
		out := make(map[model.RoomId][]model.MemberId, len(m.rooms))
		for id, r := range m.rooms {
			out[id] = r.Members()
		}
		return result{members: out}
	case taskDump:
		return result{dump: m.dumpText()}
	case taskTimeOffset:
		if m.setClock != nil {
			m.setClock(t.offset)
		}
		return result{}
	default:
		return result{err: errors.New("manager: unknown task kind")}
	}
}

func (m *Manager) dumpText() string {
	return "rooms=" + strconv.Itoa(len(m.rooms))
}

// submit enqueues a task and blocks for at most replyTimeout waiting for
// Drain (running on the tick-loop goroutine) to execute it.
func (m *Manager) submit(t task) (result, error) {
	t.reply = make(chan result, 1)
	select {
	case m.tasks <- t:
	case <-time.After(replyTimeout):
		return result{}, ErrChannelRecv
	}
	select {
	case r := <-t.reply:
		return r, r.err
	case <-time.After(replyTimeout):
		return result{}, ErrChannelRecv
	}
}

// CreateRoom allocates a new room and returns its id.
func (m *Manager) CreateRoom() (model.RoomId, error) {
	r, err := m.submit(task{kind: taskCreateRoom})
	if err != nil {
		return 0, err
	}
	return r.rooms[0], nil
}

func (m *Manager) DeleteRoom(id model.RoomId) error {
	_, err := m.submit(task{kind: taskDeleteRoom, roomId: id})
	return err
}

func (m *Manager) CreateMember(roomId model.RoomId, memberId model.MemberId, groups model.AccessGroups) error {
	_, err := m.submit(task{kind: taskCreateMember, roomId: roomId, memberId: memberId, groups: groups})
	return err
}

func (m *Manager) DeleteMember(roomId model.RoomId, memberId model.MemberId) error {
	_, err := m.submit(task{kind: taskDeleteMember, roomId: roomId, memberId: memberId})
	return err
}

func (m *Manager) GetRooms() ([]model.RoomId, error) {
	r, err := m.submit(task{kind: taskGetRooms})
	if err != nil {
		return nil, err
	}
	return r.rooms, nil
}

func (m *Manager) GetRoomsMembers() (map[model.RoomId][]model.MemberId, error) {
	r, err := m.submit(task{kind: taskGetRoomsMembers})
	if err != nil {
		return nil, err
	}
	return r.members, nil
}

func (m *Manager) Dump() (string, error) {
	r, err := m.submit(task{kind: taskDump})
	if err != nil {
		return "", err
	}
	return r.dump, nil
}

// TimeOffset applies a test-mode offset to the server's running clock via
// the ClockSetter supplied to New, so a caller can fast-forward timers
// without sleeping real time (spec.md §4.6).
func (m *Manager) TimeOffset(offset time.Duration) error {
	_, err := m.submit(task{kind: taskTimeOffset, offset: offset})
	return err
}
