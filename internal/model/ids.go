// Package model holds the wire-level identifiers shared by the codec, the
// object model and the room engine: room/member/object/field identifiers and
// the access-group bitmask. None of these types carry behavior beyond basic
// validation — they exist so the codec and the room engine agree on layout
// without importing each other.
package model

import "fmt"

// RoomId identifies a room. Assigned by the control plane, not the core.
type RoomId uint64

// MemberId identifies a member within a single room. Zero is reserved and
// never assigned to a real member.
type MemberId uint16

// AccessGroups is a bitmask. Two members "see" each other for a given
// object iff (a & b & object.AccessGroups) != 0.
type AccessGroups uint64

// Overlaps reports whether two access-group masks share at least one bit.
func (g AccessGroups) Overlaps(other AccessGroups) bool {
	return g&other != 0
}

// FieldId identifies a field within a game object's template.
type FieldId uint16

// FieldType is the kind of value stored (or carried, for Event) in a field.
type FieldType uint8

const (
	FieldTypeLong FieldType = iota
	FieldTypeDouble
	FieldTypeStructure
	FieldTypeEvent
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeLong:
		return "long"
	case FieldTypeDouble:
		return "double"
	case FieldTypeStructure:
		return "structure"
	case FieldTypeEvent:
		return "event"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// MaxBufferLen bounds a Buffer's length. The wire format is a single
// length-prefix byte, so 255 is the hard ceiling.
const MaxBufferLen = 255

// BufferBudget is a nominal per-buffer size budget. No code in this module
// reads it; encoders enforce only codec.MaxBufferLen (255).
const BufferBudget = 256

// Buffer is a length-prefixed byte blob, as used by Structure fields and
// singleton keys. The zero value is an empty buffer.
type Buffer []byte

// Clone returns a copy so stored buffers are never aliased with a caller's
// slice (frames are decoded into scratch buffers that get reused).
func (b Buffer) Clone() Buffer {
	if b == nil {
		return nil
	}
	out := make(Buffer, len(b))
	copy(out, b)
	return out
}

// ClientObjectIdOffset marks the top of the numeric range for member-owned
// (client-allocated) object ids. Nothing in this module checks ids against
// it: room-owned and member-owned ids are told apart by their Owner, and
// the room's generator counts up from 1 (see room.Room.NextRoomObjectId).
const ClientObjectIdOffset uint32 = 1 << 31

// Owner is the owning side of a GameObjectId: either the room itself, or a
// specific member. The zero value is a member owner for the reserved
// MemberId 0, not OwnerRoom.
type Owner struct {
	member MemberId
	isRoom bool
}

// OwnerRoom is the room-owned sentinel.
var OwnerRoom = Owner{isRoom: true}

// OwnerMember returns the Owner value for a member-owned object.
func OwnerMember(id MemberId) Owner {
	return Owner{member: id, isRoom: false}
}

// IsRoom reports whether this is the room-owned sentinel.
func (o Owner) IsRoom() bool { return o.isRoom }

// Member returns the owning member id and true, or (0, false) if the
// owner is the room.
func (o Owner) Member() (MemberId, bool) {
	if o.isRoom {
		return 0, false
	}
	return o.member, true
}

func (o Owner) String() string {
	if o.isRoom {
		return "room"
	}
	return fmt.Sprintf("member(%d)", o.member)
}

// GameObjectId is the compound identifier of a GameObject: a per-owner
// counter paired with the owner. Room-owned and member-owned ids share the
// uint32 space and may carry the same number; the Owner keeps them
// distinct.
type GameObjectId struct {
	Id    uint32
	Owner Owner
}

func (id GameObjectId) String() string {
	return fmt.Sprintf("(%d,%s)", id.Id, id.Owner)
}

// IsRoomOwned reports whether this id belongs to the room rather than a
// member.
func (id GameObjectId) IsRoomOwned() bool {
	return id.Owner.IsRoom()
}
