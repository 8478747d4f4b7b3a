package codec

import (
	"fmt"

	"relay/internal/model"
)

// CommandTag is the wire tag identifying a command's shape. The same tag
// space is shared by C2S and S2C traffic — which structs are legal on a
// given stream is a room-engine concern (§4.4.1 of the spec), not a codec
// one, matching the spec's note that a single tagged union with one
// dispatch point is clearer here than direction-specific trait objects.
type CommandTag uint8

const (
	TagCreate CommandTag = iota
	TagCreated
	TagSetLong
	TagSetDouble
	TagSetStructure
	TagIncrementLong
	TagIncrementDouble
	TagCompareAndSetLong
	TagEvent
	TagTargetEvent
	TagDelete
	TagAttachToRoom
	TagDetachFromRoom
	TagDeleteField
	TagMemberConnected
	TagMemberDisconnected
	TagAddItem
)

// Command is the tagged union of every C2S/S2C command body. Concrete
// types implement Tag() and are encoded/decoded by encodeCommand /
// decodeCommand below.
type Command interface {
	Tag() CommandTag
}

// --- Create / Created ---

// CreateCmd reserves a member-owned object; it is not yet visible to peers
// until the matching CreatedCmd arrives.
type CreateCmd struct {
	ObjectId     model.GameObjectId
	TemplateId   uint16
	AccessGroups model.AccessGroups
}

func (CreateCmd) Tag() CommandTag { return TagCreate }

// CreatedCmd finalizes an object created by Create. RoomOwner requests
// promotion to a room-owned id; SingletonKey (only meaningful with
// RoomOwner) deduplicates against existing room objects.
type CreatedCmd struct {
	ObjectId     model.GameObjectId
	RoomOwner    bool
	SingletonKey model.Buffer // nil means absent
}

func (CreatedCmd) Tag() CommandTag { return TagCreated }

// --- Field mutation ---

type SetLongCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Value    int64
}

func (SetLongCmd) Tag() CommandTag { return TagSetLong }

type SetDoubleCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Value    float64
}

func (SetDoubleCmd) Tag() CommandTag { return TagSetDouble }

type SetStructureCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Value    model.Buffer
}

func (SetStructureCmd) Tag() CommandTag { return TagSetStructure }

type IncrementLongCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Delta    int64
}

func (IncrementLongCmd) Tag() CommandTag { return TagIncrementLong }

type IncrementDoubleCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Delta    float64
}

func (IncrementDoubleCmd) Tag() CommandTag { return TagIncrementDouble }

// CompareAndSetLongCmd is an atomic test-and-set on a long field. On
// success the room records Reset as the value to restore if the sender
// disconnects while still holding the slot.
type CompareAndSetLongCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Current  int64
	New      int64
	Reset    int64
}

func (CompareAndSetLongCmd) Tag() CommandTag { return TagCompareAndSetLong }

// --- Events ---

type EventCmd struct {
	ObjectId model.GameObjectId
	FieldId  model.FieldId
	Payload  model.Buffer
}

func (EventCmd) Tag() CommandTag { return TagEvent }

// TargetEventCmd unicasts an event to a single member, subject to the same
// permission filter as EventCmd (spec.md's open question is resolved that
// way — see DESIGN.md).
type TargetEventCmd struct {
	TargetMemberId model.MemberId
	ObjectId       model.GameObjectId
	FieldId        model.FieldId
	Payload        model.Buffer
}

func (TargetEventCmd) Tag() CommandTag { return TagTargetEvent }

// --- Lifecycle ---

type DeleteCmd struct {
	ObjectId model.GameObjectId
}

func (DeleteCmd) Tag() CommandTag { return TagDelete }

// DeleteFieldCmd (S2C only) tells a peer a field has reverted to absent,
// as opposed to SetX which carries an explicit replacement value.
type DeleteFieldCmd struct {
	ObjectId  model.GameObjectId
	FieldId   model.FieldId
	FieldType model.FieldType
}

func (DeleteFieldCmd) Tag() CommandTag { return TagDeleteField }

type AttachToRoomCmd struct{}

func (AttachToRoomCmd) Tag() CommandTag { return TagAttachToRoom }

type DetachFromRoomCmd struct{}

func (DetachFromRoomCmd) Tag() CommandTag { return TagDetachFromRoom }

// --- Member presence (S2C only) ---

type MemberConnectedCmd struct {
	MemberId model.MemberId
}

func (MemberConnectedCmd) Tag() CommandTag { return TagMemberConnected }

type MemberDisconnectedCmd struct {
	MemberId model.MemberId
}

func (MemberDisconnectedCmd) Tag() CommandTag { return TagMemberDisconnected }

// --- AddItem (S2C only) ---

// FieldLong/FieldDouble/FieldStructure are (field id, value) pairs used to
// snapshot an object's non-default fields inline in an AddItemCmd.
type FieldLong struct {
	FieldId model.FieldId
	Value   int64
}

type FieldDouble struct {
	FieldId model.FieldId
	Value   float64
}

type FieldStructure struct {
	FieldId model.FieldId
	Value   model.Buffer
}

// AddItemCmd pushes a fully-formed object into one member's view in a
// single command, without the Create/SetX.../Created round trip. See
// SPEC_FULL.md §C.2.
type AddItemCmd struct {
	ObjectId     model.GameObjectId
	TemplateId   uint16
	AccessGroups model.AccessGroups
	Longs        []FieldLong
	Doubles      []FieldDouble
	Structures   []FieldStructure
}

func (AddItemCmd) Tag() CommandTag { return TagAddItem }

// encodeCommand writes tag + body for a single command.
func encodeCommand(w *writer, cmd Command) error {
	w.u8(uint8(cmd.Tag()))
	switch c := cmd.(type) {
	case CreateCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(c.TemplateId)
		w.u64(uint64(c.AccessGroups))
	case CreatedCmd:
		w.gameObjectId(c.ObjectId)
		if c.RoomOwner {
			w.u8(1)
		} else {
			w.u8(0)
		}
		if c.SingletonKey != nil {
			w.u8(1)
			if err := checkBufferLen(len(c.SingletonKey)); err != nil {
				return err
			}
			w.buffer(c.SingletonKey)
		} else {
			w.u8(0)
		}
	case SetLongCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.i64(c.Value)
	case SetDoubleCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.f64(c.Value)
	case SetStructureCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		if err := checkBufferLen(len(c.Value)); err != nil {
			return err
		}
		w.buffer(c.Value)
	case IncrementLongCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.i64(c.Delta)
	case IncrementDoubleCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.f64(c.Delta)
	case CompareAndSetLongCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.i64(c.Current)
		w.i64(c.New)
		w.i64(c.Reset)
	case EventCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		if err := checkBufferLen(len(c.Payload)); err != nil {
			return err
		}
		w.buffer(c.Payload)
	case TargetEventCmd:
		w.u16(uint16(c.TargetMemberId))
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		if err := checkBufferLen(len(c.Payload)); err != nil {
			return err
		}
		w.buffer(c.Payload)
	case DeleteCmd:
		w.gameObjectId(c.ObjectId)
	case DeleteFieldCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(uint16(c.FieldId))
		w.u8(uint8(c.FieldType))
	case AttachToRoomCmd:
	case DetachFromRoomCmd:
	case MemberConnectedCmd:
		w.u16(uint16(c.MemberId))
	case MemberDisconnectedCmd:
		w.u16(uint16(c.MemberId))
	case AddItemCmd:
		w.gameObjectId(c.ObjectId)
		w.u16(c.TemplateId)
		w.u64(uint64(c.AccessGroups))
		w.varint(uint64(len(c.Longs)))
		for _, f := range c.Longs {
			w.u16(uint16(f.FieldId))
			w.i64(f.Value)
		}
		w.varint(uint64(len(c.Doubles)))
		for _, f := range c.Doubles {
			w.u16(uint16(f.FieldId))
			w.f64(f.Value)
		}
		w.varint(uint64(len(c.Structures)))
		for _, f := range c.Structures {
			w.u16(uint16(f.FieldId))
			if err := checkBufferLen(len(f.Value)); err != nil {
				return err
			}
			w.buffer(f.Value)
		}
	default:
		return fmt.Errorf("codec: encode: %w: %T", ErrUnknownCommand, cmd)
	}
	return nil
}

func checkBufferLen(n int) error {
	if n > MaxBufferLen {
		return ErrBufferTooLarge
	}
	return nil
}

func decodeCommand(r *reader) (Command, error) {
	tagByte, err := r.u8()
	if err != nil {
		return nil, err
	}
	tag := CommandTag(tagByte)
	switch tag {
	case TagCreate:
		id, err := r.gameObjectId()
		if err != nil {
			return nil, err
		}
		tmpl, err := r.u16()
		if err != nil {
			return nil, err
		}
		groups, err := r.u64()
		if err != nil {
			return nil, err
		}
		return CreateCmd{ObjectId: id, TemplateId: tmpl, AccessGroups: model.AccessGroups(groups)}, nil
	case TagCreated:
		id, err := r.gameObjectId()
		if err != nil {
			return nil, err
		}
		roomOwnerByte, err := r.u8()
		if err != nil {
			return nil, err
		}
		hasKey, err := r.u8()
		if err != nil {
			return nil, err
		}
		var key model.Buffer
		if hasKey != 0 {
			key, err = r.buffer()
			if err != nil {
				return nil, err
			}
		}
		return CreatedCmd{ObjectId: id, RoomOwner: roomOwnerByte != 0, SingletonKey: key}, nil
	case TagSetLong:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		v, err := r.i64()
		if err != nil {
			return nil, err
		}
		return SetLongCmd{ObjectId: id, FieldId: fid, Value: v}, nil
	case TagSetDouble:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		v, err := r.f64()
		if err != nil {
			return nil, err
		}
		return SetDoubleCmd{ObjectId: id, FieldId: fid, Value: v}, nil
	case TagSetStructure:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		v, err := r.buffer()
		if err != nil {
			return nil, err
		}
		return SetStructureCmd{ObjectId: id, FieldId: fid, Value: v}, nil
	case TagIncrementLong:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		v, err := r.i64()
		if err != nil {
			return nil, err
		}
		return IncrementLongCmd{ObjectId: id, FieldId: fid, Delta: v}, nil
	case TagIncrementDouble:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		v, err := r.f64()
		if err != nil {
			return nil, err
		}
		return IncrementDoubleCmd{ObjectId: id, FieldId: fid, Delta: v}, nil
	case TagCompareAndSetLong:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		cur, err := r.i64()
		if err != nil {
			return nil, err
		}
		nw, err := r.i64()
		if err != nil {
			return nil, err
		}
		reset, err := r.i64()
		if err != nil {
			return nil, err
		}
		return CompareAndSetLongCmd{ObjectId: id, FieldId: fid, Current: cur, New: nw, Reset: reset}, nil
	case TagEvent:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		payload, err := r.buffer()
		if err != nil {
			return nil, err
		}
		return EventCmd{ObjectId: id, FieldId: fid, Payload: payload}, nil
	case TagTargetEvent:
		target, err := r.u16()
		if err != nil {
			return nil, err
		}
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		payload, err := r.buffer()
		if err != nil {
			return nil, err
		}
		return TargetEventCmd{TargetMemberId: model.MemberId(target), ObjectId: id, FieldId: fid, Payload: payload}, nil
	case TagDelete:
		id, err := r.gameObjectId()
		if err != nil {
			return nil, err
		}
		return DeleteCmd{ObjectId: id}, nil
	case TagDeleteField:
		id, fid, err := decodeObjField(r)
		if err != nil {
			return nil, err
		}
		ft, err := r.u8()
		if err != nil {
			return nil, err
		}
		return DeleteFieldCmd{ObjectId: id, FieldId: fid, FieldType: model.FieldType(ft)}, nil
	case TagAttachToRoom:
		return AttachToRoomCmd{}, nil
	case TagDetachFromRoom:
		return DetachFromRoomCmd{}, nil
	case TagMemberConnected:
		id, err := r.u16()
		if err != nil {
			return nil, err
		}
		return MemberConnectedCmd{MemberId: model.MemberId(id)}, nil
	case TagMemberDisconnected:
		id, err := r.u16()
		if err != nil {
			return nil, err
		}
		return MemberDisconnectedCmd{MemberId: model.MemberId(id)}, nil
	case TagAddItem:
		id, err := r.gameObjectId()
		if err != nil {
			return nil, err
		}
		tmplId, err := r.u16()
		if err != nil {
			return nil, err
		}
		groups, err := r.u64()
		if err != nil {
			return nil, err
		}
		nLongs, err := r.varint()
		if err != nil {
			return nil, err
		}
		longs := make([]FieldLong, 0, nLongs)
		for i := uint64(0); i < nLongs; i++ {
			fid, err := r.u16()
			if err != nil {
				return nil, err
			}
			v, err := r.i64()
			if err != nil {
				return nil, err
			}
			longs = append(longs, FieldLong{FieldId: model.FieldId(fid), Value: v})
		}
		nDoubles, err := r.varint()
		if err != nil {
			return nil, err
		}
		doubles := make([]FieldDouble, 0, nDoubles)
		for i := uint64(0); i < nDoubles; i++ {
			fid, err := r.u16()
			if err != nil {
				return nil, err
			}
			v, err := r.f64()
			if err != nil {
				return nil, err
			}
			doubles = append(doubles, FieldDouble{FieldId: model.FieldId(fid), Value: v})
		}
		nStructs, err := r.varint()
		if err != nil {
			return nil, err
		}
		structs := make([]FieldStructure, 0, nStructs)
		for i := uint64(0); i < nStructs; i++ {
			fid, err := r.u16()
			if err != nil {
				return nil, err
			}
			v, err := r.buffer()
			if err != nil {
				return nil, err
			}
			structs = append(structs, FieldStructure{FieldId: model.FieldId(fid), Value: v})
		}
		return AddItemCmd{ObjectId: id, TemplateId: tmplId, AccessGroups: model.AccessGroups(groups), Longs: longs, Doubles: doubles, Structures: structs}, nil
	default:
		return nil, ErrUnknownCommand
	}
}

func decodeObjField(r *reader) (model.GameObjectId, model.FieldId, error) {
	id, err := r.gameObjectId()
	if err != nil {
		return model.GameObjectId{}, 0, err
	}
	fid, err := r.u16()
	if err != nil {
		return model.GameObjectId{}, 0, err
	}
	return id, model.FieldId(fid), nil
}
