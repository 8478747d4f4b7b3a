// Package object implements the GameObject data model: typed field maps,
// compare-and-set slots, and the "reconstruction sequence" used to bring a
// newly-attached member up to date. Every mutation here is a pure, single
// goroutine operation called only from the room engine — object.go never
// takes a lock, matching the room engine's single-threaded ownership model
// (spec.md §5).
package object

import (
	"relay/internal/codec"
	"relay/internal/model"
)

// GameObject is a typed field container shared among members who overlap
// in access group.
type GameObject struct {
	Id           model.GameObjectId
	TemplateId   uint16
	AccessGroups model.AccessGroups

	// Created is false until the owning member's Created command finalizes
	// the object; until then it is visible only to its owner.
	Created bool

	// SingletonKey is set only for room-owned objects created with a
	// dedup key (Created{room_owner:true, singleton_key}).
	SingletonKey model.Buffer

	longs      map[model.FieldId]int64
	doubles    map[model.FieldId]float64
	structures map[model.FieldId]model.Buffer

	// casOwners tracks, per field, which member currently holds a
	// compare-and-set slot. Entries are removed once a cleaner fires.
	casOwners map[model.FieldId]model.MemberId
}

// New constructs an uncreated GameObject with empty field maps.
func New(id model.GameObjectId, templateId uint16, groups model.AccessGroups) *GameObject {
	return &GameObject{
		Id:           id,
		TemplateId:   templateId,
		AccessGroups: groups,
		longs:        make(map[model.FieldId]int64),
		doubles:      make(map[model.FieldId]float64),
		structures:   make(map[model.FieldId]model.Buffer),
		casOwners:    make(map[model.FieldId]model.MemberId),
	}
}

// Long returns a long field's value, or 0 if absent (IncrementLong and
// CompareAndSetLong both treat an absent field as zero per spec.md §4.4.2).
func (o *GameObject) Long(f model.FieldId) int64 { return o.longs[f] }

// SetLong stores a long field's value.
func (o *GameObject) SetLong(f model.FieldId, v int64) { o.longs[f] = v }

// IncrementLong adds delta to a (possibly absent) long field and returns
// the new value.
func (o *GameObject) IncrementLong(f model.FieldId, delta int64) int64 {
	v := o.longs[f] + delta
	o.longs[f] = v
	return v
}

// Double returns a double field's value, or 0 if absent.
func (o *GameObject) Double(f model.FieldId) float64 { return o.doubles[f] }

func (o *GameObject) SetDouble(f model.FieldId, v float64) { o.doubles[f] = v }

func (o *GameObject) IncrementDouble(f model.FieldId, delta float64) float64 {
	v := o.doubles[f] + delta
	o.doubles[f] = v
	return v
}

// Structure returns a structure field's value, or (nil, false) if absent.
func (o *GameObject) Structure(f model.FieldId) (model.Buffer, bool) {
	v, ok := o.structures[f]
	return v, ok
}

func (o *GameObject) SetStructure(f model.FieldId, v model.Buffer) { o.structures[f] = v.Clone() }

// CompareAndSet atomically tests a long field against current and, on
// match, sets it to newValue and records owner as the holder of the slot
// (so a later disconnect can release it to resetValue). An absent field
// compares equal to zero, matching IncrementLong's treatment of absence.
func (o *GameObject) CompareAndSet(f model.FieldId, current, newValue int64, owner model.MemberId) bool {
	if o.longs[f] != current {
		return false
	}
	o.longs[f] = newValue
	o.casOwners[f] = owner
	return true
}

// CasOwner returns the member currently holding field f's CAS slot, or
// (0, false) if the field was never the subject of a successful CAS.
func (o *GameObject) CasOwner(f model.FieldId) (model.MemberId, bool) {
	owner, ok := o.casOwners[f]
	return owner, ok
}

// ClearCasOwner removes the recorded CAS holder for field f, typically
// after applying its reset value on disconnect.
func (o *GameObject) ClearCasOwner(f model.FieldId) {
	delete(o.casOwners, f)
}

// CollectCreateCommands appends the minimal S2C sequence that reconstructs
// this object on a new peer: one Create, one SetX per non-default field,
// and (only if Created) one Created. Iteration order over the field maps
// is intentionally unspecified — the room engine is responsible for the
// object-insertion-order guarantee across objects, not field order within
// one object.
func (o *GameObject) CollectCreateCommands(out *[]codec.Command) {
	*out = append(*out, codec.CreateCmd{
		ObjectId:     o.Id,
		TemplateId:   o.TemplateId,
		AccessGroups: o.AccessGroups,
	})
	for f, v := range o.longs {
		*out = append(*out, codec.SetLongCmd{ObjectId: o.Id, FieldId: f, Value: v})
	}
	for f, v := range o.doubles {
		*out = append(*out, codec.SetDoubleCmd{ObjectId: o.Id, FieldId: f, Value: v})
	}
	for f, v := range o.structures {
		*out = append(*out, codec.SetStructureCmd{ObjectId: o.Id, FieldId: f, Value: v})
	}
	if o.Created {
		*out = append(*out, codec.CreatedCmd{ObjectId: o.Id, RoomOwner: o.Id.IsRoomOwned()})
	}
}
