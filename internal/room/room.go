// Package room implements the authoritative, single-threaded game-object
// graph for one room: the member table, the object table and its
// permission-filtered fan-out, and the full C2S command taxonomy.
//
// A Room is driven entirely from the network server's per-tick loop and
// never takes a lock — unlike the teacher's mutex-protected Room, there
// is exactly one goroutine touching any given Room at a time, so command
// execution, fan-out and attach/detach can all be plain sequential code.
package room

import (
	"errors"

	"relay/internal/codec"
	"relay/internal/model"
	"relay/internal/object"
)

// Outbox is how a Room hands a server-to-client command to one member's
// outbound queue. The network layer supplies an implementation backed by
// that member's reliability.Protocol; the room package itself never
// touches sockets or sessions.
type Outbox interface {
	Send(to model.MemberId, ch codec.Channel, cmd codec.Command)
}

var metaChannel = codec.ReliableUnordered()

// InitialObjectFactory builds the objects a member template owns the
// moment it first attaches to a room (spec.md's supplemented member
// template feature). Returning nil/empty means the template has no
// standing objects.
type InitialObjectFactory func(member model.MemberId, groups model.AccessGroups) []*object.GameObject

type singletonKey struct {
	templateId uint16
	key        string
}

// Room is the per-room authoritative state. Exported fields are
// configuration set once at construction; everything else is accessed
// only through methods.
type Room struct {
	Id model.RoomId

	Permissions  *PermissionTable
	NewMemberObjects InitialObjectFactory
	Tracer       Tracer

	objectOrder []model.GameObjectId
	objects     map[model.GameObjectId]*object.GameObject
	singletons  map[singletonKey]model.GameObjectId

	memberOrder []model.MemberId
	members     map[model.MemberId]*Member

	nextRoomObjectId uint32
}

func New(id model.RoomId) *Room {
	return &Room{
		Id:          id,
		Permissions: NewPermissionTable(),
		Tracer:      NoopTracer{},
		objects:     make(map[model.GameObjectId]*object.GameObject),
		singletons:  make(map[singletonKey]model.GameObjectId),
		members:     make(map[model.MemberId]*Member),
		nextRoomObjectId: 1,
	}
}

// AddMember registers a member's presence without attaching it to the
// room's object graph yet; AttachToRoomCmd does that.
func (r *Room) AddMember(id model.MemberId, groups model.AccessGroups) {
	if _, ok := r.members[id]; ok {
		return
	}
	r.members[id] = newMember(id, groups)
	r.memberOrder = append(r.memberOrder, id)
}

func (r *Room) Member(id model.MemberId) (*Member, bool) {
	m, ok := r.members[id]
	return m, ok
}

// Members returns every member id currently in the room's table, in
// insertion order, for admin/debug enumeration.
func (r *Room) Members() []model.MemberId {
	out := make([]model.MemberId, len(r.memberOrder))
	copy(out, r.memberOrder)
	return out
}

// Process executes one C2S command from member `from`, received on
// channel ch, mutating room state and fanning out the resulting S2C
// commands through out. A returned error is one of the ServerCommandError
// family in errors.go, or an "unsupported command" error for a command
// type Process does not handle — either way non-fatal, logged and dropped
// by the caller.
func (r *Room) Process(from model.MemberId, ch codec.Channel, cmd codec.Command, out Outbox) error {
	member, ok := r.members[from]
	if !ok {
		return ErrMemberNotFound
	}
	r.Tracer.TraceCommand(r.Id, from, ch, cmd)

	switch c := cmd.(type) {
	case codec.CreateCmd:
		return r.handleCreate(from, c)
	case codec.CreatedCmd:
		return r.handleCreated(from, c, out)
	case codec.SetLongCmd:
		return r.handleSetLong(from, member, ch, c, out)
	case codec.SetDoubleCmd:
		return r.handleSetDouble(from, member, ch, c, out)
	case codec.SetStructureCmd:
		return r.handleSetStructure(from, member, ch, c, out)
	case codec.IncrementLongCmd:
		return r.handleIncrementLong(from, member, ch, c, out)
	case codec.IncrementDoubleCmd:
		return r.handleIncrementDouble(from, member, ch, c, out)
	case codec.CompareAndSetLongCmd:
		return r.handleCompareAndSet(from, member, ch, c, out)
	case codec.EventCmd:
		return r.handleEvent(from, member, ch, c, out)
	case codec.TargetEventCmd:
		return r.handleTargetEvent(from, member, ch, c, out)
	case codec.DeleteCmd:
		return r.handleDelete(from, member, c, out)
	case codec.AttachToRoomCmd:
		r.handleAttach(from, member, out)
		return nil
	case codec.DetachFromRoomCmd:
		r.handleDetach(from, member, out)
		return nil
	default:
		return errors.New("room: unsupported command for Process")
	}
}

func (r *Room) findOwned(id model.GameObjectId, from model.MemberId) (*object.GameObject, error) {
	obj, ok := r.objects[id]
	if !ok {
		return nil, ErrObjectNotFound
	}
	if owner, isMember := obj.Id.Owner.Member(); !isMember || owner != from {
		return nil, ErrMemberNotOwner
	}
	return obj, nil
}

func (r *Room) handleCreate(from model.MemberId, c codec.CreateCmd) error {
	if _, exists := r.objects[c.ObjectId]; exists {
		return nil // duplicate Create for an in-flight object: idempotent no-op
	}
	if owner, isMember := c.ObjectId.Owner.Member(); !isMember || owner != from {
		return ErrMemberNotOwner
	}
	obj := object.New(c.ObjectId, c.TemplateId, c.AccessGroups)
	r.insertObject(obj)
	return nil
}

func (r *Room) insertObject(obj *object.GameObject) {
	r.objects[obj.Id] = obj
	r.objectOrder = append(r.objectOrder, obj.Id)
}

func (r *Room) handleCreated(from model.MemberId, c codec.CreatedCmd, out Outbox) error {
	obj, err := r.findOwned(c.ObjectId, from)
	if err != nil {
		return err
	}
	if obj.Created {
		return nil
	}

	// Check the singleton slot before promoting: a duplicate is dropped
	// silently under the id the origin already knows, so it shouldn't be
	// told about a promotion that's about to be undone anyway.
	if c.RoomOwner && c.SingletonKey != nil {
		key := singletonKey{templateId: obj.TemplateId, key: string(c.SingletonKey)}
		if _, dup := r.singletons[key]; dup {
			r.removeObject(obj.Id)
			return nil
		}
	}

	if c.RoomOwner {
		r.promoteToRoomOwned(obj, from, c, out)
	}

	if c.RoomOwner && c.SingletonKey != nil {
		r.singletons[singletonKey{templateId: obj.TemplateId, key: string(c.SingletonKey)}] = obj.Id
		obj.SingletonKey = c.SingletonKey
	}

	obj.Created = true
	r.fanOutNewObject(from, obj, out)
	return nil
}

// promoteToRoomOwned reassigns obj from the client-assigned id it was
// Created under to a fresh room-owned id. fanOutNewObject's broadcast
// always skips the sender, so the origin — which still only knows the old
// id — is told the new one directly here.
func (r *Room) promoteToRoomOwned(obj *object.GameObject, origin model.MemberId, c codec.CreatedCmd, out Outbox) {
	oldId := obj.Id
	newId := model.GameObjectId{Id: r.NextRoomObjectId(), Owner: model.OwnerRoom}
	delete(r.objects, oldId)
	obj.Id = newId
	r.objects[newId] = obj
	for i, id := range r.objectOrder {
		if id == oldId {
			r.objectOrder[i] = newId
			break
		}
	}
	out.Send(origin, metaChannel, codec.CreatedCmd{ObjectId: newId, RoomOwner: true, SingletonKey: c.SingletonKey})
}

// fanOutNewObject sends the full create sequence for obj to every
// currently attached member other than its creator whose access groups
// overlap it.
func (r *Room) fanOutNewObject(sender model.MemberId, obj *object.GameObject, out Outbox) {
	var cmds []codec.Command
	obj.CollectCreateCommands(&cmds)
	r.broadcast(sender, obj.AccessGroups, metaChannel, cmds, out)
}

func (r *Room) broadcast(sender model.MemberId, groups model.AccessGroups, ch codec.Channel, cmds []codec.Command, out Outbox) {
	for _, id := range r.memberOrder {
		if id == sender {
			continue
		}
		m := r.members[id]
		if !m.Attached || !m.AccessGroups.Overlaps(groups) {
			continue
		}
		for _, cmd := range cmds {
			out.Send(id, ch, cmd)
		}
	}
}

func (r *Room) fieldPermission(obj *object.GameObject, member *Member, field model.FieldId) error {
	if owner, isMember := obj.Id.Owner.Member(); isMember && owner == member.Id {
		return nil
	}
	if !obj.AccessGroups.Overlaps(member.AccessGroups) {
		return ErrPermissionDenied
	}
	if r.Permissions.Resolve(obj.TemplateId, field, member.AccessGroups) != PermissionReadWrite {
		return ErrPermissionDenied
	}
	return nil
}

func (r *Room) handleSetLong(from model.MemberId, member *Member, ch codec.Channel, c codec.SetLongCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	obj.SetLong(c.FieldId, c.Value)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{c}, out)
	return nil
}

func (r *Room) handleSetDouble(from model.MemberId, member *Member, ch codec.Channel, c codec.SetDoubleCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	obj.SetDouble(c.FieldId, c.Value)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{c}, out)
	return nil
}

func (r *Room) handleSetStructure(from model.MemberId, member *Member, ch codec.Channel, c codec.SetStructureCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	obj.SetStructure(c.FieldId, c.Value)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{c}, out)
	return nil
}

func (r *Room) handleIncrementLong(from model.MemberId, member *Member, ch codec.Channel, c codec.IncrementLongCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	newValue := obj.IncrementLong(c.FieldId, c.Delta)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{
		codec.SetLongCmd{ObjectId: c.ObjectId, FieldId: c.FieldId, Value: newValue},
	}, out)
	return nil
}

func (r *Room) handleIncrementDouble(from model.MemberId, member *Member, ch codec.Channel, c codec.IncrementDoubleCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	newValue := obj.IncrementDouble(c.FieldId, c.Delta)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{
		codec.SetDoubleCmd{ObjectId: c.ObjectId, FieldId: c.FieldId, Value: newValue},
	}, out)
	return nil
}

// handleCompareAndSet applies the CAS and, on success, records the reset
// value against the calling member so a later disconnect releases the
// slot. A mismatch is a normal outcome, not a ServerCommandError: it's
// reported to the caller as a nil error with no fan-out.
func (r *Room) handleCompareAndSet(from model.MemberId, member *Member, ch codec.Channel, c codec.CompareAndSetLongCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	if !obj.CompareAndSet(c.FieldId, c.Current, c.New, from) {
		return nil
	}
	member.rememberCasReset(c.ObjectId, c.FieldId, c.Reset)
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{
		codec.SetLongCmd{ObjectId: c.ObjectId, FieldId: c.FieldId, Value: c.New},
	}, out)
	return nil
}

func (r *Room) handleEvent(from model.MemberId, member *Member, ch codec.Channel, c codec.EventCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	r.broadcast(from, obj.AccessGroups, ch, []codec.Command{c}, out)
	return nil
}

func (r *Room) handleTargetEvent(from model.MemberId, member *Member, ch codec.Channel, c codec.TargetEventCmd, out Outbox) error {
	obj, ok := r.objects[c.ObjectId]
	if !ok {
		return ErrObjectNotFound
	}
	if err := r.fieldPermission(obj, member, c.FieldId); err != nil {
		return err
	}
	target, ok := r.members[c.TargetMemberId]
	if !ok || !target.Attached {
		return ErrMemberNotFound
	}
	out.Send(c.TargetMemberId, ch, c)
	return nil
}

func (r *Room) handleDelete(from model.MemberId, member *Member, c codec.DeleteCmd, out Outbox) error {
	obj, err := r.findOwned(c.ObjectId, from)
	if err != nil {
		return err
	}
	r.removeObject(obj.Id)
	r.broadcast(from, obj.AccessGroups, metaChannel, []codec.Command{codec.DeleteCmd{ObjectId: obj.Id}}, out)
	return nil
}

func (r *Room) removeObject(id model.GameObjectId) {
	obj, ok := r.objects[id]
	if !ok {
		return
	}
	if obj.SingletonKey != nil {
		delete(r.singletons, singletonKey{templateId: obj.TemplateId, key: string(obj.SingletonKey)})
	}
	delete(r.objects, id)
	for i, oid := range r.objectOrder {
		if oid == id {
			r.objectOrder = append(r.objectOrder[:i], r.objectOrder[i+1:]...)
			break
		}
	}
}

// handleAttach brings a member into the room's visible object graph: it
// instantiates the member's template objects on first attach, sends the
// new member a full snapshot of every visible object, and announces the
// new member's presence to the rest of the room.
func (r *Room) handleAttach(from model.MemberId, member *Member, out Outbox) {
	if member.Attached {
		return
	}
	firstAttach := !member.everAttached
	member.Attached = true
	member.everAttached = true

	if firstAttach && r.NewMemberObjects != nil {
		for _, obj := range r.NewMemberObjects(from, member.AccessGroups) {
			obj.Created = true
			r.insertObject(obj)
			r.fanOutNewObject(from, obj, out)
		}
	}

	for _, id := range r.objectOrder {
		obj := r.objects[id]
		if !obj.Created || !obj.AccessGroups.Overlaps(member.AccessGroups) {
			continue
		}
		var cmds []codec.Command
		obj.CollectCreateCommands(&cmds)
		for _, cmd := range cmds {
			out.Send(from, metaChannel, cmd)
		}
	}

	for _, id := range r.memberOrder {
		if id == from {
			continue
		}
		if peer := r.members[id]; peer.Attached {
			out.Send(id, metaChannel, codec.MemberConnectedCmd{MemberId: from})
		}
	}
}

// handleDetach releases a member's owned objects and CAS slots without
// removing it from the room's member table — unlike disconnect, the
// member stays connected and can re-attach later.
func (r *Room) handleDetach(from model.MemberId, member *Member, out Outbox) {
	if !member.Attached {
		return
	}
	r.releaseMemberObjects(member, out)
	member.Attached = false
}

// Disconnect tears a member down completely: releases owned objects and
// CAS slots, removes it from the member table, and announces its
// departure to the rest of the room.
func (r *Room) Disconnect(id model.MemberId, out Outbox) {
	member, ok := r.members[id]
	if !ok {
		return
	}
	r.releaseMemberObjects(member, out)
	delete(r.members, id)
	for i, mid := range r.memberOrder {
		if mid == id {
			r.memberOrder = append(r.memberOrder[:i], r.memberOrder[i+1:]...)
			break
		}
	}
	for _, pid := range r.memberOrder {
		if peer := r.members[pid]; peer.Attached {
			out.Send(pid, metaChannel, codec.MemberDisconnectedCmd{MemberId: id})
		}
	}
}

func (r *Room) releaseMemberObjects(member *Member, out Outbox) {
	var owned []model.GameObjectId
	for _, id := range r.objectOrder {
		if owner, isMember := id.Owner.Member(); isMember && owner == member.Id {
			owned = append(owned, id)
		}
	}
	for _, id := range owned {
		obj := r.objects[id]
		r.removeObject(id)
		r.broadcast(member.Id, obj.AccessGroups, metaChannel, []codec.Command{codec.DeleteCmd{ObjectId: id}}, out)
	}

	for objId, fields := range member.casReset {
		obj, ok := r.objects[objId]
		if !ok {
			continue
		}
		for field, resetValue := range fields {
			if holder, held := obj.CasOwner(field); !held || holder != member.Id {
				continue
			}
			obj.SetLong(field, resetValue)
			obj.ClearCasOwner(field)
			r.broadcast(member.Id, obj.AccessGroups, metaChannel, []codec.Command{
				codec.SetLongCmd{ObjectId: objId, FieldId: field, Value: resetValue},
			}, out)
		}
	}
	member.casReset = make(map[model.GameObjectId]map[model.FieldId]int64)
}

// AddItem applies the supplemented AddItem feature (SPEC_FULL.md §C.2): a
// room-initiated push of a new, already-created object directly into one
// member's inventory, skipping the Create/Created round trip since the
// room itself is the authority on the object's existence. Unlike the C2S
// taxonomy handled by Process, this is called directly by Go code, never
// by a client frame; the manager has no task that calls it.
func (r *Room) AddItem(target model.MemberId, c codec.AddItemCmd, out Outbox) error {
	member, ok := r.members[target]
	if !ok {
		return ErrMemberNotFound
	}
	obj := object.New(c.ObjectId, c.TemplateId, c.AccessGroups)
	for _, f := range c.Longs {
		obj.SetLong(f.FieldId, f.Value)
	}
	for _, f := range c.Doubles {
		obj.SetDouble(f.FieldId, f.Value)
	}
	for _, f := range c.Structures {
		obj.SetStructure(f.FieldId, f.Value)
	}
	obj.Created = true
	r.insertObject(obj)

	if member.Attached {
		out.Send(target, metaChannel, c)
	}
	return nil
}

// NextRoomObjectId hands out a fresh, room-owned object id. Room-generated
// ids count up from 1; they never collide with client-assigned ids because
// the two are told apart by their Owner, not by numeric range.
func (r *Room) NextRoomObjectId() uint32 {
	id := r.nextRoomObjectId
	r.nextRoomObjectId++
	return id
}
