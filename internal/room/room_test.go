package room

import (
	"testing"

	"relay/internal/codec"
	"relay/internal/model"
)

type recordedSend struct {
	to  model.MemberId
	ch  codec.Channel
	cmd codec.Command
}

type fakeOutbox struct {
	sent []recordedSend
}

func (f *fakeOutbox) Send(to model.MemberId, ch codec.Channel, cmd codec.Command) {
	f.sent = append(f.sent, recordedSend{to, ch, cmd})
}

func clientObj(owner model.MemberId, id uint32) model.GameObjectId {
	return model.GameObjectId{Id: id, Owner: model.OwnerMember(owner)}
}

func newTestRoom() *Room {
	return New(model.RoomId(1))
}

func TestCreateThenCreatedFansOutToOverlappingAttachedMembers(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	out.sent = nil

	objId := clientObj(1, 100)
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 5, AccessGroups: 0b1}, out); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out); err != nil {
		t.Fatalf("Created: %v", err)
	}

	found := false
	for _, s := range out.sent {
		if s.to == 2 {
			if _, ok := s.cmd.(codec.CreatedCmd); ok {
				found = true
			}
		}
		if s.to == 1 {
			t.Fatalf("creator should not receive its own fan-out, got %+v", s)
		}
	}
	if !found {
		t.Fatal("expected member 2 to receive CreatedCmd")
	}
}

func TestCreateRejectsNonOwnerObjectId(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	out := &fakeOutbox{}
	objId := clientObj(2, 100) // owned by member 2, but member 1 sends it
	err := r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 5, AccessGroups: 1}, out)
	if err != ErrMemberNotOwner {
		t.Fatalf("err = %v, want ErrMemberNotOwner", err)
	}
}

func TestSetLongDeniedForNonOverlappingAccessGroup(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b01)
	r.AddMember(2, 0b10)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 0b01}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	err := r.Process(2, codec.ReliableUnordered(), codec.SetLongCmd{ObjectId: objId, FieldId: 1, Value: 5}, out)
	if err != ErrPermissionDenied {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestSetLongDeniedByReadOnlyPermission(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Permissions.SetTemplateDefault(1, PermissionReadOnly)

	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 0b1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	err := r.Process(2, codec.ReliableUnordered(), codec.SetLongCmd{ObjectId: objId, FieldId: 1, Value: 5}, out)
	if err != ErrPermissionDenied {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestTargetEventDeniedWithoutFieldPermission(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b01)
	r.AddMember(2, 0b10)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 0b01}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	err := r.Process(2, codec.ReliableUnordered(), codec.TargetEventCmd{
		TargetMemberId: 1, ObjectId: objId, FieldId: 1, Payload: model.Buffer("hi"),
	}, out)
	if err != ErrPermissionDenied {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestTargetEventForwardsWhenPermitted(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 0b1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)
	out.sent = nil

	if err := r.Process(2, codec.ReliableUnordered(), codec.TargetEventCmd{
		TargetMemberId: 1, ObjectId: objId, FieldId: 1, Payload: model.Buffer("hi"),
	}, out); err != nil {
		t.Fatalf("TargetEvent: %v", err)
	}

	found := false
	for _, s := range out.sent {
		if s.to == 1 {
			if _, ok := s.cmd.(codec.TargetEventCmd); ok {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected target to receive the TargetEventCmd")
	}
}

func TestFieldPermissionGroupScopedRuleOnlyAppliesToExactGroupMatch(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b10)
	r.AddMember(2, 0b11)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	// A Deny rule scoped to group 0b10 exactly must not reach a member
	// whose groups are 0b11, even though 0b11 overlaps 0b10.
	r.Permissions.SetField(9, 1, 0b10, PermissionDeny)

	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 9, AccessGroups: 0b11}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	if err := r.Process(2, codec.ReliableUnordered(), codec.SetLongCmd{ObjectId: objId, FieldId: 1, Value: 5}, out); err != nil {
		t.Fatalf("member with groups 0b11 should pass the 0b10-scoped Deny rule, got %v", err)
	}
}

func TestCompareAndSetMismatchIsNotAnError(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	err := r.Process(1, codec.ReliableUnordered(), codec.CompareAndSetLongCmd{
		ObjectId: objId, FieldId: 9, Current: 10, New: 20, Reset: 0,
	}, out)
	if err != nil {
		t.Fatalf("mismatch should not be an error, got %v", err)
	}
	obj := r.objects[objId]
	if obj.Long(9) != 0 {
		t.Fatalf("Long(9) = %d, want unchanged 0", obj.Long(9))
	}
}

func TestCompareAndSetSuccessRegistersCasResetReleasedOnDisconnect(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	if err := r.Process(2, codec.ReliableUnordered(), codec.CompareAndSetLongCmd{
		ObjectId: objId, FieldId: 3, Current: 0, New: 42, Reset: -1,
	}, out); err != nil {
		t.Fatalf("CAS: %v", err)
	}
	if r.objects[objId].Long(3) != 42 {
		t.Fatalf("Long(3) = %d, want 42", r.objects[objId].Long(3))
	}

	out.sent = nil
	r.Disconnect(2, out)
	if r.objects[objId].Long(3) != -1 {
		t.Fatalf("Long(3) after disconnect = %d, want reset to -1", r.objects[objId].Long(3))
	}
	if _, ok := r.objects[objId].CasOwner(3); ok {
		t.Fatal("expected CAS owner cleared after disconnect")
	}
}

func TestDisconnectDeletesOwnedObjectsAndBroadcasts(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	out.sent = nil
	r.Disconnect(1, out)

	if _, exists := r.objects[objId]; exists {
		t.Fatal("expected owned object removed on disconnect")
	}
	sawDelete, sawMemberDisconnected := false, false
	for _, s := range out.sent {
		if s.to != 2 {
			continue
		}
		switch s.cmd.(type) {
		case codec.DeleteCmd:
			sawDelete = true
		case codec.MemberDisconnectedCmd:
			sawMemberDisconnected = true
		}
	}
	if !sawDelete || !sawMemberDisconnected {
		t.Fatalf("expected peer to see Delete and MemberDisconnected, got %+v", out.sent)
	}
	if _, ok := r.Member(1); ok {
		t.Fatal("expected member removed from table after disconnect")
	}
}

func TestAttachSendsFullSnapshotToNewMember(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	objId := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: objId, TemplateId: 1, AccessGroups: 1}, out)
	r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: objId}, out)

	r.AddMember(2, 0b1)
	out.sent = nil
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	sawCreated := false
	for _, s := range out.sent {
		if s.to == 2 {
			if c, ok := s.cmd.(codec.CreatedCmd); ok && c.ObjectId == objId {
				sawCreated = true
			}
		}
	}
	if !sawCreated {
		t.Fatalf("expected new member's snapshot to include existing object, got %+v", out.sent)
	}
}

func TestSingletonDuplicateCreatedIsDroppedSilently(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)

	first := clientObj(1, 1)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: first, TemplateId: 9, AccessGroups: 1}, out)
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: first, RoomOwner: true, SingletonKey: model.Buffer("k")}, out); err != nil {
		t.Fatal(err)
	}

	second := clientObj(1, 2)
	r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: second, TemplateId: 9, AccessGroups: 1}, out)
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: second, RoomOwner: true, SingletonKey: model.Buffer("k")}, out); err != nil {
		t.Fatal(err)
	}

	if _, exists := r.objects[second]; exists {
		t.Fatal("expected duplicate singleton object to be dropped")
	}
	if _, exists := r.objects[first]; exists {
		t.Fatal("expected first singleton object promoted off its client-assigned id")
	}
	if len(r.objects) != 1 {
		t.Fatalf("expected exactly one surviving object, got %d", len(r.objects))
	}
}

func TestCreatedWithRoomOwnerPromotesIdAndNotifiesOrigin(t *testing.T) {
	r := newTestRoom()
	r.AddMember(1, 0b1)
	r.AddMember(2, 0b1)
	out := &fakeOutbox{}
	r.Process(1, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	r.Process(2, codec.ReliableUnordered(), codec.AttachToRoomCmd{}, out)
	out.sent = nil

	clientId := clientObj(1, 1)
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreateCmd{ObjectId: clientId, TemplateId: 5, AccessGroups: 0b1}, out); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Process(1, codec.ReliableUnordered(), codec.CreatedCmd{ObjectId: clientId, RoomOwner: true}, out); err != nil {
		t.Fatalf("Created: %v", err)
	}

	if _, exists := r.objects[clientId]; exists {
		t.Fatal("expected object moved off its client-assigned id")
	}

	var toOrigin, toPeer *codec.CreatedCmd
	for i := range out.sent {
		if c, ok := out.sent[i].cmd.(codec.CreatedCmd); ok {
			switch out.sent[i].to {
			case 1:
				toOrigin = &c
			case 2:
				toPeer = &c
			}
		}
	}
	if toOrigin == nil {
		t.Fatal("expected origin to be told the promoted id")
	}
	if _, isMember := toOrigin.ObjectId.Owner.Member(); isMember {
		t.Fatalf("promoted id owner = member, want room-owned: %+v", toOrigin.ObjectId)
	}
	if toPeer == nil {
		t.Fatal("expected peer to receive the usual fan-out under the new id")
	}
	if toPeer.ObjectId != toOrigin.ObjectId {
		t.Fatalf("peer and origin disagree on the object's id: %+v vs %+v", toPeer.ObjectId, toOrigin.ObjectId)
	}
	if _, exists := r.objects[toOrigin.ObjectId]; !exists {
		t.Fatal("expected object to live under its promoted id")
	}
}
