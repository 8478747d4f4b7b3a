package object

import (
	"testing"

	"relay/internal/codec"
	"relay/internal/model"
)

func testId() model.GameObjectId {
	return model.GameObjectId{Id: 7, Owner: model.OwnerMember(1)}
}

func TestIncrementLongOnAbsentFieldTreatsAsZero(t *testing.T) {
	o := New(testId(), 5, 1)
	got := o.IncrementLong(42, 10)
	if got != 10 {
		t.Errorf("IncrementLong = %d, want 10", got)
	}
	if o.Long(42) != 10 {
		t.Errorf("Long(42) = %d, want 10", o.Long(42))
	}
}

func TestCompareAndSetOnAbsentFieldTreatsAsZero(t *testing.T) {
	o := New(testId(), 5, 1)
	if !o.CompareAndSet(1, 0, 99, model.MemberId(3)) {
		t.Fatal("expected success comparing absent field against 0")
	}
	if o.Long(1) != 99 {
		t.Errorf("Long(1) = %d, want 99", o.Long(1))
	}
	owner, ok := o.CasOwner(1)
	if !ok || owner != 3 {
		t.Errorf("CasOwner = (%d,%v), want (3,true)", owner, ok)
	}
}

func TestCompareAndSetFailsOnMismatch(t *testing.T) {
	o := New(testId(), 5, 1)
	o.SetLong(1, 10)
	if o.CompareAndSet(1, 0, 99, 3) {
		t.Fatal("expected failure comparing mismatched current value")
	}
	if o.Long(1) != 10 {
		t.Errorf("Long(1) = %d, want unchanged 10", o.Long(1))
	}
}

func TestClearCasOwner(t *testing.T) {
	o := New(testId(), 5, 1)
	o.CompareAndSet(1, 0, 5, 3)
	o.ClearCasOwner(1)
	if _, ok := o.CasOwner(1); ok {
		t.Error("expected CasOwner to be cleared")
	}
}

func TestCollectCreateCommandsUncreated(t *testing.T) {
	o := New(testId(), 5, 0b11)
	o.SetLong(1, 7)
	o.SetDouble(2, 1.5)
	o.SetStructure(3, model.Buffer("abc"))

	var out []codec.Command
	o.CollectCreateCommands(&out)

	if len(out) != 4 { // Create + 3 SetX, no Created
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	if _, ok := out[0].(codec.CreateCmd); !ok {
		t.Errorf("out[0] = %T, want CreateCmd", out[0])
	}
	for _, cmd := range out[1:] {
		if _, ok := cmd.(codec.CreatedCmd); ok {
			t.Error("uncreated object should not emit CreatedCmd")
		}
	}
}

func TestCollectCreateCommandsCreated(t *testing.T) {
	o := New(testId(), 5, 0b11)
	o.Created = true

	var out []codec.Command
	o.CollectCreateCommands(&out)

	last := out[len(out)-1]
	created, ok := last.(codec.CreatedCmd)
	if !ok {
		t.Fatalf("last = %T, want CreatedCmd", last)
	}
	if created.ObjectId != o.Id {
		t.Errorf("created.ObjectId = %v, want %v", created.ObjectId, o.Id)
	}
}

func TestStructureValueIsCloned(t *testing.T) {
	o := New(testId(), 5, 1)
	src := model.Buffer("abc")
	o.SetStructure(1, src)
	src[0] = 'X'
	got, _ := o.Structure(1)
	if string(got) != "abc" {
		t.Errorf("structure mutated via caller's slice: got %q", got)
	}
}
