package room

import "relay/internal/model"

// Member is a room's view of one connected participant: its access
// groups (which gate fan-out and permission resolution) and whether it
// has completed AttachToRoom yet. A member exists in the table from the
// moment the network layer creates its session, but objects aren't fanned
// out to it until it attaches.
type Member struct {
	Id           model.MemberId
	AccessGroups model.AccessGroups
	Attached     bool

	// everAttached stays true across a detach/re-attach cycle so a
	// member's template objects are only instantiated once.
	everAttached bool

	// casReset records, per object/field, the value a compare-and-set
	// slot this member holds should revert to on disconnect.
	casReset map[model.GameObjectId]map[model.FieldId]int64
}

func newMember(id model.MemberId, groups model.AccessGroups) *Member {
	return &Member{
		Id:           id,
		AccessGroups: groups,
		casReset:     make(map[model.GameObjectId]map[model.FieldId]int64),
	}
}

func (m *Member) rememberCasReset(obj model.GameObjectId, field model.FieldId, resetValue int64) {
	fields, ok := m.casReset[obj]
	if !ok {
		fields = make(map[model.FieldId]int64)
		m.casReset[obj] = fields
	}
	fields[field] = resetValue
}
