package room

import "relay/internal/model"

// PermissionLevel governs what a non-owning member may do to a field once
// it's visible to them via access-group overlap.
type PermissionLevel uint8

const (
	// PermissionDeny rejects any C2S mutation of the field from that
	// member. Fan-out is not filtered by permission level: updates to the
	// field still reach every attached member whose access groups overlap
	// the object's.
	PermissionDeny PermissionLevel = iota
	// PermissionReadOnly lets the field's current value reach the member
	// but any C2S mutation of it from that member is rejected.
	PermissionReadOnly
	// PermissionReadWrite is the default: any member whose access groups
	// overlap the object's may read and write the field.
	PermissionReadWrite
)

type fieldKey struct {
	templateId uint16
	field      model.FieldId
}

// fieldRule is one entry of a field's rule list. groups == 0 means the
// rule applies regardless of the requesting member's access groups;
// otherwise it applies only to a member whose AccessGroups bitmask is
// exactly this rule's groups, letting a Deny rule scoped to one group
// combination coexist with a more permissive rule (or none at all) for a
// member who also belongs to other groups.
type fieldRule struct {
	groups model.AccessGroups
	level  PermissionLevel
}

// PermissionTable resolves a field's permission level by precedence: the
// first (template, field) rule whose groups bitmask matches the
// requesting member's, falling back to a template-wide default, falling
// back to PermissionReadWrite.
type PermissionTable struct {
	fieldRules    map[fieldKey][]fieldRule
	templateRules map[uint16]PermissionLevel
}

func NewPermissionTable() *PermissionTable {
	return &PermissionTable{
		fieldRules:    make(map[fieldKey][]fieldRule),
		templateRules: make(map[uint16]PermissionLevel),
	}
}

// SetField installs a rule for one (template, field) pair, scoped to
// members whose access groups exactly match groups (or to every member,
// if groups is 0). It takes precedence over any template-wide default.
// Multiple calls for the same (template, field) with different groups
// are independent rules; Resolve picks whichever one matches the caller.
func (t *PermissionTable) SetField(templateId uint16, field model.FieldId, groups model.AccessGroups, level PermissionLevel) {
	key := fieldKey{templateId, field}
	t.fieldRules[key] = append(t.fieldRules[key], fieldRule{groups: groups, level: level})
}

// SetTemplateDefault installs the fallback rule for every field of a
// template that has no matching field-specific rule.
func (t *PermissionTable) SetTemplateDefault(templateId uint16, level PermissionLevel) {
	t.templateRules[templateId] = level
}

func (t *PermissionTable) Resolve(templateId uint16, field model.FieldId, memberGroups model.AccessGroups) PermissionLevel {
	for _, rule := range t.fieldRules[fieldKey{templateId, field}] {
		if rule.groups == 0 || rule.groups == memberGroups {
			return rule.level
		}
	}
	if lvl, ok := t.templateRules[templateId]; ok {
		return lvl
	}
	return PermissionReadWrite
}
