package room

import "errors"

// These are the ServerCommandError family from spec.md §7: violations a
// client can trigger by sending a well-formed but semantically invalid
// command. They're never fatal — the caller logs and drops the command
// for that member and keeps the room running.
var (
	ErrMemberNotFound  = errors.New("room: member not found")
	ErrRoomMismatch    = errors.New("room: command addressed to a different room")
	ErrObjectNotFound  = errors.New("room: object not found")
	ErrMemberNotOwner  = errors.New("room: member does not own object")
	ErrPermissionDenied = errors.New("room: field permission denied")
	ErrNotAttached     = errors.New("room: member is not attached to the room")
)
