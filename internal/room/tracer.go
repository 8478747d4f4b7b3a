package room

import (
	"log/slog"

	"relay/internal/codec"
	"relay/internal/model"
)

// Tracer observes every command Process receives from a known member,
// before it is applied (commands that are then rejected are traced too),
// for debugging, matching the
// command-trace facility the original platform exposes for game client
// developers. It is held as a plain field rather than threaded through
// every call, same as the room's other collaborators — there is exactly
// one room per goroutine so there's no concurrency concern in sharing it.
type Tracer interface {
	TraceCommand(room model.RoomId, from model.MemberId, ch codec.Channel, cmd codec.Command)
}

// NoopTracer discards every trace; it's the default so tracing never
// costs anything unless a caller opts in.
type NoopTracer struct{}

func (NoopTracer) TraceCommand(model.RoomId, model.MemberId, codec.Channel, codec.Command) {}

// SlogTracer logs each command at debug level, grounded in the teacher's
// slog-based internal/core logging convention.
type SlogTracer struct {
	Logger *slog.Logger
}

func (t SlogTracer) TraceCommand(roomId model.RoomId, from model.MemberId, ch codec.Channel, cmd codec.Command) {
	t.Logger.Debug("command",
		"room", uint64(roomId),
		"member", uint16(from),
		"channel", ch.Kind,
		"tag", cmd.Tag(),
	)
}
