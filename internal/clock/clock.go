// Package clock provides the server's single source of "now", with an
// atomically adjustable offset so the TimeOffset management task (spec.md
// §4.6) can fast-forward timers in tests without sleeping real time.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock implements network.Clock.
type Clock struct {
	offsetNanos atomic.Int64
}

func New() *Clock { return &Clock{} }

func (c *Clock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offsetNanos.Load()))
}

// SetOffset replaces the current offset outright (not cumulative), so
// repeated TimeOffset calls with the same value are idempotent.
func (c *Clock) SetOffset(d time.Duration) {
	c.offsetNanos.Store(int64(d))
}

func (c *Clock) Offset() time.Duration {
	return time.Duration(c.offsetNanos.Load())
}
