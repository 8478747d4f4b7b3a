package clock_test

import (
	"testing"
	"time"

	"relay/internal/clock"
)

func TestNewHasZeroOffset(t *testing.T) {
	c := clock.New()
	if c.Offset() != 0 {
		t.Fatalf("expected zero offset, got %v", c.Offset())
	}
}

func TestSetOffsetShiftsNow(t *testing.T) {
	c := clock.New()
	before := c.Now()

	c.SetOffset(time.Hour)
	after := c.Now()

	if d := after.Sub(before); d < 59*time.Minute || d > 61*time.Minute {
		t.Fatalf("expected ~1h shift, got %v", d)
	}
	if c.Offset() != time.Hour {
		t.Fatalf("Offset() = %v, want 1h", c.Offset())
	}
}

func TestSetOffsetIsAbsoluteNotCumulative(t *testing.T) {
	c := clock.New()
	c.SetOffset(time.Hour)
	c.SetOffset(time.Minute)
	if c.Offset() != time.Minute {
		t.Fatalf("Offset() = %v, want 1m (overwrite, not accumulate)", c.Offset())
	}
}
