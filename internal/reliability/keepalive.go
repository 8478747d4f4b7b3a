package reliability

import "time"

// keepAliveInterval is how long a session may go without sending anything
// before an empty frame goes out anyway, so the peer's disconnect-timeout
// clock never trips on a merely idle (not dead) link.
const keepAliveInterval = time.Second

type keepAliveTracker struct {
	lastSentAt time.Time
}

func newKeepAliveTracker(now time.Time) *keepAliveTracker {
	return &keepAliveTracker{lastSentAt: now}
}

func (k *keepAliveTracker) markSent(now time.Time) { k.lastSentAt = now }

func (k *keepAliveTracker) due(now time.Time) bool {
	return now.Sub(k.lastSentAt) >= keepAliveInterval
}
