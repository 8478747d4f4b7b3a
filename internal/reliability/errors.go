package reliability

import "errors"

// ErrRateLimited is returned by Receive when a session's inbound frame
// rate exceeds its token bucket; the frame is dropped, not queued.
var ErrRateLimited = errors.New("reliability: inbound frame rate exceeded")

// ErrSessionDisconnected is returned by Receive once a session has moved
// to StateDisconnected (Enqueue silently drops commands in that state);
// callers should stop driving the protocol and let the network layer reap
// it.
var ErrSessionDisconnected = errors.New("reliability: session is disconnected")
