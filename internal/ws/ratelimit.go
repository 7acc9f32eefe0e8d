package ws

import (
	"sync"
	"time"
)

// Inbound rate limit: at most rateLimitCap messages per rateLimitWindow per
// connection. SweepInterval bounds both the sweep cadence and the age past
// which idle windows are discarded.
const (
	rateLimitCap    = 10
	rateLimitWindow = time.Second

	// SweepInterval is how often rate-limit windows are swept, and the age at
	// which idle windows are considered stale.
	SweepInterval = 60 * time.Second
)

// limiter is a per-connection sliding-window admission check. It is owned by
// the Registry: windows are only created from the dispatch path, after the
// connection lookup has succeeded, so a window can never exist for a
// connection that was never registered.
type limiter struct {
	mu      sync.Mutex
	cap     int
	window  time.Duration
	windows map[string][]time.Time
}

func newLimiter(cap int, window time.Duration) *limiter {
	return &limiter{
		cap:     cap,
		window:  window,
		windows: make(map[string][]time.Time),
	}
}

// allow records the current attempt against the connection's window and
// reports whether it is admitted. Rejected attempts are not recorded: a burst
// does not extend its own penalty into future windows.
func (l *limiter) allow(connID string) bool {
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := trimBefore(l.windows[connID], cutoff)
	if len(recent) >= l.cap {
		l.windows[connID] = recent
		return false
	}
	l.windows[connID] = append(recent, now)
	return true
}

// drop discards a connection's window. Called on connection removal.
func (l *limiter) drop(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, connID)
}

// sweep removes windows whose connection is no longer live and purges
// timestamps older than maxAge from the rest, discarding windows that become
// empty. This catches disconnects that bypassed the normal removal path.
func (l *limiter) sweep(maxAge time.Duration, live map[string]bool) {
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, win := range l.windows {
		if !live[id] {
			delete(l.windows, id)
			continue
		}
		recent := trimBefore(win, cutoff)
		if len(recent) == 0 {
			delete(l.windows, id)
			continue
		}
		l.windows[id] = recent
	}
}

// size returns the number of tracked windows.
func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// trimBefore returns the suffix of timestamps at or after cutoff. Timestamps
// are appended in order, so a single scan for the first survivor suffices.
func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	for i, t := range ts {
		if !t.Before(cutoff) {
			return ts[i:]
		}
	}
	return nil
}
