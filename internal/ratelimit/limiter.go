package ratelimit

import (
	"time"
)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter allows at most Limit events per key inside a sliding window.
// Rejected events are not recorded.
type Limiter struct {
	limit   int
	clock   Clock
	windows *keyed
}

// NewLimiter creates a Limiter. A nil clock uses time.Now.
func NewLimiter(limit int, window time.Duration, clock Clock) *Limiter {
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{limit: limit, clock: clock, windows: newKeyed(window)}
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int {
	return l.limit
}

// Allow records one event for key if the limit permits it.
func (l *Limiter) Allow(key string) Decision {
	now := l.clock()
	allowed, remaining, resetAt := l.windows.window(key).Allow(now, l.limit)

	d := Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		d.RetryAfter = resetAt.Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d
}

// Sweep drops keys with empty windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	return l.windows.sweep(l.clock())
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	return l.windows.len()
}

// Counter counts events per key inside a sliding window without a limit.
type Counter struct {
	clock   Clock
	windows *keyed
}

// NewCounter creates a Counter. A nil clock uses time.Now.
func NewCounter(window time.Duration, clock Clock) *Counter {
	if clock == nil {
		clock = time.Now
	}
	return &Counter{clock: clock, windows: newKeyed(window)}
}

// Add records one event for key and returns the count inside the window.
func (c *Counter) Add(key string) int {
	return c.windows.window(key).Add(c.clock())
}

// Count returns the current count for key without recording an event.
func (c *Counter) Count(key string) int {
	c.windows.mu.RLock()
	w, ok := c.windows.windows[key]
	c.windows.mu.RUnlock()
	if !ok {
		return 0
	}
	return w.Count(c.clock())
}

// Counts returns the non-zero counts of every tracked key.
func (c *Counter) Counts() map[string]int {
	now := c.clock()
	c.windows.mu.RLock()
	defer c.windows.mu.RUnlock()

	out := make(map[string]int, len(c.windows.windows))
	for key, w := range c.windows.windows {
		if n := w.Count(now); n > 0 {
			out[key] = n
		}
	}
	return out
}

// Sweep drops keys with empty windows and returns how many were removed.
func (c *Counter) Sweep() int {
	return c.windows.sweep(c.clock())
}

// Len returns the number of tracked keys.
func (c *Counter) Len() int {
	return c.windows.len()
}
