// Package ratelimit provides in-memory sliding-window counters keyed by an
// arbitrary string, such as a client IP or a (principal, action) pair.
//
// Each key owns an independently locked window holding the timestamps of the
// events inside it. Entries older than the window are pruned on every access,
// so correctness never depends on a background sweep; Sweep only bounds
// memory by dropping keys whose windows are empty.
package ratelimit

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Window is a sliding log of event timestamps over a fixed duration.
type Window struct {
	mu         sync.Mutex
	duration   time.Duration
	timestamps []time.Time
}

// NewWindow creates an empty window.
func NewWindow(duration time.Duration) *Window {
	return &Window{duration: duration}
}

// pruneLocked drops timestamps at or before now-duration.
// Caller must hold mu.
func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.duration)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// Allow records an event at now if fewer than limit events are inside the
// window. It returns whether the event was recorded, the number of events
// still permitted, and when the oldest event leaves the window.
func (w *Window) Allow(now time.Time, limit int) (bool, int, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.timestamps) >= limit {
		return false, 0, w.timestamps[0].Add(w.duration)
	}
	w.timestamps = append(w.timestamps, now)
	return true, limit - len(w.timestamps), w.timestamps[0].Add(w.duration)
}

// Add records an event at now unconditionally and returns the count inside
// the window.
func (w *Window) Add(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	w.timestamps = append(w.timestamps, now)
	return len(w.timestamps)
}

// Count returns the number of events inside the window at now.
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	return len(w.timestamps)
}

// keyed is a RWMutex-guarded map of independently locked windows.
type keyed struct {
	duration time.Duration
	mu       sync.RWMutex
	windows  map[string]*Window
}

func newKeyed(duration time.Duration) *keyed {
	return &keyed{duration: duration, windows: make(map[string]*Window)}
}

func (k *keyed) window(key string) *Window {
	k.mu.RLock()
	w, ok := k.windows[key]
	k.mu.RUnlock()
	if ok {
		return w
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if w, ok = k.windows[key]; !ok {
		w = NewWindow(k.duration)
		k.windows[key] = w
	}
	return w
}

func (k *keyed) sweep(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, w := range k.windows {
		if w.Count(now) == 0 {
			delete(k.windows, key)
			removed++
		}
	}
	return removed
}

func (k *keyed) len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.windows)
}
