package service

import (
	"context"
	"sync"
	"time"
)

// ThrottleDecision is the outcome of one counted attempt.
type ThrottleDecision struct {
	Allowed    bool
	Count      int           // attempts in the current window, this one included
	Limit      int           // maximum attempts per window
	RetryAfter time.Duration // time until the window resets, set when blocked
}

// Remaining returns how many attempts are left in the window.
func (d ThrottleDecision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// Throttle counts attempts per key in fixed windows.  Hit consults and
// increments in one atomic step, so two concurrent attempts can never both
// observe the last free slot.
type Throttle interface {
	Hit(ctx context.Context, key string) (ThrottleDecision, error)
}

type throttleWindow struct {
	start time.Time
	count int
}

// MemoryThrottle is a process local fixed window counter.
type MemoryThrottle struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	entries   map[string]*throttleWindow
	lastSweep time.Time
}

func NewMemoryThrottle(max int, window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		max:     max,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*throttleWindow),
	}
}

func (m *MemoryThrottle) Hit(_ context.Context, key string) (ThrottleDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w := m.entries[key]
	if w == nil || now.Sub(w.start) >= m.window {
		w = &throttleWindow{start: now}
		m.entries[key] = w
	}
	w.count++

	d := ThrottleDecision{Allowed: w.count <= m.max, Count: w.count, Limit: m.max}
	if !d.Allowed {
		d.RetryAfter = w.start.Add(m.window).Sub(now)
	}
	return d, nil
}

// sweep drops elapsed windows at most once per window.  Caller holds m.mu.
func (m *MemoryThrottle) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	m.lastSweep = now
	for k, w := range m.entries {
		if now.Sub(w.start) >= m.window {
			delete(m.entries, k)
		}
	}
}
