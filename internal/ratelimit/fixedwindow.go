// Package ratelimit implements a process-local fixed-window request counter
// keyed by client identity.
//
// Check is atomic per identity: the read-check-increment sequence runs under a
// single mutex. Expired entries are not removed inline; a janitor started with
// Run purges them periodically so per-request cost stays O(1).
//
// The limiter is process-local. Horizontally scaled deployments need a shared
// store to enforce global limits.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is the counter for one identity within its current window.
type Entry struct {
	Count   int
	ResetAt time.Time
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// FixedWindow counts requests per identity in fixed windows.
// It is safe for concurrent use.
type FixedWindow struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// Option customizes a FixedWindow.
type Option func(*FixedWindow)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

// New returns an empty limiter.
func New(opts ...Option) *FixedWindow {
	f := &FixedWindow{entries: make(map[string]*Entry), now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Check records one request for identity and reports whether it fits within
// max requests per window. A window starts at the first request of an
// identity and lasts exactly window; the first request after it elapses
// opens a new one.
func (f *FixedWindow) Check(identity string, max int, window time.Duration) Decision {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[identity]
	if !ok || !now.Before(e.ResetAt) {
		e = &Entry{ResetAt: now.Add(window)}
		f.entries[identity] = e
	}

	if e.Count >= max {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    e.ResetAt,
			RetryAfter: e.ResetAt.Sub(now),
		}
	}

	e.Count++
	return Decision{
		Allowed:   true,
		Remaining: max - e.Count,
		ResetAt:   e.ResetAt,
	}
}

// Sweep removes every entry whose window has expired and returns how many
// were removed.
func (f *FixedWindow) Sweep() int {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for k, e := range f.entries {
		if !now.Before(e.ResetAt) {
			delete(f.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked identities.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Run sweeps every interval until ctx is cancelled.
func (f *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f.Sweep()
		}
	}
}
