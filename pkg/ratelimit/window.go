package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow bounds calls to a shared external resource to at most max
// admissions in any trailing window (60 seconds for provider RPM quotas).
// All jobs talking to the same provider/model share one instance, so the
// bound holds across concurrent jobs.
type SlidingWindow struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	timestamps []time.Time
}

// NewSlidingWindow creates a limiter admitting at most maxPerMinute calls in
// any trailing 60-second window. A zero or negative limit disables the
// limiter entirely.
func NewSlidingWindow(maxPerMinute int) *SlidingWindow {
	return newSlidingWindow(maxPerMinute, time.Minute)
}

func newSlidingWindow(max int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{max: max, window: window}
}

// SetLimit updates the admission limit (e.g. after a config reload)
func (s *SlidingWindow) SetLimit(maxPerMinute int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = maxPerMinute
}

// Limit returns the configured admission limit
func (s *SlidingWindow) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// Acquire blocks until admitting one more call would not exceed the limit
// within the trailing window, then records the call. The wait is a plain
// sleep and cannot be aborted once entered; callers that need prompt
// cancellation must check for it before calling Acquire.
func (s *SlidingWindow) Acquire() {
	for {
		s.mu.Lock()
		if s.max <= 0 {
			s.mu.Unlock()
			return
		}

		now := time.Now()
		s.prune(now)

		if len(s.timestamps) < s.max {
			s.timestamps = append(s.timestamps, now)
			s.mu.Unlock()
			return
		}

		// Window is full: wait until the oldest admission falls out of it,
		// then recheck. Waiters that wake together race for the freed slot
		// and the losers go back to waiting, so the bound holds.
		oldest := s.timestamps[0]
		wait := oldest.Add(s.window).Sub(now)
		s.mu.Unlock()

		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

// prune drops admissions older than the trailing window. Caller holds mu.
// Timestamps are appended in order, so the slice stays sorted and the first
// surviving entry is the oldest.
func (s *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	kept := s.timestamps[:0]
	for _, ts := range s.timestamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.timestamps = kept
}

// Registry hands out one shared SlidingWindow per (provider, model) key.
// It is owned by the model-client factory rather than living as package
// state, so tests and embedders control its lifecycle.
type Registry struct {
	mu      sync.Mutex
	windows map[string]*SlidingWindow
	// limitFor supplies the default limit for a key created lazily
	limitFor func(provider, model string) int
}

// NewRegistry creates a registry. limitFor resolves the requests-per-minute
// limit for a (provider, model) pair the first time it is seen; nil means
// unlimited for every key.
func NewRegistry(limitFor func(provider, model string) int) *Registry {
	return &Registry{
		windows:  make(map[string]*SlidingWindow),
		limitFor: limitFor,
	}
}

// ForModel returns the shared limiter for a (provider, model) pair,
// creating it on first use. Limiters live for the process lifetime.
func (r *Registry) ForModel(provider, model string) *SlidingWindow {
	key := provider + ":" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	win, ok := r.windows[key]
	if !ok {
		limit := 0
		if r.limitFor != nil {
			limit = r.limitFor(provider, model)
		}
		win = NewSlidingWindow(limit)
		r.windows[key] = win
	}
	return win
}
