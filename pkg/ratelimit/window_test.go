package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestSlidingWindowUnlimited(t *testing.T) {
	win := NewSlidingWindow(0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			win.Acquire()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unlimited window should never block")
	}
}

func TestSlidingWindowAdmitsUpToLimit(t *testing.T) {
	win := newSlidingWindow(3, 200*time.Millisecond)

	start := time.Now()
	win.Acquire()
	win.Acquire()
	win.Acquire()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("First 3 acquires should be immediate, took %v", elapsed)
	}
}

func TestSlidingWindowBlocksWhenFull(t *testing.T) {
	win := newSlidingWindow(2, 200*time.Millisecond)

	win.Acquire()
	win.Acquire()

	// Third acquire must wait for the oldest admission to leave the window
	start := time.Now()
	win.Acquire()
	elapsed := time.Since(start)

	if elapsed < 100*time.Millisecond {
		t.Errorf("Third acquire should have blocked ~200ms, took %v", elapsed)
	}
}

func TestSlidingWindowBoundHolds(t *testing.T) {
	const limit = 3
	window := 150 * time.Millisecond
	win := newSlidingWindow(limit, window)

	var mu sync.Mutex
	var completions []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			win.Acquire()
			mu.Lock()
			completions = append(completions, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	// No trailing window may contain more than limit completions
	for _, anchor := range completions {
		count := 0
		for _, ts := range completions {
			if !ts.Before(anchor) && ts.Sub(anchor) < window {
				count++
			}
		}
		if count > limit {
			t.Errorf("Window starting at %v admitted %d calls, limit is %d", anchor, count, limit)
		}
	}
}

func TestSlidingWindowSerializesWaiters(t *testing.T) {
	// With limit 1 every waiter queues on the same slot. Waiters that wake
	// together must not all admit at once.
	window := 100 * time.Millisecond
	win := newSlidingWindow(1, window)

	win.Acquire()

	var mu sync.Mutex
	var completions []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			win.Acquire()
			mu.Lock()
			completions = append(completions, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i, a := range completions {
		for j, b := range completions {
			if i == j {
				continue
			}
			gap := b.Sub(a)
			if gap < 0 {
				gap = -gap
			}
			if gap < window {
				t.Fatalf("Two admissions %v apart, window is %v", gap, window)
			}
		}
	}
}

func TestSlidingWindowSetLimit(t *testing.T) {
	win := NewSlidingWindow(5)
	win.SetLimit(10)
	if win.Limit() != 10 {
		t.Errorf("Limit() = %d, want 10", win.Limit())
	}
}

func TestRegistrySharesPerKey(t *testing.T) {
	reg := NewRegistry(func(provider, model string) int {
		if provider == "gemini" {
			return 10
		}
		return 0
	})

	a := reg.ForModel("gemini", "gemini-2.5-flash")
	b := reg.ForModel("gemini", "gemini-2.5-flash")
	c := reg.ForModel("gemini", "gemini-2.5-pro")

	if a != b {
		t.Error("Same key should return the same limiter instance")
	}
	if a == c {
		t.Error("Different keys should return different limiter instances")
	}
	if a.Limit() != 10 {
		t.Errorf("Limit = %d, want 10 from limitFor", a.Limit())
	}
}

func TestHTTPLimiterMiddleware(t *testing.T) {
	limiter := NewHTTPLimiter(10, 2) // 10 requests per second, burst of 2

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})
	wrapped := middleware(handler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest("POST", "/api/jobs", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d should succeed, got status %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest("POST", "/api/jobs", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got status %d", rr.Code)
	}
}
