// Package ratelimit implements in-process fixed window request counters.
//
// Counters live only as long as the process that created them. They are a
// soft first line of defence and are not shared between instances.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/metrics"
)

// LimitError is returned when a key has used up its window. It matches
// domain.ErrRateLimited with errors.Is.
type LimitError struct {
	Key        string
	RetryAfter time.Duration
	Message    string
}

func (e *LimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Unwrap() error {
	return domain.ErrRateLimited
}

type window struct {
	mu    sync.Mutex
	count int
	start time.Time
	// removed is set once the window has been dropped from the map; callers
	// holding a stale pointer must look the key up again.
	removed bool
}

type FixedWindow struct {
	name    string
	limit   int
	window  time.Duration
	now     func() time.Time
	windows sync.Map
}

type Option func(*FixedWindow)

func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		l.now = now
	}
}

// WithName labels the limiter in metrics.
func WithName(name string) Option {
	return func(l *FixedWindow) {
		l.name = name
	}
}

func NewFixedWindow(limit int, window time.Duration, opts ...Option) *FixedWindow {
	l := &FixedWindow{
		name:   "default",
		limit:  limit,
		window: window,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *FixedWindow) lookup(key string) *window {
	v, _ := l.windows.LoadOrStore(key, &window{})
	return v.(*window)
}

// TryRequest counts a request for key. The first request after a window has
// ended starts a new window with a count of one.
func (l *FixedWindow) TryRequest(key string) error {
	for {
		w := l.lookup(key)

		w.mu.Lock()
		if w.removed {
			w.mu.Unlock()
			continue
		}

		err := l.take(w, key)
		w.mu.Unlock()

		if err != nil {
			metrics.RateLimited.Add(context.Background(), 1, metrics.Key("limiter", l.name))
		}

		return err
	}
}

func (l *FixedWindow) take(w *window, key string) error {
	now := l.now()
	end := w.start.Add(l.window)

	if w.count == 0 || !now.Before(end) {
		w.count = 1
		w.start = now
		return nil
	}

	if w.count >= l.limit {
		return &LimitError{Key: key, RetryAfter: end.Sub(now)}
	}

	w.count++
	return nil
}

// Count returns the number of requests counted for key in its current window.
func (l *FixedWindow) Count(key string) int {
	v, ok := l.windows.Load(key)
	if !ok {
		return 0
	}

	w := v.(*window)
	w.mu.Lock()
	defer w.mu.Unlock()

	if !l.now().Before(w.start.Add(l.window)) {
		return 0
	}
	return w.count
}

// Reset clears the counter for key.
func (l *FixedWindow) Reset(key string) {
	v, ok := l.windows.Load(key)
	if !ok {
		return
	}

	w := v.(*window)
	w.mu.Lock()
	w.count = 0
	w.mu.Unlock()
}

// Prune drops windows that have ended and returns how many were removed.
func (l *FixedWindow) Prune() int {
	now := l.now()
	pruned := 0

	l.windows.Range(func(k, v any) bool {
		w := v.(*window)

		w.mu.Lock()
		if w.count == 0 || !now.Before(w.start.Add(l.window)) {
			w.removed = true
			l.windows.Delete(k)
			pruned++
		}
		w.mu.Unlock()

		return true
	})

	return pruned
}
