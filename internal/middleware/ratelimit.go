package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/shafeequrrehman007/wagpt/pkg/clock"
	"github.com/sirupsen/logrus"
)

// GlobalKey is the single key used by the process-wide limiter.
const GlobalKey = "global"

// RateLimiter gates work per key inside tumbling windows.
type RateLimiter interface {
	Increment(key string)
	Limited(key string) bool
	Allow(key string) bool
	Reset(key string)
}

type window struct {
	count int
	start time.Time
}

// WindowLimiter counts events per key in fixed windows. A window opens on
// the first increment for a key and the count drops to zero once it has
// elapsed; windows never slide.
type WindowLimiter struct {
	name      string
	window    time.Duration
	threshold int
	clock     clock.Clock
	logger    *logrus.Logger

	mu      sync.Mutex
	windows map[string]*window
}

// NewWindowLimiter creates a limiter allowing threshold events per window
// of the given size.
func NewWindowLimiter(name string, size time.Duration, threshold int, clk clock.Clock, logger *logrus.Logger) *WindowLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WindowLimiter{
		name:      name,
		window:    size,
		threshold: threshold,
		clock:     clk,
		logger:    logger,
		windows:   make(map[string]*window),
	}
}

// current returns the open window for key, dropping an elapsed one.
// Caller holds mu.
func (l *WindowLimiter) current(key string, now time.Time) *window {
	w, ok := l.windows[key]
	if !ok {
		return nil
	}
	if now.Sub(w.start) >= l.window {
		delete(l.windows, key)
		return nil
	}
	return w
}

// Increment records one event for key, opening a window if none is open.
func (l *WindowLimiter) Increment(key string) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if w := l.current(key, now); w != nil {
		w.count++
		return
	}
	l.windows[key] = &window{count: 1, start: now}
}

// Limited reports whether key has reached the threshold in its open window.
func (l *WindowLimiter) Limited(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current(key, now)
	return w != nil && w.count >= l.threshold
}

// Allow increments key and returns true unless it is already limited.
func (l *WindowLimiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current(key, now)
	if w == nil {
		l.windows[key] = &window{count: 1, start: now}
		return true
	}
	if w.count >= l.threshold {
		l.logger.WithFields(logrus.Fields{
			"limiter": l.name,
			"key":     key,
		}).Warn("Rate limit exceeded")
		return false
	}
	w.count++
	return true
}

// Reset forgets key.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
}

// Sweep removes every elapsed window and returns how many were removed.
func (l *WindowLimiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps expired windows once per window length until ctx is done.
func (l *WindowLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.WithFields(logrus.Fields{
					"limiter": l.name,
					"removed": n,
				}).Debug("Swept expired rate limit windows")
			}
		}
	}
}
