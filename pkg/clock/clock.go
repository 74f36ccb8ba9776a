package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so window and expiry logic can be tested.
type Clock interface {
	Now() time.Time
}

// Real implements Clock using the wall clock.
type Real struct{}

// Now returns the current local time.
func (Real) Now() time.Time {
	return time.Now()
}

// Mock implements Clock for tests.
type Mock struct {
	mu      sync.Mutex
	current time.Time
}

// NewMock returns a Mock frozen at start.
func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

// Now returns the mocked current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the mocked time forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
