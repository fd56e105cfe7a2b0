package mocks

import (
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/ports"
)

// Clock is a manually driven ports.Clock. Each Now call advances by Step.
type Clock struct {
	mu   sync.Mutex
	now  time.Duration
	Step time.Duration
}

// NewClock creates a clock starting at start that advances by step per reading.
func NewClock(start, step time.Duration) *Clock {
	return &Clock{now: start, Step: step}
}

func (m *Clock) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now
	m.now += m.Step
	return t
}

// Set moves the clock to t, possibly backwards.
func (m *Clock) Set(t time.Duration) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

var _ ports.Clock = (*Clock)(nil)
