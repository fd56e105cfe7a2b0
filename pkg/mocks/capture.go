package mocks

import (
	"context"
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// UpstreamCapture is a mock implementation of ports.UpstreamCapture.
// Tests push events with Send; the feed ends on Stop or Finish.
type UpstreamCapture struct {
	mu     sync.Mutex
	events chan ports.CaptureEvent
	closed bool

	StartFunc func(ctx context.Context) error

	Starts int
	Stops  int
}

// NewUpstreamCapture creates a mock feed with the given channel buffer.
func NewUpstreamCapture(buffer int) *UpstreamCapture {
	return &UpstreamCapture{events: make(chan ports.CaptureEvent, buffer)}
}

func (m *UpstreamCapture) Start(ctx context.Context) (<-chan ports.CaptureEvent, error) {
	m.mu.Lock()
	m.Starts++
	m.mu.Unlock()
	if m.StartFunc != nil {
		if err := m.StartFunc(ctx); err != nil {
			return nil, err
		}
	}
	return m.events, nil
}

// Send delivers an event. It blocks while the buffer is full.
func (m *UpstreamCapture) Send(ev ports.CaptureEvent) {
	m.events <- ev
}

// Finish closes the feed as if the upstream source ended.
func (m *UpstreamCapture) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
}

func (m *UpstreamCapture) Stop() error {
	m.mu.Lock()
	m.Stops++
	m.mu.Unlock()
	m.Finish()
	return nil
}

var _ ports.UpstreamCapture = (*UpstreamCapture)(nil)
