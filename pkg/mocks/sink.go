package mocks

import (
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// StreamSink is a mock implementation of ports.StreamSink.
// Emitted samples are copied so tests can inspect them after the buffer returns
// to the pool.
type StreamSink struct {
	mu sync.Mutex

	EmitFunc  func(s ports.Sample) error
	CloseFunc func() error

	Samples []ports.Sample
	Closed  bool
}

// NewStreamSink creates a new mock StreamSink.
func NewStreamSink() *StreamSink {
	return &StreamSink{}
}

func (m *StreamSink) Emit(s ports.Sample) error {
	cp := s
	cp.Pix = append([]byte(nil), s.Pix...)

	m.mu.Lock()
	m.Samples = append(m.Samples, cp)
	m.mu.Unlock()

	if m.EmitFunc != nil {
		return m.EmitFunc(s)
	}
	return nil
}

func (m *StreamSink) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Count returns the number of samples emitted so far.
func (m *StreamSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Samples)
}

// Snapshot returns a copy of the recorded samples.
func (m *StreamSink) Snapshot() []ports.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.Sample, len(m.Samples))
	copy(out, m.Samples)
	return out
}

var _ ports.StreamSink = (*StreamSink)(nil)
