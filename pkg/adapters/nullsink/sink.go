// Package nullsink provides a stream sink that discards frames.
package nullsink

import (
	"errors"
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/ports"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("nullsink: closed")

// Sink is a no-op implementation of ports.StreamSink.
// It discards frames and only keeps counters.
type Sink struct {
	mu              sync.Mutex
	frames          uint64
	discontinuities uint64
	first           time.Duration
	last            time.Duration
	closed          bool
}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Emit counts the sample.
func (s *Sink) Emit(sample ports.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.frames == 0 {
		s.first = sample.PTS
	}
	s.frames++
	s.last = sample.PTS
	if sample.Discontinuity {
		s.discontinuities++
	}
	return nil
}

// Close marks the sink closed. Later samples are rejected.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Frames returns the number of samples received.
func (s *Sink) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Discontinuities returns the number of samples flagged as discontinuous.
func (s *Sink) Discontinuities() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discontinuities
}

// Span returns the time between the first and last sample.
func (s *Sink) Span() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last - s.first
}

// Ensure Sink implements ports.StreamSink
var _ ports.StreamSink = (*Sink)(nil)
