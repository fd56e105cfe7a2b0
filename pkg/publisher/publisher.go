// Package publisher hands synthesized frames to the device's stream sink.
package publisher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/framepool"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
)

var (
	// ErrNonMonotonic is returned when a frame's PTS does not advance.
	ErrNonMonotonic = errors.New("publisher: presentation timestamp not increasing")

	// ErrNoBuffer is returned for a frame without a buffer.
	ErrNoBuffer = errors.New("publisher: frame has no buffer")
)

// Stats is a snapshot of publisher counters.
type Stats struct {
	Published     uint64
	SinkErrors    uint64
	Rejected      uint64
	Discontinuity uint64
	LastPTS       time.Duration
}

// Publisher emits frames to a sink and returns their buffers to the pool.
// It is the only component that releases buffers on the normal path.
type Publisher struct {
	sink   ports.StreamSink
	pool   *framepool.Pool
	logger ports.Logger

	mu      sync.Mutex
	hasLast bool
	stats   Stats
}

// New creates a publisher for sink, releasing buffers to pool.
func New(sink ports.StreamSink, pool *framepool.Pool, logger ports.Logger) *Publisher {
	return &Publisher{
		sink:   sink,
		pool:   pool,
		logger: logger.WithComponent("publisher"),
	}
}

// Publish emits the frame and releases its buffer. The buffer is released in
// every case, including rejection and sink failure.
func (p *Publisher) Publish(frame pipeline.Frame) error {
	if frame.Buffer == nil {
		return ErrNoBuffer
	}
	defer p.release(frame.Buffer)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasLast && frame.PTS <= p.stats.LastPTS {
		p.stats.Rejected++
		return fmt.Errorf("%w: %s after %s", ErrNonMonotonic, frame.PTS, p.stats.LastPTS)
	}

	b := frame.Buffer
	err := p.sink.Emit(ports.Sample{
		Width:         b.Width,
		Height:        b.Height,
		Stride:        b.Stride,
		Pix:           b.Pix,
		PTS:           frame.PTS,
		Discontinuity: frame.Discontinuity,
		Sequence:      frame.Sequence,
	})
	if err != nil {
		p.stats.SinkErrors++
		return fmt.Errorf("failed to emit frame %d: %w", frame.Sequence, err)
	}

	p.hasLast = true
	p.stats.LastPTS = frame.PTS
	p.stats.Published++
	if frame.Discontinuity {
		p.stats.Discontinuity++
	}
	p.logger.Debug("Published frame %d at %s", frame.Sequence, frame.PTS)
	return nil
}

func (p *Publisher) release(b *framepool.Buffer) {
	if err := p.pool.Release(b); err != nil {
		p.logger.Error("Failed to release buffer %d: %v", b.Index(), err)
	}
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
