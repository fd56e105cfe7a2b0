// Package framepool provides a bounded pool of preallocated BGRA frame buffers.
package framepool

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrExhausted is returned by Acquire when every buffer is checked out.
	ErrExhausted = errors.New("framepool: no free buffer")

	// ErrClosed is returned by Acquire after Close.
	ErrClosed = errors.New("framepool: pool closed")

	// ErrDoubleRelease is returned when a buffer is released twice.
	ErrDoubleRelease = errors.New("framepool: buffer released twice")

	// ErrForeignBuffer is returned when a buffer from another pool is released.
	ErrForeignBuffer = errors.New("framepool: buffer does not belong to this pool")
)

// bytesPerPixel is fixed: the pool only hands out 32-bit BGRA buffers.
const bytesPerPixel = 4

// DefaultCapacity is the allocation threshold used when none is configured.
const DefaultCapacity = 5

// Buffer is a fixed-size BGRA pixel buffer.
type Buffer struct {
	Width  int
	Height int
	Stride int
	Pix    []byte

	pool       *Pool
	index      int
	checkedOut bool
}

// Index returns the buffer's slot in its pool, stable for the pool's lifetime.
func (b *Buffer) Index() int {
	return b.index
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Capacity    int
	Outstanding int
	Acquired    uint64
	Exhausted   uint64
}

// Pool hands out at most Capacity buffers at a time. Acquire never blocks.
type Pool struct {
	mu          sync.Mutex
	width       int
	height      int
	capacity    int
	free        []*Buffer
	outstanding int
	closed      bool
	acquired    uint64
	exhausted   uint64
}

// New preallocates capacity buffers of width x height pixels.
func New(width, height, capacity int) (*Pool, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("framepool: invalid dimensions %dx%d", width, height)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("framepool: invalid capacity %d", capacity)
	}

	p := &Pool{
		width:    width,
		height:   height,
		capacity: capacity,
		free:     make([]*Buffer, 0, capacity),
	}
	stride := width * bytesPerPixel
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, &Buffer{
			Width:  width,
			Height: height,
			Stride: stride,
			Pix:    make([]byte, stride*height),
			pool:   p,
			index:  i,
		})
	}
	return p, nil
}

// Acquire checks out a free buffer. It returns ErrExhausted instead of waiting
// when Capacity buffers are already outstanding.
func (p *Pool) Acquire() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	n := len(p.free)
	if n == 0 {
		p.exhausted++
		return nil, ErrExhausted
	}

	b := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	b.checkedOut = true
	p.outstanding++
	p.acquired++
	return b, nil
}

// Release returns a checked-out buffer. Releasing twice or releasing a buffer
// from another pool is reported and leaves the pool untouched.
func (p *Pool) Release(b *Buffer) error {
	if b == nil || b.pool != p {
		return ErrForeignBuffer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !b.checkedOut {
		return ErrDoubleRelease
	}
	b.checkedOut = false
	p.outstanding--

	// A closed pool lets returning buffers go instead of recycling them.
	if p.closed {
		b.Pix = nil
		return nil
	}
	p.free = append(p.free, b)
	return nil
}

// Close stops handing out buffers and drops the free list.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.free = nil
}

// Capacity returns the allocation threshold.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Outstanding returns the number of buffers currently checked out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Capacity:    p.capacity,
		Outstanding: p.outstanding,
		Acquired:    p.acquired,
		Exhausted:   p.exhausted,
	}
}
