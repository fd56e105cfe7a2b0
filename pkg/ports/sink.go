package ports

import "time"

// Sample is one frame handed to the downstream stream sink.
// Pix holds Height rows of Stride bytes in 32-bit BGRA order. The slice is only
// valid for the duration of Emit; sinks must copy what they keep.
type Sample struct {
	Width         int
	Height        int
	Stride        int
	Pix           []byte
	PTS           time.Duration
	Discontinuity bool
	Sequence      uint64
}

// StreamSink is the single output of a virtual camera device.
type StreamSink interface {
	// Emit delivers one sample. It is called from the producer goroutine only.
	Emit(s Sample) error

	// Close flushes and releases the sink.
	Close() error
}
