package summarizer

import (
	"time"

	"github.com/user/kamishibai/pkg/device"
)

// Summary contains everything collected during one streaming session.
type Summary struct {
	GeneratedAt time.Time

	Device  DeviceInfo
	Session SessionInfo
	Frames  FrameInfo
	Output  OutputInfo
}

// DeviceInfo describes the device that produced the stream.
type DeviceInfo struct {
	Name   string
	Format string // e.g. "1920x1080 BGRA @ 10.00 fps"
	Mode   string // "timer" or "upstream"
	Source string // upstream file or URL, empty in timer mode
}

// SessionInfo contains lifecycle counters.
type SessionInfo struct {
	DurationMs    int
	Consumers     int
	Constructions int
	Teardowns     int
}

// FrameInfo contains frame production counters.
type FrameInfo struct {
	Ticks           uint64
	Emitted         uint64
	Dropped         uint64
	Discontinuities uint64
	Fallbacks       uint64
	Failures        uint64
	SinkErrors      uint64
	PoolCapacity    int
	PoolExhausted   uint64
}

// OutputInfo describes where frames went.
type OutputInfo struct {
	Sink     string
	Path     string
	FileSize int64
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithDevice sets device information.
func (b *Builder) WithDevice(info DeviceInfo) *Builder {
	b.summary.Device = info
	return b
}

// WithDuration sets how long the session ran.
func (b *Builder) WithDuration(d time.Duration) *Builder {
	b.summary.Session.DurationMs = int(d.Milliseconds())
	return b
}

// WithConsumers sets the number of consumers that joined the stream.
func (b *Builder) WithConsumers(n int) *Builder {
	b.summary.Session.Consumers = n
	return b
}

// WithStats copies lifecycle, scheduler, publisher and pool counters.
func (b *Builder) WithStats(st device.Stats) *Builder {
	b.summary.Session.Constructions = st.Lifecycle.Constructions
	b.summary.Session.Teardowns = st.Lifecycle.Teardowns
	b.summary.Frames = FrameInfo{
		Ticks:           st.Scheduler.Ticks,
		Emitted:         st.Scheduler.Emitted,
		Dropped:         st.Scheduler.Dropped,
		Discontinuities: st.Scheduler.Discontinuities,
		Fallbacks:       st.Scheduler.Fallbacks,
		Failures:        st.Scheduler.Failures,
		SinkErrors:      st.Publisher.SinkErrors,
		PoolCapacity:    st.Pool.Capacity,
		PoolExhausted:   st.Pool.Exhausted,
	}
	return b
}

// WithOutput sets output information.
func (b *Builder) WithOutput(out OutputInfo) *Builder {
	b.summary.Output = out
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
