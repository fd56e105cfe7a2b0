// Package device assembles the frame pipeline behind a virtual camera device.
package device

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/user/kamishibai/pkg/framepool"
	"github.com/user/kamishibai/pkg/lifecycle"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/publisher"
	"github.com/user/kamishibai/pkg/scheduler"
	"github.com/user/kamishibai/pkg/selection"
	"github.com/user/kamishibai/pkg/stages/composite"
)

var (
	// ErrFormatNegotiation is returned when the requested format cannot back a stream.
	ErrFormatNegotiation = errors.New("device: format negotiation failed")

	// ErrInvalidFormatIndex is returned when selecting a format the device does not offer.
	ErrInvalidFormatIndex = errors.New("device: invalid format index")

	// ErrClosed is returned by StartStream after Close.
	ErrClosed = errors.New("device: closed")
)

// Mode selects how frames are paced.
type Mode string

const (
	// ModeTimer produces frames on a fixed cadence from the selected image.
	ModeTimer Mode = "timer"
	// ModeUpstream produces one frame per upstream capture event.
	ModeUpstream Mode = "upstream"
)

// Default device identity.
const (
	DefaultName         = "Kamishibai Camera"
	DefaultModel        = "Kamishibai Camera Model"
	DefaultManufacturer = "Kamishibai Camera Manufacturer"
	TransportVirtual    = "virtual"
)

// Config describes one device.
type Config struct {
	Name          string
	Model         string
	Manufacturer  string
	Format        pipeline.VideoFormat
	PoolCapacity  int
	FallbackColor color.Color
	Mode          Mode
}

// DefaultConfig returns the stock 1920x1080 BGRA timer-driven device.
func DefaultConfig() Config {
	return Config{
		Name:          DefaultName,
		Model:         DefaultModel,
		Manufacturer:  DefaultManufacturer,
		Format:        pipeline.DefaultVideoFormat(),
		PoolCapacity:  framepool.DefaultCapacity,
		FallbackColor: color.RGBA{R: 255, A: 255},
		Mode:          ModeTimer,
	}
}

// Dependencies are the outside collaborators of a device.
type Dependencies struct {
	Sink     ports.StreamSink
	Renderer ports.Renderer
	Clock    ports.Clock
	Logger   ports.Logger
	Capture  ports.UpstreamCapture // required in ModeUpstream
	Overlay  image.Image           // optional caption layer
}

// Stats aggregates counters across every stream the device has run.
type Stats struct {
	Lifecycle lifecycle.Stats
	Scheduler scheduler.Stats
	Publisher publisher.Stats
	Pool      framepool.Stats
}

// Device is a virtual camera with one stream at one fixed format.
type Device struct {
	cfg    Config
	deps   Dependencies
	logger ports.Logger

	pool       *framepool.Pool
	publisher  *publisher.Publisher
	compositor *composite.Compositor
	slot       *selection.Slot
	fallback   *pipeline.SourceImage
	lifecycle  *lifecycle.Lifecycle
	sequence   atomic.Uint64

	mu      sync.Mutex
	current *scheduler.Scheduler
	totals  scheduler.Stats
	closed  bool
}

// New validates the format and builds the pipeline. No frames are produced
// until StartStream is called.
func New(cfg Config, deps Dependencies) (*Device, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatNegotiation, err)
	}
	if cfg.PoolCapacity <= 0 {
		cfg.PoolCapacity = framepool.DefaultCapacity
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTimer
	}
	if cfg.Mode != ModeTimer && cfg.Mode != ModeUpstream {
		return nil, fmt.Errorf("device: unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeUpstream && deps.Capture == nil {
		return nil, fmt.Errorf("device: upstream mode requires a capture source")
	}
	if deps.Sink == nil || deps.Renderer == nil || deps.Clock == nil || deps.Logger == nil {
		return nil, fmt.Errorf("device: sink, renderer, clock and logger are required")
	}
	if cfg.FallbackColor == nil {
		cfg.FallbackColor = DefaultConfig().FallbackColor
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	pool, err := framepool.New(cfg.Format.Width, cfg.Format.Height, cfg.PoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatNegotiation, err)
	}

	logger := deps.Logger.WithComponent("device")
	placeholder := deps.Renderer.CreateCanvas(cfg.Format.Width, cfg.Format.Height, cfg.FallbackColor).ToImage()

	d := &Device{
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
		pool:       pool,
		publisher:  publisher.New(deps.Sink, pool, deps.Logger),
		compositor: composite.NewCompositor(deps.Logger),
		slot:       selection.NewSlot(),
		fallback:   pipeline.NewSourceImage(placeholder, pipeline.OriginFallback, "placeholder"),
	}
	d.lifecycle = lifecycle.New(d.newProducer, deps.Logger)

	logger.Info("Device %s ready: %s", cfg.Name, cfg.Format)
	return d, nil
}

// producer ties one scheduler run to the device's running totals.
type producer struct {
	*scheduler.Scheduler
	device *Device
}

// Start runs the scheduler and only then makes it the device's current one.
func (p *producer) Start() error {
	if err := p.Scheduler.Start(); err != nil {
		return err
	}
	p.device.mu.Lock()
	p.device.current = p.Scheduler
	p.device.mu.Unlock()
	return nil
}

func (p *producer) Stop() {
	p.Scheduler.Stop()
	p.device.retire(p.Scheduler)
}

func (d *Device) newProducer() (lifecycle.Producer, error) {
	var source scheduler.TickSource
	switch d.cfg.Mode {
	case ModeUpstream:
		source = scheduler.NewUpstream(d.deps.Capture)
	default:
		source = scheduler.NewTicker(d.cfg.Format.FrameDuration)
	}

	s, err := scheduler.New(scheduler.Config{
		Format:        d.cfg.Format,
		Source:        source,
		Slot:          d.slot,
		Fallback:      d.fallback,
		FallbackColor: d.cfg.FallbackColor,
		Overlay:       d.deps.Overlay,
		Compositor:    d.compositor,
		Pool:          d.pool,
		Publisher:     d.publisher,
		Clock:         d.deps.Clock,
		Logger:        d.deps.Logger,
		Sequence:      &d.sequence,
	})
	if err != nil {
		return nil, err
	}
	return &producer{Scheduler: s, device: d}, nil
}

func (d *Device) retire(s *scheduler.Scheduler) {
	st := s.Stats()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.totals = addStats(d.totals, st)
	if d.current == s {
		d.current = nil
	}
}

// StartStream registers a consumer. The first consumer starts frame production.
func (d *Device) StartStream() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return d.lifecycle.Start()
}

// StopStream unregisters a consumer. The last consumer stops frame production.
func (d *Device) StopStream() {
	d.lifecycle.Stop()
}

// Selection returns the slot the producer reads the selected image from.
func (d *Device) Selection() *selection.Slot {
	return d.slot
}

// Stats returns counters across all streams, including the running one.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	sched := d.totals
	if d.current != nil {
		sched = addStats(sched, d.current.Stats())
	}
	d.mu.Unlock()

	return Stats{
		Lifecycle: d.lifecycle.Stats(),
		Scheduler: sched,
		Publisher: d.publisher.Stats(),
		Pool:      d.pool.Stats(),
	}
}

// Close stops any running stream and releases the pool and sink.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.lifecycle.Shutdown()
	d.pool.Close()
	if err := d.deps.Sink.Close(); err != nil {
		return fmt.Errorf("failed to close sink: %w", err)
	}
	d.logger.Info("Device %s closed", d.cfg.Name)
	return nil
}

// Name returns the localized device name.
func (d *Device) Name() string { return d.cfg.Name }

// Model returns the device model string.
func (d *Device) Model() string {
	if d.cfg.Model == "" {
		return DefaultModel
	}
	return d.cfg.Model
}

// Manufacturer returns the provider manufacturer string.
func (d *Device) Manufacturer() string {
	if d.cfg.Manufacturer == "" {
		return DefaultManufacturer
	}
	return d.cfg.Manufacturer
}

// Transport reports how the device is attached to the host.
func (d *Device) Transport() string { return TransportVirtual }

// StreamName returns the name of the device's single video stream.
func (d *Device) StreamName() string { return d.cfg.Name + ".Video" }

// Mode returns the pacing mode.
func (d *Device) Mode() Mode { return d.cfg.Mode }

// Formats lists the formats the stream offers. There is exactly one.
func (d *Device) Formats() []pipeline.VideoFormat {
	return []pipeline.VideoFormat{d.cfg.Format}
}

// ActiveFormatIndex returns the index of the active format.
func (d *Device) ActiveFormatIndex() int { return 0 }

// SetActiveFormatIndex accepts only the single offered format.
func (d *Device) SetActiveFormatIndex(i int) error {
	if i != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFormatIndex, i)
	}
	return nil
}

func addStats(a, b scheduler.Stats) scheduler.Stats {
	return scheduler.Stats{
		Ticks:           a.Ticks + b.Ticks,
		Emitted:         a.Emitted + b.Emitted,
		Dropped:         a.Dropped + b.Dropped,
		Discontinuities: a.Discontinuities + b.Discontinuities,
		Fallbacks:       a.Fallbacks + b.Fallbacks,
		Failures:        a.Failures + b.Failures,
		Degraded:        a.Degraded || b.Degraded,
	}
}
