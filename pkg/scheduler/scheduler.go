// Package scheduler runs the single frame producer of a device.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/kamishibai/pkg/framepool"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/selection"
	"github.com/user/kamishibai/pkg/stages/composite"
)

var (
	// ErrAlreadyStarted is returned by Start on a running scheduler.
	ErrAlreadyStarted = errors.New("scheduler: already started")

	// ErrStopped is returned by Start after Stop. Schedulers are single use.
	ErrStopped = errors.New("scheduler: stopped")

	errSourceEnded = errors.New("scheduler: tick source ended")
)

const timerMode = "timer"

// FramePublisher receives every produced frame and owns its buffer afterwards.
type FramePublisher interface {
	Publish(frame pipeline.Frame) error
}

// Config holds the collaborators of a Scheduler.
type Config struct {
	Format        pipeline.VideoFormat
	Source        TickSource
	Slot          *selection.Slot
	Fallback      *pipeline.SourceImage // placeholder when nothing is selected
	FallbackColor color.Color           // letterbox margin colour
	Overlay       image.Image           // optional caption layer, drawn last
	Compositor    pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult]
	Pool          *framepool.Pool
	Publisher     FramePublisher
	Clock         ports.Clock
	Logger        ports.Logger

	// Sequence numbers frames. Sharing one counter across schedulers keeps
	// numbering unique over stream restarts.
	Sequence *atomic.Uint64
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Ticks           uint64
	Emitted         uint64
	Dropped         uint64 // ticks skipped because the pool was exhausted
	Discontinuities uint64
	Fallbacks       uint64 // frames built from the placeholder
	Failures        uint64 // compose or publish errors
	Degraded        bool   // upstream ended and the timer took over
}

// Scheduler produces frames on a single goroutine, one tick at a time.
type Scheduler struct {
	cfg    Config
	logger ports.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Touched only by the producer goroutine.
	lastPTS              time.Duration
	hasPTS               bool
	onTimer              bool
	pendingDiscontinuity bool

	ticks           atomic.Uint64
	emitted         atomic.Uint64
	dropped         atomic.Uint64
	discontinuities atomic.Uint64
	fallbacks       atomic.Uint64
	failures        atomic.Uint64
	degraded        atomic.Bool
}

// New creates a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Source == nil || cfg.Pool == nil || cfg.Publisher == nil || cfg.Clock == nil {
		return nil, fmt.Errorf("scheduler: source, pool, publisher and clock are required")
	}
	if cfg.Compositor == nil {
		cfg.Compositor = composite.NewCompositor(cfg.Logger)
	}
	if cfg.Slot == nil {
		cfg.Slot = selection.NewSlot()
	}
	if cfg.FallbackColor == nil {
		cfg.FallbackColor = color.Black
	}
	if cfg.Sequence == nil {
		cfg.Sequence = new(atomic.Uint64)
	}
	return &Scheduler{
		cfg:     cfg,
		logger:  cfg.Logger.WithComponent("scheduler"),
		onTimer: cfg.Source.Mode() == timerMode,
	}, nil
}

// Start opens the tick source and spawns the producer goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err := s.cfg.Source.Open(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open %s tick source: %w", s.cfg.Source.Mode(), err)
	}

	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.run(ctx, ticks)

	s.logger.Info("Producing %s in %s mode", s.cfg.Format, s.cfg.Source.Mode())
	return nil
}

// Stop prevents further ticks and waits for the tick in progress to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if err := s.cfg.Source.Close(); err != nil {
		s.logger.Warn("Failed to close tick source: %v", err)
	}
	s.wg.Wait()

	st := s.Stats()
	s.logger.Info("Producer stopped after %d frames (%d dropped)", st.Emitted, st.Dropped)
}

func (s *Scheduler) run(ctx context.Context, ticks <-chan Tick) {
	defer s.wg.Done()

	// Ticks run to completion even if Stop arrives meanwhile.
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				next, err := s.fallBackToTimer(ctx)
				if err != nil {
					s.logger.Info("Tick source ended")
					return
				}
				ticks = next
				continue
			}
			s.Tick(tickCtx, tick)
		}
	}
}

// fallBackToTimer keeps the stream running at the negotiated cadence after the
// upstream feed ends. The first frame on the timer is a discontinuity.
func (s *Scheduler) fallBackToTimer(ctx context.Context) (<-chan Tick, error) {
	if s.onTimer {
		return nil, errSourceEnded
	}
	ticks, err := NewTicker(s.cfg.Format.FrameDuration).Open(ctx)
	if err != nil {
		return nil, err
	}
	s.onTimer = true
	s.pendingDiscontinuity = true
	s.degraded.Store(true)
	s.logger.Warn("Upstream ended, continuing on timer")
	return ticks, nil
}

// Tick produces at most one frame. It is called by the producer goroutine and
// is exported so the pipeline can be driven step by step.
func (s *Scheduler) Tick(ctx context.Context, tick Tick) {
	s.ticks.Add(1)

	input := s.compositeInput(tick)
	result, err := s.cfg.Compositor.Execute(ctx, input)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("Failed to compose frame: %v", err)
		return
	}

	buf, err := s.cfg.Pool.Acquire()
	if err != nil {
		s.dropped.Add(1)
		if tick.Upstream != nil || tick.Discontinuity {
			// The captured frame is lost; the next frame must say so.
			s.pendingDiscontinuity = true
		}
		if errors.Is(err, framepool.ErrExhausted) {
			s.logger.Warn("Frame buffer pool exhausted, skipping tick")
		} else {
			s.logger.Warn("Failed to acquire frame buffer: %v", err)
		}
		return
	}

	composite.CopyToBGRA(buf.Pix, buf.Stride, result.Image)

	discontinuity := tick.Discontinuity || s.pendingDiscontinuity
	s.pendingDiscontinuity = false
	if discontinuity {
		s.discontinuities.Add(1)
		if tick.Dropped > 0 {
			s.logger.Debug("Upstream dropped %d frames", tick.Dropped)
		}
	}

	frame := pipeline.Frame{
		Buffer:        buf,
		PTS:           s.nextPTS(),
		Discontinuity: discontinuity,
		Sequence:      s.cfg.Sequence.Add(1),
	}
	if err := s.cfg.Publisher.Publish(frame); err != nil {
		s.failures.Add(1)
		s.logger.Warn("Failed to publish frame %d: %v", frame.Sequence, err)
		return
	}
	s.emitted.Add(1)
}

func (s *Scheduler) compositeInput(tick Tick) pipeline.CompositeInput {
	input := pipeline.CompositeInput{
		Target:          s.cfg.Format.Dimension(),
		BackgroundColor: s.cfg.FallbackColor,
	}

	selected := s.cfg.Slot.Current()
	switch {
	case tick.Upstream != nil:
		input.Background = tick.Upstream
		if selected != nil {
			input.Overlays = append(input.Overlays, selected.Image)
		}
	case selected != nil:
		input.Background = selected
	default:
		input.Background = s.cfg.Fallback
		s.fallbacks.Add(1)
	}

	if s.cfg.Overlay != nil {
		input.Overlays = append(input.Overlays, s.cfg.Overlay)
	}
	return input
}

// nextPTS stamps host time, nudged forward when the clock did not advance.
func (s *Scheduler) nextPTS() time.Duration {
	pts := s.cfg.Clock.Now()
	if s.hasPTS && pts <= s.lastPTS {
		pts = s.lastPTS + time.Nanosecond
	}
	s.lastPTS = pts
	s.hasPTS = true
	return pts
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:           s.ticks.Load(),
		Emitted:         s.emitted.Load(),
		Dropped:         s.dropped.Load(),
		Discontinuities: s.discontinuities.Load(),
		Fallbacks:       s.fallbacks.Load(),
		Failures:        s.failures.Load(),
		Degraded:        s.degraded.Load(),
	}
}
