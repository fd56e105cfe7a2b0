package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
)

// Tick is one request to produce a frame.
type Tick struct {
	// Upstream is the captured frame to use as background. Nil in timer mode.
	Upstream *pipeline.SourceImage

	// Discontinuity marks that frames were lost before this tick.
	Discontinuity bool

	// Dropped is the number of upstream frames lost before this tick.
	Dropped int
}

// TickSource drives a Scheduler. The channel returned by Open is closed when the
// source ends or ctx is cancelled.
type TickSource interface {
	Open(ctx context.Context) (<-chan Tick, error)
	Close() error
	Mode() string
}

// =============================================================================
// Periodic timer
// =============================================================================

type periodicSource struct {
	interval time.Duration
}

// NewTicker returns a source that ticks once immediately and then every interval.
// The cadence is anchored to the first tick; a slow tick skips rather than
// shifts the following ones.
func NewTicker(interval time.Duration) TickSource {
	return &periodicSource{interval: interval}
}

func (p *periodicSource) Mode() string { return timerMode }

func (p *periodicSource) Open(ctx context.Context) (<-chan Tick, error) {
	out := make(chan Tick)
	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		select {
		case out <- Tick{}:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- Tick{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *periodicSource) Close() error { return nil }

// =============================================================================
// Upstream capture
// =============================================================================

type upstreamSource struct {
	capture ports.UpstreamCapture

	mu     sync.Mutex
	opened bool
}

// NewUpstream returns a source that ticks once per captured frame. Events that
// only report drops are folded into the next frame as a discontinuity.
func NewUpstream(capture ports.UpstreamCapture) TickSource {
	return &upstreamSource{capture: capture}
}

func (u *upstreamSource) Mode() string { return "upstream" }

func (u *upstreamSource) Open(ctx context.Context) (<-chan Tick, error) {
	events, err := u.capture.Start(ctx)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.opened = true
	u.mu.Unlock()

	out := make(chan Tick)
	go func() {
		defer close(out)

		dropped := 0
		for {
			var ev ports.CaptureEvent
			var ok bool
			select {
			case <-ctx.Done():
				return
			case ev, ok = <-events:
				if !ok {
					return
				}
			}

			dropped += ev.Dropped
			if ev.Image == nil {
				continue
			}

			tick := Tick{
				Upstream:      pipeline.NewSourceImage(ev.Image, pipeline.OriginUpstream, "upstream"),
				Discontinuity: dropped > 0,
				Dropped:       dropped,
			}
			select {
			case out <- tick:
				dropped = 0
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (u *upstreamSource) Close() error {
	u.mu.Lock()
	opened := u.opened
	u.opened = false
	u.mu.Unlock()
	if !opened {
		return nil
	}
	return u.capture.Stop()
}
