// Package mp4capture replays a recorded Motion-JPEG MP4 as a live upstream feed.
package mp4capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/ports"
)

// ErrNoSamples is returned by Start for a file without video samples.
var ErrNoSamples = errors.New("mp4capture: no video samples")

// Config controls replay.
type Config struct {
	Path   string
	Loop   bool // restart from the first sample at the end
	Buffer int  // events queued before frames are dropped
	Speed  float64
}

// Capture implements ports.UpstreamCapture by pacing the samples of an MP4 file
// at their recorded timestamps. When the consumer falls behind, frames are
// dropped and reported on the next delivered event.
type Capture struct {
	cfg      Config
	fs       ports.FileSystem
	renderer ports.Renderer
	logger   ports.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a replay capture.
func New(cfg Config, fs ports.FileSystem, renderer ports.Renderer, logger ports.Logger) *Capture {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 2
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &Capture{
		cfg:      cfg,
		fs:       fs,
		renderer: renderer,
		logger:   logger.WithComponent("mp4capture"),
	}
}

// Start reads the file and begins delivery.
func (c *Capture) Start(ctx context.Context) (<-chan ports.CaptureEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil, fmt.Errorf("mp4capture: already started")
	}

	data, err := c.fs.ReadFile(c.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.cfg.Path, err)
	}
	samples, err := ReadSamples(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	c.logger.Info("Replaying %d frames from %s", len(samples), c.cfg.Path)

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan ports.CaptureEvent, c.cfg.Buffer)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		defer close(out)
		c.replay(ctx, samples, out)
	}()
	return out, nil
}

func (c *Capture) replay(ctx context.Context, samples []Sample, out chan<- ports.CaptureEvent) {
	start := time.Now()
	var offsetMs, dropped int

	for {
		for _, s := range samples {
			due := start.Add(time.Duration(float64(offsetMs+s.TimestampMs) / c.cfg.Speed * float64(time.Millisecond)))
			timer := time.NewTimer(time.Until(due))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			img, err := c.renderer.DecodeImage(s.Data, ports.FormatJPEG)
			if err != nil {
				c.logger.Warn("Skipping undecodable frame at %d ms: %v", s.TimestampMs, err)
				dropped++
				continue
			}

			ev := ports.CaptureEvent{Image: img, TimestampMs: offsetMs + s.TimestampMs, Dropped: dropped}
			select {
			case out <- ev:
				dropped = 0
			default:
				dropped++
			}
		}

		if !c.cfg.Loop {
			// Report trailing drops before ending.
			if dropped > 0 {
				select {
				case out <- ports.CaptureEvent{Dropped: dropped}:
				case <-ctx.Done():
				}
			}
			c.logger.Info("Replay finished")
			return
		}
		last := samples[len(samples)-1]
		offsetMs += last.TimestampMs + last.DurationMs
	}
}

// Stop ends delivery and waits for the replay goroutine. Start may be called again.
func (c *Capture) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Ensure Capture implements ports.UpstreamCapture
var _ ports.UpstreamCapture = (*Capture)(nil)
