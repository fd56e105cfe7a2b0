package scheduler

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/kamishibai/pkg/framepool"
	"github.com/user/kamishibai/pkg/mocks"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/publisher"
	"github.com/user/kamishibai/pkg/selection"
)

var red = color.RGBA{R: 255, A: 255}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rc := color.RGBAModel.Convert(c).(color.RGBA)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = rc.R, rc.G, rc.B, rc.A
	}
	return img
}

type harness struct {
	sched *Scheduler
	pool  *framepool.Pool
	sink  *mocks.StreamSink
	slot  *selection.Slot
	clock *mocks.Clock
	log   *mocks.Logger
}

func newHarness(t *testing.T, source TickSource, capacity int, pub FramePublisher) *harness {
	t.Helper()
	format := pipeline.NewVideoFormat(16, 8, 100)
	pool, err := framepool.New(format.Width, format.Height, capacity)
	if err != nil {
		t.Fatalf("framepool.New: %v", err)
	}
	logger := mocks.NewLogger()
	sink := mocks.NewStreamSink()
	if pub == nil {
		pub = publisher.New(sink, pool, logger)
	}
	h := &harness{
		pool:  pool,
		sink:  sink,
		slot:  selection.NewSlot(),
		clock: mocks.NewClock(time.Second, 10*time.Millisecond),
		log:   logger,
	}
	h.sched, err = New(Config{
		Format:        format,
		Source:        source,
		Slot:          h.slot,
		Fallback:      pipeline.NewSourceImage(solid(4, 4, red), pipeline.OriginFallback, "placeholder"),
		FallbackColor: red,
		Pool:          pool,
		Publisher:     pub,
		Clock:         h.clock,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

// bgra returns the pixel at x,y of a BGRA sample as RGBA.
func bgra(s ports.Sample, x, y int) color.RGBA {
	i := y*s.Stride + x*4
	return color.RGBA{B: s.Pix[i], G: s.Pix[i+1], R: s.Pix[i+2], A: s.Pix[i+3]}
}

func TestTick_FallbackWhenNothingSelected(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	h.sched.Tick(context.Background(), Tick{})

	samples := h.sink.Snapshot()
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	for _, p := range [][2]int{{0, 0}, {15, 7}, {8, 4}} {
		if got := bgra(samples[0], p[0], p[1]); got != red {
			t.Errorf("pixel %v: expected red, got %v", p, got)
		}
	}
	if st := h.sched.Stats(); st.Fallbacks != 1 || st.Emitted != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if h.pool.Outstanding() != 0 {
		t.Error("buffer not returned to pool")
	}
}

func TestTick_SelectedImageLetterboxed(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	blue := color.RGBA{B: 255, A: 255}
	// 32x8 is wider than 16x8: fit by width to 16x4, centred with 2 rows of margin.
	h.slot.Set(pipeline.NewSourceImage(solid(32, 8, blue), pipeline.OriginSelected, "wide"))

	h.sched.Tick(context.Background(), Tick{})
	s := h.sink.Snapshot()[0]

	if got := bgra(s, 8, 0); got != red {
		t.Errorf("top margin: expected red, got %v", got)
	}
	if got := bgra(s, 8, 7); got != red {
		t.Errorf("bottom margin: expected red, got %v", got)
	}
	if got := bgra(s, 8, 4); got != blue {
		t.Errorf("content: expected blue, got %v", got)
	}
	if h.sched.Stats().Fallbacks != 0 {
		t.Error("selected image must not count as fallback")
	}
}

func TestTick_SelectionClearedFallsBack(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	green := color.RGBA{G: 255, A: 255}
	h.slot.Set(pipeline.NewSourceImage(solid(16, 8, green), pipeline.OriginSelected, "green"))
	h.sched.Tick(context.Background(), Tick{})

	// What the watcher does when a new selection fails to decode.
	h.slot.Clear()
	h.sched.Tick(context.Background(), Tick{})

	s := h.sink.Snapshot()
	if got := bgra(s[0], 1, 1); got != green {
		t.Errorf("first frame: expected green, got %v", got)
	}
	if got := bgra(s[1], 1, 1); got != red {
		t.Errorf("second frame: expected fallback red, got %v", got)
	}
}

// holdingPublisher keeps buffers checked out, simulating a slow consumer.
type holdingPublisher struct {
	mu     sync.Mutex
	frames []pipeline.Frame
}

func (p *holdingPublisher) Publish(f pipeline.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
	return nil
}

func TestTick_PoolExhaustionSkipsTick(t *testing.T) {
	pub := &holdingPublisher{}
	h := newHarness(t, NewTicker(time.Hour), 2, pub)

	for i := 0; i < 3; i++ {
		h.sched.Tick(context.Background(), Tick{})
	}

	if len(pub.frames) != 2 {
		t.Fatalf("expected 2 published frames, got %d", len(pub.frames))
	}
	st := h.sched.Stats()
	if st.Ticks != 3 || st.Emitted != 2 || st.Dropped != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if h.log.Count(ports.LevelWarn, "exhausted") != 1 {
		t.Errorf("expected exhaustion warning, got %+v", h.log.Entries())
	}

	// Releasing a buffer lets the stream continue.
	_ = h.pool.Release(pub.frames[0].Buffer)
	h.sched.Tick(context.Background(), Tick{})
	if len(pub.frames) != 3 {
		t.Errorf("expected stream to recover, got %d frames", len(pub.frames))
	}
}

func TestTick_PTSStrictlyIncreasing(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	h.clock.Step = 0 // host clock does not advance between ticks

	for i := 0; i < 5; i++ {
		h.sched.Tick(context.Background(), Tick{})
	}
	h.clock.Set(0) // and then jumps backwards
	h.sched.Tick(context.Background(), Tick{})

	samples := h.sink.Snapshot()
	if len(samples) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].PTS <= samples[i-1].PTS {
			t.Errorf("PTS[%d]=%s not after PTS[%d]=%s", i, samples[i].PTS, i-1, samples[i-1].PTS)
		}
		if samples[i].Sequence != samples[i-1].Sequence+1 {
			t.Errorf("sequence gap at %d", i)
		}
	}
}

func TestTick_UpstreamBackgroundAndOverlay(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	half := solid(16, 8, color.Transparent)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			half.Set(x, y, color.RGBA{G: 255, A: 255})
		}
	}
	h.slot.Set(pipeline.NewSourceImage(half, pipeline.OriginSelected, "frame-art"))

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	up := pipeline.NewSourceImage(solid(16, 8, white), pipeline.OriginUpstream, "upstream")
	h.sched.Tick(context.Background(), Tick{Upstream: up})

	s := h.sink.Snapshot()[0]
	if got := bgra(s, 2, 4); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("overlay area: expected green, got %v", got)
	}
	if got := bgra(s, 13, 4); got != white {
		t.Errorf("upstream area: expected white, got %v", got)
	}
}

func TestTick_DiscontinuityCarriedOverDroppedTick(t *testing.T) {
	pub := &holdingPublisher{}
	h := newHarness(t, NewTicker(time.Hour), 1, pub)
	up := pipeline.NewSourceImage(solid(16, 8, red), pipeline.OriginUpstream, "upstream")

	h.sched.Tick(context.Background(), Tick{Upstream: up})
	h.sched.Tick(context.Background(), Tick{Upstream: up}) // dropped: pool exhausted
	_ = h.pool.Release(pub.frames[0].Buffer)
	h.sched.Tick(context.Background(), Tick{Upstream: up})

	if len(pub.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(pub.frames))
	}
	if pub.frames[0].Discontinuity {
		t.Error("first frame should be continuous")
	}
	if !pub.frames[1].Discontinuity {
		t.Error("frame after a lost upstream frame must be a discontinuity")
	}
}

func TestScheduler_TimerModeRunsAndStops(t *testing.T) {
	h := newHarness(t, NewTicker(2*time.Millisecond), 3, nil)
	if err := h.sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.sched.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	deadline := time.After(2 * time.Second)
	for h.sink.Count() < 3 {
		select {
		case <-deadline:
			t.Fatal("timer mode produced too few frames")
		case <-time.After(time.Millisecond):
		}
	}

	h.sched.Stop()
	n := h.sink.Count()
	time.Sleep(20 * time.Millisecond)
	if h.sink.Count() != n {
		t.Error("frames emitted after Stop returned")
	}
	if h.pool.Outstanding() != 0 {
		t.Errorf("expected all buffers returned, %d outstanding", h.pool.Outstanding())
	}

	h.sched.Stop()
	if err := h.sched.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

// blockingPublisher parks inside Publish until released.
type blockingPublisher struct {
	entered chan struct{}
	release chan struct{}
	pool    *framepool.Pool
	done    int
	mu      sync.Mutex
}

func (p *blockingPublisher) Publish(f pipeline.Frame) error {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-p.release
	p.mu.Lock()
	p.done++
	p.mu.Unlock()
	return p.pool.Release(f.Buffer)
}

func TestScheduler_StopWaitsForInFlightTick(t *testing.T) {
	pub := &blockingPublisher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := newHarness(t, NewTicker(time.Millisecond), 2, pub)
	pub.pool = h.pool

	if err := h.sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-pub.entered

	stopped := make(chan struct{})
	go func() {
		h.sched.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(pub.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the tick completed")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.done == 0 {
		t.Error("in-flight tick was abandoned")
	}
}

func TestScheduler_UpstreamMode(t *testing.T) {
	capture := mocks.NewUpstreamCapture(8)
	h := newHarness(t, NewUpstream(capture), 3, nil)
	if err := h.sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	img := solid(16, 8, color.White)
	capture.Send(ports.CaptureEvent{Image: img, TimestampMs: 0})
	capture.Send(ports.CaptureEvent{Dropped: 2})
	capture.Send(ports.CaptureEvent{Image: img, TimestampMs: 100, Dropped: 1})
	capture.Send(ports.CaptureEvent{Image: img, TimestampMs: 133})

	deadline := time.After(2 * time.Second)
	for h.sink.Count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 frames, got %d", h.sink.Count())
		case <-time.After(time.Millisecond):
		}
	}
	h.sched.Stop()

	samples := h.sink.Snapshot()
	want := []bool{false, true, false}
	for i, w := range want {
		if samples[i].Discontinuity != w {
			t.Errorf("frame %d: discontinuity expected %v", i, w)
		}
	}
	if capture.Stops != 1 {
		t.Errorf("expected capture stopped once, got %d", capture.Stops)
	}
	if h.sched.Stats().Fallbacks != 0 {
		t.Error("upstream frames must not use the placeholder")
	}
}

func TestScheduler_UpstreamStartFailure(t *testing.T) {
	capture := mocks.NewUpstreamCapture(1)
	capture.StartFunc = func(ctx context.Context) error { return errors.New("no device") }
	h := newHarness(t, NewUpstream(capture), 1, nil)

	if err := h.sched.Start(); err == nil {
		t.Fatal("expected start error")
	}
	h.sched.Stop()
	if capture.Stops != 0 {
		t.Error("capture that never started must not be stopped")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Logger: mocks.NewLogger()}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestTick_ComposeFailureSkipsFrame(t *testing.T) {
	h := newHarness(t, NewTicker(time.Hour), 2, nil)
	h.sched.cfg.Compositor = pipeline.StageFunc[pipeline.CompositeInput, pipeline.CompositeResult](
		func(ctx context.Context, in pipeline.CompositeInput) (pipeline.CompositeResult, error) {
			return pipeline.CompositeResult{}, errors.New("out of memory")
		})

	h.sched.Tick(context.Background(), Tick{})

	if h.sink.Count() != 0 {
		t.Error("expected no sample after a compose failure")
	}
	if st := h.sched.Stats(); st.Failures != 1 || st.Emitted != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	if h.pool.Outstanding() != 0 {
		t.Error("no buffer should be held after a compose failure")
	}
	if h.log.Count(ports.LevelError, "Failed to compose frame") != 1 {
		t.Error("expected compose failure to be logged")
	}
}

func TestTick_SharedSequenceSpansSchedulers(t *testing.T) {
	var seq atomic.Uint64
	var samples []ports.Sample
	for run := 0; run < 2; run++ {
		h := newHarness(t, NewTicker(time.Hour), 2, nil)
		h.sched.cfg.Sequence = &seq
		for i := 0; i < 3; i++ {
			h.sched.Tick(context.Background(), Tick{})
		}
		samples = append(samples, h.sink.Snapshot()...)
	}

	for i, s := range samples {
		if s.Sequence != uint64(i+1) {
			t.Errorf("frame %d: expected sequence %d, got %d", i, i+1, s.Sequence)
		}
	}
}
