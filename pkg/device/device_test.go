package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/user/kamishibai/pkg/lifecycle"
	"github.com/user/kamishibai/pkg/mocks"
	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/selection"
)

type testDevice struct {
	dev   *Device
	sink  *mocks.StreamSink
	log   *mocks.Logger
	clock *mocks.Clock
}

func newTestDevice(t *testing.T, mutate func(*Config, *Dependencies)) *testDevice {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Format = pipeline.NewVideoFormat(16, 8, 500)
	td := &testDevice{
		sink:  mocks.NewStreamSink(),
		log:   mocks.NewLogger(),
		clock: mocks.NewClock(0, time.Millisecond),
	}
	deps := Dependencies{
		Sink:     td.sink,
		Renderer: &mocks.Renderer{},
		Clock:    td.clock,
		Logger:   td.log,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	dev, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	td.dev = dev
	t.Cleanup(func() { _ = dev.Close() })
	return td
}

func waitFrames(t *testing.T, sink *mocks.StreamSink, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for sink.Count() < n {
		select {
		case <-deadline:
			t.Fatalf("expected at least %d frames, got %d", n, sink.Count())
		case <-time.After(time.Millisecond):
		}
	}
}

func firstPixel(s ports.Sample) color.RGBA {
	return color.RGBA{B: s.Pix[0], G: s.Pix[1], R: s.Pix[2], A: s.Pix[3]}
}

func TestNew_FormatNegotiation(t *testing.T) {
	tests := []struct {
		name   string
		format pipeline.VideoFormat
	}{
		{"zero width", pipeline.NewVideoFormat(0, 1080, 10)},
		{"negative height", pipeline.NewVideoFormat(1920, -1, 10)},
		{"zero frame rate", pipeline.NewVideoFormat(1920, 1080, 0)},
		{"unknown pixel format", pipeline.VideoFormat{Width: 4, Height: 4, PixelFormat: "YUV", FrameDuration: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Format = tt.format
			_, err := New(cfg, Dependencies{
				Sink:     mocks.NewStreamSink(),
				Renderer: &mocks.Renderer{},
				Clock:    mocks.NewClock(0, time.Millisecond),
				Logger:   mocks.NewLogger(),
			})
			if !errors.Is(err, ErrFormatNegotiation) {
				t.Errorf("expected ErrFormatNegotiation, got %v", err)
			}
		})
	}
}

func TestNew_UpstreamRequiresCapture(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeUpstream
	_, err := New(cfg, Dependencies{
		Sink:     mocks.NewStreamSink(),
		Renderer: &mocks.Renderer{},
		Clock:    mocks.NewClock(0, time.Millisecond),
		Logger:   mocks.NewLogger(),
	})
	if err == nil {
		t.Fatal("expected error without capture")
	}
}

func TestDevice_Properties(t *testing.T) {
	td := newTestDevice(t, nil)
	d := td.dev

	if d.Name() != "Kamishibai Camera" {
		t.Errorf("unexpected name %q", d.Name())
	}
	if d.Model() != "Kamishibai Camera Model" {
		t.Errorf("unexpected model %q", d.Model())
	}
	if d.Manufacturer() != "Kamishibai Camera Manufacturer" {
		t.Errorf("unexpected manufacturer %q", d.Manufacturer())
	}
	if d.StreamName() != "Kamishibai Camera.Video" {
		t.Errorf("unexpected stream name %q", d.StreamName())
	}
	if d.Transport() != TransportVirtual {
		t.Errorf("unexpected transport %q", d.Transport())
	}
	if len(d.Formats()) != 1 || d.ActiveFormatIndex() != 0 {
		t.Error("device must offer exactly one active format")
	}
	if err := d.SetActiveFormatIndex(0); err != nil {
		t.Errorf("index 0 should be accepted: %v", err)
	}
	if err := d.SetActiveFormatIndex(1); !errors.Is(err, ErrInvalidFormatIndex) {
		t.Errorf("expected ErrInvalidFormatIndex, got %v", err)
	}
}

func TestDevice_TwoConsumersShareOneProducer(t *testing.T) {
	td := newTestDevice(t, nil)
	d := td.dev

	if err := d.StartStream(); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := d.StartStream(); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	waitFrames(t, td.sink, 3)

	d.StopStream()
	if d.Stats().Lifecycle.State != lifecycle.Active {
		t.Fatal("stream must keep running while a consumer remains")
	}
	d.StopStream()

	st := d.Stats()
	if st.Lifecycle.Constructions != 1 || st.Lifecycle.Teardowns != 1 {
		t.Errorf("expected 1 construction and 1 teardown, got %+v", st.Lifecycle)
	}
	if st.Lifecycle.State != lifecycle.Idle {
		t.Errorf("expected idle, got %s", st.Lifecycle.State)
	}
	if st.Pool.Outstanding != 0 {
		t.Errorf("expected all buffers returned, got %d", st.Pool.Outstanding)
	}
	if st.Scheduler.Emitted != uint64(td.sink.Count()) {
		t.Errorf("emitted %d but sink saw %d", st.Scheduler.Emitted, td.sink.Count())
	}

	// Fallback colour fills the frame when nothing is selected.
	if got := firstPixel(td.sink.Snapshot()[0]); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("expected red placeholder, got %v", got)
	}
}

func TestDevice_RestartKeepsTimestampsIncreasing(t *testing.T) {
	td := newTestDevice(t, nil)
	d := td.dev

	for i := 0; i < 2; i++ {
		if err := d.StartStream(); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		waitFrames(t, td.sink, 3*(i+1))
		d.StopStream()
	}

	samples := td.sink.Snapshot()
	for i := 1; i < len(samples); i++ {
		if samples[i].PTS <= samples[i-1].PTS {
			t.Fatalf("PTS not increasing at %d", i)
		}
	}
	st := d.Stats()
	if st.Lifecycle.Constructions != 2 {
		t.Errorf("expected 2 constructions, got %d", st.Lifecycle.Constructions)
	}
	if st.Scheduler.Emitted != uint64(len(samples)) {
		t.Errorf("totals lost across restarts: %d vs %d", st.Scheduler.Emitted, len(samples))
	}
}

func encodePNG(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDevice_UndecodableSelectionMidStream(t *testing.T) {
	renderer := &mocks.Renderer{
		DecodeImageFunc: func(data []byte, format ports.ImageFormat) (image.Image, error) {
			img, _, err := image.Decode(bytes.NewReader(data))
			return img, err
		},
	}
	td := newTestDevice(t, func(c *Config, deps *Dependencies) {
		deps.Renderer = renderer
	})
	d := td.dev

	store := mocks.NewSelectionStore()
	w := selection.NewWatcher(selection.WatcherConfig{
		Store:    store,
		Renderer: renderer,
		Slot:     d.Selection(),
		Logger:   td.log,
	})

	blue := color.RGBA{B: 255, A: 255}
	_ = store.Save(ports.Selection{Base64Image: encodePNG(t, blue)})
	w.Refresh()

	if err := d.StartStream(); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	waitFrames(t, td.sink, 2)

	_ = store.Save(ports.Selection{Base64Image: base64.StdEncoding.EncodeToString([]byte("garbage"))})
	w.Refresh()
	n := td.sink.Count()
	waitFrames(t, td.sink, n+3)
	d.StopStream()

	samples := td.sink.Snapshot()
	if got := firstPixel(samples[0]); got != blue {
		t.Errorf("first frame: expected selected blue, got %v", got)
	}
	if got := firstPixel(samples[len(samples)-1]); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("last frame: expected red placeholder, got %v", got)
	}
	if d.Stats().Scheduler.Fallbacks == 0 {
		t.Error("expected fallback frames to be counted")
	}
}

func TestDevice_UpstreamMode(t *testing.T) {
	capture := mocks.NewUpstreamCapture(4)
	td := newTestDevice(t, func(c *Config, deps *Dependencies) {
		c.Mode = ModeUpstream
		deps.Capture = capture
	})

	if err := td.dev.StartStream(); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	capture.Send(ports.CaptureEvent{Image: img})
	capture.Send(ports.CaptureEvent{Image: img, Dropped: 3})
	waitFrames(t, td.sink, 2)
	td.dev.StopStream()

	samples := td.sink.Snapshot()
	if samples[0].Discontinuity || !samples[1].Discontinuity {
		t.Errorf("expected discontinuity only on the second frame")
	}
}

func TestDevice_Close(t *testing.T) {
	td := newTestDevice(t, nil)
	d := td.dev

	_ = d.StartStream()
	waitFrames(t, td.sink, 1)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if d.Stats().Lifecycle.State != lifecycle.Idle {
		t.Error("close must stop the stream")
	}
	if !td.sink.Closed {
		t.Error("close must close the sink")
	}
	if err := d.StartStream(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
}

func TestDevice_UpstreamEndKeepsStreaming(t *testing.T) {
	capture := mocks.NewUpstreamCapture(4)
	td := newTestDevice(t, func(c *Config, deps *Dependencies) {
		c.Mode = ModeUpstream
		deps.Capture = capture
	})
	d := td.dev

	if err := d.StartStream(); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	capture.Send(ports.CaptureEvent{Image: image.NewRGBA(image.Rect(0, 0, 32, 16))})
	waitFrames(t, td.sink, 1)
	capture.Finish()

	waitFrames(t, td.sink, 4)
	st := d.Stats()
	if st.Lifecycle.State != lifecycle.Active {
		t.Fatalf("expected active stream, got %s", st.Lifecycle.State)
	}
	if !st.Scheduler.Degraded {
		t.Error("expected the producer to report the timer fallback")
	}
	d.StopStream()

	samples := td.sink.Snapshot()
	if !samples[1].Discontinuity {
		t.Error("first frame after the feed ended must be a discontinuity")
	}
	for i, s := range samples[2:] {
		if s.Discontinuity {
			t.Errorf("frame %d: unexpected discontinuity", i+2)
		}
	}
	if got := firstPixel(samples[len(samples)-1]); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("expected red placeholder after the feed ended, got %v", got)
	}
	if td.log.Count(ports.LevelWarn, "Upstream ended") != 1 {
		t.Errorf("expected one fallback warning, got %+v", td.log.Entries())
	}
}

func TestDevice_RestartKeepsSequencesUnique(t *testing.T) {
	td := newTestDevice(t, nil)
	d := td.dev

	for i := 0; i < 3; i++ {
		if err := d.StartStream(); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		waitFrames(t, td.sink, 3*(i+1))
		d.StopStream()
	}

	seen := make(map[uint64]bool)
	var last uint64
	for i, s := range td.sink.Snapshot() {
		if seen[s.Sequence] {
			t.Fatalf("sequence %d emitted twice", s.Sequence)
		}
		if s.Sequence <= last {
			t.Fatalf("frame %d: sequence %d not after %d", i, s.Sequence, last)
		}
		seen[s.Sequence] = true
		last = s.Sequence
	}
}

func TestDevice_FailedStartLeavesNoProducer(t *testing.T) {
	capture := mocks.NewUpstreamCapture(1)
	capture.StartFunc = func(ctx context.Context) error {
		return errors.New("no signal")
	}
	td := newTestDevice(t, func(c *Config, deps *Dependencies) {
		c.Mode = ModeUpstream
		deps.Capture = capture
	})
	d := td.dev

	if err := d.StartStream(); err == nil {
		t.Fatal("expected start error")
	}
	d.mu.Lock()
	current := d.current
	d.mu.Unlock()
	if current != nil {
		t.Error("a producer that failed to start must not become current")
	}
	if st := d.Stats(); st.Lifecycle.State != lifecycle.Idle || st.Scheduler.Ticks != 0 {
		t.Errorf("unexpected stats after failed start: %+v", st)
	}
}
