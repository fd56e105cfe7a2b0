// Package filesink provides a stream sink that saves frame snapshots to files.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/stages/composite"
)

// Sink saves every Nth frame as a PNG snapshot.
type Sink struct {
	baseDir  string
	everyNth int
	width    int
	fs       ports.FileSystem
	renderer ports.Renderer

	mu    sync.Mutex
	seen  uint64
	saved int
}

// Option configures a Sink.
type Option func(*Sink)

// WithWidth scales snapshots down to width pixels, keeping the aspect ratio.
// Frames already narrower are saved as they are.
func WithWidth(width int) Option {
	return func(s *Sink) {
		s.width = width
	}
}

// New creates a new FileSink. everyNth below 1 saves every frame.
func New(baseDir string, everyNth int, fs ports.FileSystem, renderer ports.Renderer, opts ...Option) *Sink {
	if everyNth < 1 {
		everyNth = 1
	}
	s := &Sink{
		baseDir:  baseDir,
		everyNth: everyNth,
		fs:       fs,
		renderer: renderer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit saves the sample when it falls on the snapshot interval. Pixels are
// copied before Emit returns.
func (s *Sink) Emit(sample ports.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.seen
	s.seen++
	if n%uint64(s.everyNth) != 0 {
		return nil
	}

	if s.saved == 0 {
		if err := s.fs.MkdirAll(s.baseDir); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	var img image.Image = composite.FromBGRA(sample.Pix, sample.Width, sample.Height, sample.Stride)
	if s.width > 0 && s.width < sample.Width {
		h := sample.Height * s.width / sample.Width
		if h < 1 {
			h = 1
		}
		img = s.renderer.ResizeImage(img, s.width, h)
	}
	data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := filepath.Join(s.baseDir, fmt.Sprintf("frame-%06d.png", sample.Sequence))
	if err := s.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.saved++
	return nil
}

// Saved returns how many snapshots were written.
func (s *Sink) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Close does nothing; every snapshot is written synchronously.
func (s *Sink) Close() error {
	return nil
}

// Ensure Sink implements ports.StreamSink
var _ ports.StreamSink = (*Sink)(nil)
