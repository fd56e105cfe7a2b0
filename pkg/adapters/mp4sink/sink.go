// Package mp4sink records the stream as a Motion-JPEG fragmented MP4.
package mp4sink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/kamishibai/pkg/ports"
	"github.com/user/kamishibai/pkg/stages/composite"
)

// Timescale is the track timescale in ticks per second.
const Timescale = 90000

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("mp4sink: closed")

// Config controls recording.
type Config struct {
	Quality          int           // JPEG quality (1-100)
	FrameDuration    time.Duration // nominal duration of the final sample
	FragmentDuration time.Duration // target length of one moof+mdat pair
}

type pendingSample struct {
	data       []byte
	decodeTime uint64
}

// Sink writes an init segment on the first frame and then one fragment per
// FragmentDuration. A discontinuity starts a new fragment.
type Sink struct {
	w        io.Writer
	renderer ports.Renderer
	cfg      Config

	mu       sync.Mutex
	started  bool
	closed   bool
	width    int
	height   int
	firstPTS time.Duration
	seq      uint32
	frag     *mp4.Fragment
	fragDur  uint64
	pending  *pendingSample
	frames   int
}

// New creates a sink writing to w.
func New(w io.Writer, renderer ports.Renderer, cfg Config) *Sink {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 100 * time.Millisecond
	}
	if cfg.FragmentDuration <= 0 {
		cfg.FragmentDuration = time.Second
	}
	return &Sink{w: w, renderer: renderer, cfg: cfg}
}

// Emit encodes the sample as JPEG and queues it in the current fragment.
func (s *Sink) Emit(sample ports.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.started {
		if err := s.writeInit(sample.Width, sample.Height); err != nil {
			return err
		}
		s.firstPTS = sample.PTS
		s.started = true
	}
	if sample.Width != s.width || sample.Height != s.height {
		return fmt.Errorf("mp4sink: frame size changed from %dx%d to %dx%d", s.width, s.height, sample.Width, sample.Height)
	}

	img := composite.FromBGRA(sample.Pix, sample.Width, sample.Height, sample.Stride)
	data, err := s.renderer.EncodeImage(img, ports.FormatJPEG, s.cfg.Quality)
	if err != nil {
		return fmt.Errorf("encode JPEG: %w", err)
	}

	next := &pendingSample{data: data, decodeTime: toTimescale(sample.PTS - s.firstPTS)}
	if s.pending != nil {
		dur := uint32(1)
		if next.decodeTime > s.pending.decodeTime {
			dur = uint32(next.decodeTime - s.pending.decodeTime)
		}
		if err := s.addSample(s.pending, dur); err != nil {
			return err
		}
	}

	limit := toTimescale(s.cfg.FragmentDuration)
	if s.frag != nil && (sample.Discontinuity || s.fragDur >= limit) {
		if err := s.flushFragment(); err != nil {
			return err
		}
	}
	s.pending = next
	return nil
}

// Close writes the last sample and fragment. The writer is not closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pending != nil {
		if err := s.addSample(s.pending, uint32(toTimescale(s.cfg.FrameDuration))); err != nil {
			return err
		}
		s.pending = nil
	}
	return s.flushFragment()
}

// Frames returns the number of samples added to fragments so far.
func (s *Sink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Sink) writeInit(width, height int) error {
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return fmt.Errorf("mp4sink: invalid frame size %dx%d", width, height)
	}
	s.width, s.height = width, height

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(Timescale, "video", "en")
	trak := init.Moov.Trak

	jpeg := mp4.CreateVisualSampleEntryBox("jpeg", uint16(width), uint16(height), nil)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(jpeg)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}
	return nil
}

func (s *Sink) addSample(p *pendingSample, dur uint32) error {
	if s.frag == nil {
		s.seq++
		frag, err := mp4.CreateFragment(s.seq, 1)
		if err != nil {
			return fmt.Errorf("create fragment: %w", err)
		}
		s.frag = frag
		s.fragDur = 0
	}
	// Every JPEG is independently decodable.
	s.frag.AddFullSample(mp4.FullSample{
		Sample: mp4.Sample{
			Flags: mp4.SyncSampleFlags,
			Size:  uint32(len(p.data)),
			Dur:   dur,
		},
		DecodeTime: p.decodeTime,
		Data:       p.data,
	})
	s.fragDur += uint64(dur)
	s.frames++
	return nil
}

func (s *Sink) flushFragment() error {
	if s.frag == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := s.frag.Encode(&buf); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	s.frag = nil
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}

func toTimescale(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d) * Timescale / uint64(time.Second)
}

// Ensure Sink implements ports.StreamSink
var _ ports.StreamSink = (*Sink)(nil)
