package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/user/kamishibai/pkg/framepool"
)

// =============================================================================
// Common Types
// =============================================================================

// Dimension represents width and height.
type Dimension struct {
	Width  int
	Height int
}

// =============================================================================
// Video Format
// =============================================================================

// PixelFormat identifies the memory layout of a frame buffer.
type PixelFormat string

const (
	// PixelFormatBGRA32 is 8-bit blue, green, red, alpha per pixel.
	PixelFormatBGRA32 PixelFormat = "BGRA"
)

// BytesPerPixel returns the pixel size in bytes, or 0 for unknown formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case PixelFormatBGRA32:
		return 4
	default:
		return 0
	}
}

// VideoFormat is the negotiated, immutable output format of a device.
type VideoFormat struct {
	Width         int
	Height        int
	PixelFormat   PixelFormat
	FrameDuration time.Duration
}

// DefaultVideoFormat returns the format the device advertises: 1920x1080 BGRA at 10 fps.
func DefaultVideoFormat() VideoFormat {
	return NewVideoFormat(1920, 1080, 10)
}

// NewVideoFormat builds a BGRA format with a frame duration of 1/frameRate.
func NewVideoFormat(width, height int, frameRate float64) VideoFormat {
	var d time.Duration
	if frameRate > 0 {
		d = time.Duration(float64(time.Second) / frameRate)
	}
	return VideoFormat{
		Width:         width,
		Height:        height,
		PixelFormat:   PixelFormatBGRA32,
		FrameDuration: d,
	}
}

// Dimension returns the frame size.
func (f VideoFormat) Dimension() Dimension {
	return Dimension{Width: f.Width, Height: f.Height}
}

// FrameRate returns frames per second.
func (f VideoFormat) FrameRate() float64 {
	if f.FrameDuration <= 0 {
		return 0
	}
	return float64(time.Second) / float64(f.FrameDuration)
}

// Validate checks that the format can back a pixel-buffer pool.
func (f VideoFormat) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d", f.Width, f.Height)
	}
	if f.PixelFormat.BytesPerPixel() == 0 {
		return fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}
	if f.FrameDuration <= 0 {
		return fmt.Errorf("invalid frame duration %s", f.FrameDuration)
	}
	return nil
}

// String renders the format as e.g. "1920x1080 BGRA @ 10.00 fps".
func (f VideoFormat) String() string {
	return fmt.Sprintf("%dx%d %s @ %.2f fps", f.Width, f.Height, f.PixelFormat, f.FrameRate())
}

// =============================================================================
// Source Images
// =============================================================================

// SourceOrigin tells where a SourceImage came from.
type SourceOrigin int

const (
	OriginFallback SourceOrigin = iota
	OriginSelected
	OriginUpstream
)

// String returns the origin name.
func (o SourceOrigin) String() string {
	switch o {
	case OriginSelected:
		return "selected"
	case OriginUpstream:
		return "upstream"
	default:
		return "fallback"
	}
}

// SourceImage is a decoded image used as frame content. It is never mutated after
// construction; a new selection produces a new SourceImage.
type SourceImage struct {
	Image  image.Image
	Origin SourceOrigin
	Label  string // file name or other human readable origin
}

// NewSourceImage wraps a decoded image.
func NewSourceImage(img image.Image, origin SourceOrigin, label string) *SourceImage {
	return &SourceImage{Image: img, Origin: origin, Label: label}
}

// Size returns the native image size.
func (s *SourceImage) Size() Dimension {
	b := s.Image.Bounds()
	return Dimension{Width: b.Dx(), Height: b.Dy()}
}

// =============================================================================
// Frames
// =============================================================================

// Frame is the outbound unit produced per tick and consumed once by the publisher.
type Frame struct {
	Buffer        *framepool.Buffer
	PTS           time.Duration
	Discontinuity bool
	Sequence      uint64
}

// =============================================================================
// Overlay Stage Types
// =============================================================================

// OverlayInput contains parameters for caption overlay generation.
type OverlayInput struct {
	Width   int
	Height  int
	Caption string
	Credit  string
	Theme   OverlayTheme
}

// OverlayTheme defines caption styling.
type OverlayTheme struct {
	BackgroundColor color.Color // caption band colour, alpha respected
	TextColor       color.Color
	AccentColor     color.Color
}

// DefaultOverlayTheme returns a translucent dark caption band with white text.
func DefaultOverlayTheme() OverlayTheme {
	return OverlayTheme{
		BackgroundColor: color.NRGBA{R: 20, G: 20, B: 30, A: 180},
		TextColor:       color.White,
		AccentColor:     color.RGBA{R: 74, G: 222, B: 128, A: 255},
	}
}

// OverlayResult contains the rendered overlay, transparent outside the caption.
type OverlayResult struct {
	Image image.Image
}

// =============================================================================
// Composite Stage Types
// =============================================================================

// CompositeInput contains the layers of one frame.
type CompositeInput struct {
	Background      *SourceImage  // fitted with letterbox margins in BackgroundColor
	Overlays        []image.Image // fitted with transparent margins, blended in order
	Target          Dimension
	BackgroundColor color.Color
}

// CompositeResult contains the composed RGBA frame.
type CompositeResult struct {
	Image *image.RGBA
}
