// Package composite fits source images onto the output canvas and blends overlays.
//
// Fit, Compose and CopyToBGRA are pure: they never modify their inputs and the same
// inputs always give bit-identical output.
package composite

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
)

// ScaledImage is a target-sized canvas holding a uniformly scaled source.
// Content is the area covered by the source; the rest is margin.
type ScaledImage struct {
	Canvas  *image.RGBA
	Content image.Rectangle
	Scale   float64
}

// ScaleFactor returns the uniform scale that fits src inside target and whether
// the fit is by width. A source relatively wider than the target fits by width,
// anything else fits by height.
func ScaleFactor(src, target pipeline.Dimension) (scale float64, byWidth bool) {
	if src.Width <= 0 || src.Height <= 0 {
		return 0, false
	}
	// sw/sh > tw/th without floating point error.
	if src.Width*target.Height > target.Width*src.Height {
		return float64(target.Width) / float64(src.Width), true
	}
	return float64(target.Height) / float64(src.Height), false
}

// FitRect returns where a src-sized image lands on a target canvas: scaled by
// ScaleFactor and centred, touching the canvas edges on the fitted axis.
func FitRect(src, target pipeline.Dimension) image.Rectangle {
	_, byWidth := ScaleFactor(src, target)
	if src.Width <= 0 || src.Height <= 0 || target.Width <= 0 || target.Height <= 0 {
		return image.Rectangle{}
	}

	var w, h int
	if byWidth {
		w = target.Width
		h = int(math.Round(float64(src.Height) * float64(target.Width) / float64(src.Width)))
	} else {
		h = target.Height
		w = int(math.Round(float64(src.Width) * float64(target.Height) / float64(src.Height)))
	}
	w = clamp(w, 1, target.Width)
	h = clamp(h, 1, target.Height)

	x := (target.Width - w) / 2
	y := (target.Height - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// Fit scales src into a target-sized canvas without distortion. The letterbox
// margins are filled with bg; pass color.Transparent for overlays.
func Fit(src image.Image, target pipeline.Dimension, bg color.Color) ScaledImage {
	if bg == nil {
		bg = color.Transparent
	}
	canvas := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if src == nil {
		return ScaledImage{Canvas: canvas}
	}
	sb := src.Bounds()
	size := pipeline.Dimension{Width: sb.Dx(), Height: sb.Dy()}
	content := FitRect(size, target)
	if content.Empty() {
		return ScaledImage{Canvas: canvas}
	}

	scale, _ := ScaleFactor(size, target)
	draw.CatmullRom.Scale(canvas, content, src, sb, draw.Over, nil)
	return ScaledImage{Canvas: canvas, Content: content, Scale: scale}
}

// Compose blends overlay over background with source-over and returns a new image.
// A nil overlay yields a copy of the background.
func Compose(background ScaledImage, overlay *ScaledImage) *image.RGBA {
	out := cloneRGBA(background.Canvas)
	if overlay != nil && overlay.Canvas != nil {
		blendOver(out, overlay.Canvas)
	}
	return out
}

// CopyToBGRA writes src into a BGRA buffer with the given row stride.
// Rows or columns that do not fit in dst are skipped.
func CopyToBGRA(dst []byte, stride int, src *image.RGBA) {
	b := src.Bounds()
	w := b.Dx()
	if stride/4 < w {
		w = stride / 4
	}
	rows := b.Dy()
	if stride > 0 && len(dst)/stride < rows {
		rows = len(dst) / stride
	}

	for y := 0; y < rows; y++ {
		s := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		d := dst[y*stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			d[i+0] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i+0]
			d[i+3] = s[i+3]
		}
	}
}

// FromBGRA copies a BGRA frame buffer into a new RGBA image. It is the inverse
// of CopyToBGRA and is used by sinks that encode frames.
func FromBGRA(pix []byte, width, height, stride int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		s := pix[y*stride:]
		d := out.Pix[y*out.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			d[i+0] = s[i+2]
			d[i+1] = s[i+1]
			d[i+2] = s[i+0]
			d[i+3] = s[i+3]
		}
	}
	return out
}

// Compositor memoises fitted layers. Sources are immutable, so a layer fitted once
// for a given source and target can be reused until the source is replaced.
type Compositor struct {
	logger ports.Logger

	mu         sync.Mutex
	background fitted
	overlays   []fittedOverlay
}

type fitted struct {
	source *pipeline.SourceImage
	target pipeline.Dimension
	bg     color.Color
	scaled ScaledImage
}

type fittedOverlay struct {
	source image.Image
	target pipeline.Dimension
	scaled ScaledImage
}

// NewCompositor creates a compositor.
func NewCompositor(logger ports.Logger) *Compositor {
	return &Compositor{
		logger: logger.WithComponent("composite"),
	}
}

// Execute composes one frame. The returned image may be shared with the cache
// and must be treated as read-only.
func (c *Compositor) Execute(ctx context.Context, input pipeline.CompositeInput) (pipeline.CompositeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bg := c.fitBackground(input)
	if len(input.Overlays) == 0 {
		return pipeline.CompositeResult{Image: bg.Canvas}, nil
	}

	out := cloneRGBA(bg.Canvas)
	for _, ov := range input.Overlays {
		if ov == nil {
			continue
		}
		scaled := c.fitOverlay(ov, input.Target)
		blendOver(out, scaled.Canvas)
	}
	return pipeline.CompositeResult{Image: out}, nil
}

func (c *Compositor) fitBackground(input pipeline.CompositeInput) ScaledImage {
	cached := c.background
	if cached.source != nil && cached.source == input.Background &&
		cached.target == input.Target && sameColor(cached.bg, input.BackgroundColor) {
		return cached.scaled
	}

	var src image.Image
	if input.Background != nil {
		src = input.Background.Image
	}
	scaled := Fit(src, input.Target, input.BackgroundColor)
	c.background = fitted{
		source: input.Background,
		target: input.Target,
		bg:     input.BackgroundColor,
		scaled: scaled,
	}
	if input.Background != nil && input.Background.Origin != pipeline.OriginUpstream {
		c.logger.Debug("Fitted %s image %dx%d at scale %.3f",
			input.Background.Origin, src.Bounds().Dx(), src.Bounds().Dy(), scaled.Scale)
	}
	return scaled
}

func (c *Compositor) fitOverlay(ov image.Image, target pipeline.Dimension) ScaledImage {
	for _, f := range c.overlays {
		if f.source == ov && f.target == target {
			return f.scaled
		}
	}
	scaled := Fit(ov, target, color.Transparent)
	c.overlays = append(c.overlays, fittedOverlay{source: ov, target: target, scaled: scaled})
	// Overlays change rarely (caption, selected frame art); keep the newest few.
	if len(c.overlays) > 4 {
		c.overlays = c.overlays[len(c.overlays)-4:]
	}
	return scaled
}

// Ensure Compositor implements pipeline.Stage
var _ pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult] = (*Compositor)(nil)

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(out.Pix, src.Pix)
	return out
}

func blendOver(dst *image.RGBA, overlay *image.RGBA) {
	draw.Draw(dst, dst.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
}

func sameColor(a, b color.Color) bool {
	if a == nil || b == nil {
		return a == b
	}
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
