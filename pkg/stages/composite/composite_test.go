package composite

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/user/kamishibai/pkg/mocks"
	"github.com/user/kamishibai/pkg/pipeline"
)

var red = color.RGBA{R: 255, A: 255}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		name        string
		src         pipeline.Dimension
		target      pipeline.Dimension
		wantScale   float64
		wantByWidth bool
	}{
		{"wider source fits by width", pipeline.Dimension{Width: 3840, Height: 1080}, pipeline.Dimension{Width: 1920, Height: 1080}, 0.5, true},
		{"taller source fits by height", pipeline.Dimension{Width: 1080, Height: 1080}, pipeline.Dimension{Width: 1920, Height: 1080}, 1.0, false},
		{"same aspect fits by height", pipeline.Dimension{Width: 960, Height: 540}, pipeline.Dimension{Width: 1920, Height: 1080}, 2.0, false},
		{"portrait upscale", pipeline.Dimension{Width: 100, Height: 200}, pipeline.Dimension{Width: 1920, Height: 1080}, 5.4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scale, byWidth := ScaleFactor(tt.src, tt.target)
			if scale != tt.wantScale {
				t.Errorf("expected scale %v, got %v", tt.wantScale, scale)
			}
			if byWidth != tt.wantByWidth {
				t.Errorf("expected byWidth %v, got %v", tt.wantByWidth, byWidth)
			}
		})
	}
}

func TestFit_WideSourceLetterbox(t *testing.T) {
	src := solid(3840, 1080, color.RGBA{B: 255, A: 255})
	target := pipeline.Dimension{Width: 1920, Height: 1080}

	scaled := Fit(src, target, red)

	if scaled.Scale != 0.5 {
		t.Errorf("expected scale 0.5, got %v", scaled.Scale)
	}
	want := image.Rect(0, 270, 1920, 810)
	if scaled.Content != want {
		t.Errorf("expected content %v, got %v", want, scaled.Content)
	}
	if b := scaled.Canvas.Bounds(); b.Dx() != 1920 || b.Dy() != 1080 {
		t.Errorf("expected 1920x1080 canvas, got %dx%d", b.Dx(), b.Dy())
	}

	// Margins carry the background colour, content carries the source.
	if got := scaled.Canvas.RGBAAt(960, 100); got != red {
		t.Errorf("expected margin %v, got %v", red, got)
	}
	if got := scaled.Canvas.RGBAAt(960, 1000); got != red {
		t.Errorf("expected margin %v, got %v", red, got)
	}
	if got := scaled.Canvas.RGBAAt(960, 540); got.B != 255 || got.R != 0 {
		t.Errorf("expected blue content, got %v", got)
	}
}

func TestFitRect_NeverExceedsAndTouchesOneAxis(t *testing.T) {
	targets := []pipeline.Dimension{
		{Width: 1920, Height: 1080},
		{Width: 640, Height: 480},
		{Width: 1, Height: 1},
		{Width: 7, Height: 1000},
	}
	var sources []pipeline.Dimension
	for _, w := range []int{1, 2, 3, 17, 100, 639, 1080, 1920, 3840, 9999} {
		for _, h := range []int{1, 5, 99, 480, 1080, 2160, 7777} {
			sources = append(sources, pipeline.Dimension{Width: w, Height: h})
		}
	}

	for _, target := range targets {
		for _, src := range sources {
			r := FitRect(src, target)
			if r.Min.X < 0 || r.Min.Y < 0 || r.Max.X > target.Width || r.Max.Y > target.Height {
				t.Fatalf("src %v target %v: rect %v exceeds canvas", src, target, r)
			}
			if r.Dx() != target.Width && r.Dy() != target.Height {
				t.Fatalf("src %v target %v: rect %v touches neither axis", src, target, r)
			}
		}
	}
}

func TestFit_Idempotent(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 37, 91))
	for i := range src.Pix {
		src.Pix[i] = byte(i * 31)
	}
	target := pipeline.Dimension{Width: 160, Height: 90}

	a := Fit(src, target, red)
	b := Fit(src, target, red)

	if !bytes.Equal(a.Canvas.Pix, b.Canvas.Pix) {
		t.Error("expected identical output for identical input")
	}
	if a.Canvas == b.Canvas {
		t.Error("expected distinct canvases")
	}
}

func TestFit_DoesNotMutateSource(t *testing.T) {
	src := solid(10, 10, color.RGBA{G: 200, A: 255})
	before := append([]byte(nil), src.Pix...)

	Fit(src, pipeline.Dimension{Width: 40, Height: 20}, red)

	if !bytes.Equal(before, src.Pix) {
		t.Error("source was modified")
	}
}

func TestFit_NilSource(t *testing.T) {
	scaled := Fit(nil, pipeline.Dimension{Width: 8, Height: 4}, red)
	if !scaled.Content.Empty() {
		t.Errorf("expected empty content, got %v", scaled.Content)
	}
	if got := scaled.Canvas.RGBAAt(3, 3); got != red {
		t.Errorf("expected fill %v, got %v", red, got)
	}
}

func TestCompose_NilOverlayCopiesBackground(t *testing.T) {
	bg := Fit(solid(4, 4, red), pipeline.Dimension{Width: 4, Height: 4}, red)

	out := Compose(bg, nil)

	if out == bg.Canvas {
		t.Error("expected a copy, got the background itself")
	}
	if !bytes.Equal(out.Pix, bg.Canvas.Pix) {
		t.Error("expected identical pixels")
	}
}

func TestCompose_SourceOver(t *testing.T) {
	target := pipeline.Dimension{Width: 4, Height: 2}
	bg := Fit(solid(4, 2, color.RGBA{B: 255, A: 255}), target, red)

	// Left half opaque white, right half fully transparent.
	ovImg := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			ovImg.Set(x, y, color.White)
		}
	}
	ov := Fit(ovImg, target, color.Transparent)
	bgBefore := append([]byte(nil), bg.Canvas.Pix...)

	out := Compose(bg, &ov)

	if got := out.RGBAAt(0, 0); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("expected white where overlay is opaque, got %v", got)
	}
	if got := out.RGBAAt(3, 1); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("expected background where overlay is transparent, got %v", got)
	}
	if !bytes.Equal(bgBefore, bg.Canvas.Pix) {
		t.Error("background was modified")
	}
}

func TestCopyToBGRA(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	src.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 40})

	dst := make([]byte, 8)
	CopyToBGRA(dst, 8, src)

	want := []byte{3, 2, 1, 4, 30, 20, 10, 40}
	if !bytes.Equal(dst, want) {
		t.Errorf("expected %v, got %v", want, dst)
	}
}

func TestCopyToBGRA_SubImageAndPaddedStride(t *testing.T) {
	full := image.NewRGBA(image.Rect(0, 0, 4, 4))
	full.SetRGBA(2, 2, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	sub := full.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	dst := make([]byte, 12*2)
	CopyToBGRA(dst, 12, sub)

	if dst[0] != 7 || dst[1] != 8 || dst[2] != 9 || dst[3] != 255 {
		t.Errorf("unexpected first pixel %v", dst[:4])
	}
	if dst[8] != 0 || dst[11] != 0 {
		t.Error("padding bytes were written")
	}
}

func TestFromBGRA_RoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	src.SetRGBA(2, 1, color.RGBA{R: 50, G: 60, B: 70, A: 255})

	const stride = 16 // one pixel of padding per row
	dst := make([]byte, stride*2)
	CopyToBGRA(dst, stride, src)

	back := FromBGRA(dst, 3, 2, stride)
	if !bytes.Equal(back.Pix, src.Pix) {
		t.Errorf("round trip mismatch: %v vs %v", back.Pix, src.Pix)
	}
}

func TestCompositor_Execute(t *testing.T) {
	c := NewCompositor(mocks.NewLogger())
	src := pipeline.NewSourceImage(solid(20, 10, color.RGBA{G: 255, A: 255}), pipeline.OriginSelected, "green.png")
	input := pipeline.CompositeInput{
		Background:      src,
		Target:          pipeline.Dimension{Width: 20, Height: 20},
		BackgroundColor: red,
	}

	first, err := c.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	second, _ := c.Execute(context.Background(), input)
	if first.Image != second.Image {
		t.Error("expected cached background to be reused")
	}
	if got := first.Image.RGBAAt(10, 1); got != red {
		t.Errorf("expected letterbox margin %v, got %v", red, got)
	}

	// A replaced source must not hit the cache.
	next := pipeline.NewSourceImage(solid(20, 10, color.RGBA{B: 255, A: 255}), pipeline.OriginSelected, "blue.png")
	input.Background = next
	third, _ := c.Execute(context.Background(), input)
	if third.Image == first.Image {
		t.Error("expected a new canvas for a new source")
	}
	if got := third.Image.RGBAAt(10, 10); got.B != 255 {
		t.Errorf("expected blue content, got %v", got)
	}
}

func TestCompositor_ExecuteWithOverlay(t *testing.T) {
	c := NewCompositor(mocks.NewLogger())
	bg := pipeline.NewSourceImage(solid(10, 10, color.RGBA{B: 255, A: 255}), pipeline.OriginSelected, "bg")
	overlay := solid(10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	input := pipeline.CompositeInput{
		Background:      bg,
		Overlays:        []image.Image{overlay},
		Target:          pipeline.Dimension{Width: 10, Height: 10},
		BackgroundColor: red,
	}

	result, err := c.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := result.Image.RGBAAt(5, 5); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("expected overlay on top, got %v", got)
	}

	// Background cache must be untouched by the blend.
	plain, _ := c.Execute(context.Background(), pipeline.CompositeInput{
		Background:      bg,
		Target:          input.Target,
		BackgroundColor: red,
	})
	if got := plain.Image.RGBAAt(5, 5); got.B != 255 || got.R != 0 {
		t.Errorf("expected cached background to stay blue, got %v", got)
	}
}
