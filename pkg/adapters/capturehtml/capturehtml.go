// Package capturehtml renders HTML snippets to images with a headless browser.
package capturehtml

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/user/kamishibai/pkg/adapters/chromebrowser"
	"github.com/user/kamishibai/pkg/ports"
)

// Capturer captures HTML as images using a headless browser.
type Capturer struct {
	chromePath string
}

// New creates a new HTML capturer. An empty chromePath uses the same lookup as
// the screencast capture.
func New(chromePath string) *Capturer {
	return &Capturer{chromePath: chromePath}
}

// Ensure Capturer implements ports.HTMLCapturer
var _ ports.HTMLCapturer = (*Capturer)(nil)

// CaptureHTMLWithViewport renders HTML at a specific viewport size. The result
// is always exactly width x height.
func (c *Capturer) CaptureHTMLWithViewport(ctx context.Context, html string, width, height int, transparent bool) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", width, height)
	}

	tmp, err := os.CreateTemp("", "capturehtml-*.html")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	allocCtx, allocCancel, err := chromebrowser.NewAllocator(ctx, chromebrowser.LaunchOptions{
		ChromePath: c.chromePath,
		Headless:   true,
	})
	if err != nil {
		return nil, err
	}
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(width), int64(height)),
	}
	if transparent {
		actions = append(actions,
			emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}))
	}
	var buf []byte
	actions = append(actions,
		chromedp.Navigate("file://"+tmp.Name()),
		chromedp.CaptureScreenshot(&buf),
	)
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return fitViewport(img, width, height), nil
}

// fitViewport crops or pads img to width x height, anchored at the top-left.
func fitViewport(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) && b.Dx() == width && b.Dy() == height {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
