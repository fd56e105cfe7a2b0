package ports

import (
	"context"
	"image"
)

// HTMLCapturer renders HTML into images.
type HTMLCapturer interface {
	// CaptureHTMLWithViewport renders HTML at a fixed viewport size. When transparent
	// is true the page background is left fully transparent so the result can be
	// blended over other images.
	CaptureHTMLWithViewport(ctx context.Context, html string, width, height int, transparent bool) (image.Image, error)
}
