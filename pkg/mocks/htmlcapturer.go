package mocks

import (
	"context"
	"image"
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// CaptureCall records a call to CaptureHTMLWithViewport.
type CaptureCall struct {
	HTML        string
	Width       int
	Height      int
	Transparent bool
}

// HTMLCapturer is a mock implementation of ports.HTMLCapturer.
type HTMLCapturer struct {
	mu sync.Mutex

	CaptureHTMLWithViewportFunc func(ctx context.Context, html string, width, height int, transparent bool) (image.Image, error)

	// Calls records every capture for assertions.
	Calls []CaptureCall
}

// NewHTMLCapturer creates a mock that returns a transparent image of the viewport size.
func NewHTMLCapturer() *HTMLCapturer {
	return &HTMLCapturer{}
}

// CaptureHTMLWithViewport implements ports.HTMLCapturer.
func (m *HTMLCapturer) CaptureHTMLWithViewport(ctx context.Context, html string, width, height int, transparent bool) (image.Image, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, CaptureCall{HTML: html, Width: width, Height: height, Transparent: transparent})
	m.mu.Unlock()

	if m.CaptureHTMLWithViewportFunc != nil {
		return m.CaptureHTMLWithViewportFunc(ctx, html, width, height, transparent)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

var _ ports.HTMLCapturer = (*HTMLCapturer)(nil)
