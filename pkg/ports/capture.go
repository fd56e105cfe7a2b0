package ports

import (
	"context"
	"image"
)

// CaptureEvent is one delivery from an upstream capture feed.
// Image is nil when the event only reports frames the feed had to drop.
type CaptureEvent struct {
	Image       image.Image
	TimestampMs int
	Dropped     int // frames lost upstream since the previous event
}

// UpstreamCapture is a live feed that drives the event-driven scheduling mode.
type UpstreamCapture interface {
	// Start begins delivery. The returned channel is closed when the feed ends
	// or Stop is called.
	Start(ctx context.Context) (<-chan CaptureEvent, error)

	// Stop ends delivery and releases capture resources. Safe to call twice.
	Stop() error
}
