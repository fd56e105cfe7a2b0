package chromebrowser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/user/kamishibai/pkg/ports"
)

// CaptureOptions configures a page screencast.
type CaptureOptions struct {
	LaunchOptions
	URL     string
	Width   int // viewport size in CSS pixels
	Height  int
	Quality int // screencast JPEG quality
	Buffer  int // events queued before frames are dropped
}

// Capture implements ports.UpstreamCapture with a Chrome page screencast.
type Capture struct {
	opts     CaptureOptions
	renderer ports.Renderer
	logger   ports.Logger

	// startMu serialises Start and Stop. mu guards the delivery state and is
	// never held across a chromedp call, since frame handlers take it.
	startMu     sync.Mutex
	mu          sync.Mutex
	active      bool
	out         chan ports.CaptureEvent
	dropped     int
	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	browserCtx  context.Context
}

// New creates a screencast capture.
func New(opts CaptureOptions, renderer ports.Renderer, logger ports.Logger) *Capture {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 2
	}
	if opts.WindowWidth == 0 {
		opts.WindowWidth, opts.WindowHeight = opts.Width, opts.Height
	}
	return &Capture{
		opts:     opts,
		renderer: renderer,
		logger:   logger.WithComponent("chromebrowser"),
	}
}

// Start launches the browser, loads the page and begins the screencast.
func (c *Capture) Start(ctx context.Context) (<-chan ports.CaptureEvent, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active {
		return nil, fmt.Errorf("screencast already active")
	}

	if c.opts.Headless {
		c.logger.Info("Launching browser in headless mode")
	} else {
		c.logger.Info("Launching browser in visible mode")
	}
	allocCtx, allocCancel, err := NewAllocator(ctx, c.opts.LaunchOptions)
	if err != nil {
		return nil, err
	}
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Frames can arrive while the page is still loading.
	out := c.openDelivery(browserCtx, cancel, allocCancel)
	start := time.Now()
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		go chromedp.Run(browserCtx, page.ScreencastFrameAck(e.SessionID))
		c.deliver(e.Data, int(time.Since(start).Milliseconds()))
	})

	c.logger.Info("Navigating to %s", c.opts.URL)
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(c.opts.Width), int64(c.opts.Height)),
		chromedp.Navigate(c.opts.URL),
		page.StartScreencast().
			WithFormat(page.ScreencastFormatJpeg).
			WithQuality(int64(c.opts.Quality)).
			WithMaxWidth(int64(c.opts.Width)).
			WithMaxHeight(int64(c.opts.Height)).
			WithEveryNthFrame(1),
	)
	if err != nil {
		c.closeDelivery()
		cancel()
		allocCancel()
		return nil, runError("start screencast", err)
	}

	c.logger.Info("Starting screencast")
	return out, nil
}

// openDelivery installs the delivery state for a new screencast.
func (c *Capture) openDelivery(browserCtx context.Context, cancel, allocCancel context.CancelFunc) chan ports.CaptureEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.out = make(chan ports.CaptureEvent, c.opts.Buffer)
	c.dropped = 0
	c.browserCtx = browserCtx
	c.cancel = cancel
	c.allocCancel = allocCancel
	return c.out
}

// closeDelivery ends delivery and hands back the browser handles. ok is false
// when no screencast was open.
func (c *Capture) closeDelivery() (browserCtx context.Context, cancel, allocCancel context.CancelFunc, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil, nil, nil, false
	}
	c.active = false
	close(c.out)
	browserCtx, cancel, allocCancel = c.browserCtx, c.cancel, c.allocCancel
	c.browserCtx, c.cancel, c.allocCancel = nil, nil, nil
	return browserCtx, cancel, allocCancel, true
}

// deliver decodes one screencast frame and queues it without blocking Chrome's
// event loop. Frames that do not fit are counted and reported with the next one.
func (c *Capture) deliver(b64 string, timestampMs int) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		c.logger.Warn("Dropping malformed screencast frame: %v", err)
		return
	}
	img, err := c.renderer.DecodeImage(data, ports.FormatJPEG)
	if err != nil {
		c.logger.Warn("Dropping undecodable screencast frame: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	select {
	case c.out <- ports.CaptureEvent{Image: img, TimestampMs: timestampMs, Dropped: c.dropped}:
		c.dropped = 0
	default:
		c.dropped++
	}
}

// Stop ends the screencast and shuts the browser down.
func (c *Capture) Stop() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	browserCtx, cancel, allocCancel, ok := c.closeDelivery()
	if !ok {
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(browserCtx, 5*time.Second)
	_ = chromedp.Run(stopCtx, page.StopScreencast())
	stopCancel()

	cancel()
	allocCancel()
	c.logger.Info("Browser closed")
	return nil
}

// Ensure Capture implements ports.UpstreamCapture
var _ ports.UpstreamCapture = (*Capture)(nil)
