package selection

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/kamishibai/pkg/pipeline"
	"github.com/user/kamishibai/pkg/ports"
)

// ErrEmpty is returned by Decode when the selection names no image.
var ErrEmpty = errors.New("selection: no image selected")

// DefaultPollInterval is how often Run re-reads the store.
const DefaultPollInterval = 500 * time.Millisecond

// Watcher mirrors a SelectionStore into a Slot. The store is shared with another
// process and offers no change notification, so it is polled.
type Watcher struct {
	store    ports.SelectionStore
	renderer ports.Renderer
	fs       ports.FileSystem
	slot     *Slot
	logger   ports.Logger
	interval time.Duration

	mu      sync.Mutex
	last    ports.Selection
	lastMod time.Time
	loaded  bool
}

// WatcherConfig holds the collaborators of a Watcher.
type WatcherConfig struct {
	Store        ports.SelectionStore
	Renderer     ports.Renderer
	FileSystem   ports.FileSystem // used for ImagePath selections; may be nil
	Slot         *Slot
	Logger       ports.Logger
	PollInterval time.Duration
}

// NewWatcher creates a watcher. PollInterval defaults to DefaultPollInterval.
func NewWatcher(cfg WatcherConfig) *Watcher {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		store:    cfg.Store,
		renderer: cfg.Renderer,
		fs:       cfg.FileSystem,
		slot:     cfg.Slot,
		logger:   cfg.Logger.WithComponent("selection"),
		interval: interval,
	}
}

// Run refreshes once immediately and then on every poll interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Refresh()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh()
		}
	}
}

// Refresh loads the store and updates the slot when the selection changed,
// or when the image file it names was rewritten. It reports whether the slot
// was updated.
func (w *Watcher) Refresh() bool {
	sel, err := w.store.Load()
	if err != nil {
		w.logger.Warn("Failed to read selection: %v", err)
		return false
	}
	mod := w.imageModTime(sel)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded && sameSelection(w.last, sel) {
		if mod.Equal(w.lastMod) {
			return false
		}
		w.logger.Debug("Image file %s changed, reloading", sel.ImagePath)
	}
	w.last = sel
	w.lastMod = mod
	w.loaded = true

	img, err := w.Decode(sel)
	switch {
	case errors.Is(err, ErrEmpty):
		w.logger.Info("No image selected, using placeholder")
		w.slot.Clear()
	case err != nil:
		// Undecodable data must never reach the producer as a half-valid image.
		w.logger.Warn("Selected image is unusable, using placeholder: %v", err)
		w.slot.Clear()
	default:
		size := img.Size()
		w.logger.Info("Selected image %s (%dx%d)", img.Label, size.Width, size.Height)
		w.slot.Set(img)
	}
	return true
}

// Decode turns a selection into a SourceImage. Base64Image wins over ImagePath.
func (w *Watcher) Decode(sel ports.Selection) (*pipeline.SourceImage, error) {
	var (
		data  []byte
		label string
		err   error
	)
	switch {
	case sel.Base64Image != "":
		data, err = base64.StdEncoding.DecodeString(strings.TrimSpace(sel.Base64Image))
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		label = "base64"
	case sel.ImagePath != "":
		if w.fs == nil {
			return nil, fmt.Errorf("no file system to read %s", sel.ImagePath)
		}
		path := strings.TrimPrefix(sel.ImagePath, "file://")
		data, err = w.fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
		label = filepath.Base(path)
	default:
		return nil, ErrEmpty
	}

	img, err := w.renderer.DecodeImage(data, ports.FormatAuto)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}
	return pipeline.NewSourceImage(img, pipeline.OriginSelected, label), nil
}

// imageModTime returns the modification time of a file selection. It is zero
// for embedded images and for files that cannot be stat'ed.
func (w *Watcher) imageModTime(sel ports.Selection) time.Time {
	if sel.Base64Image != "" || sel.ImagePath == "" || w.fs == nil {
		return time.Time{}
	}
	mod, err := w.fs.ModTime(strings.TrimPrefix(sel.ImagePath, "file://"))
	if err != nil {
		return time.Time{}
	}
	return mod
}

func sameSelection(a, b ports.Selection) bool {
	return a.Base64Image == b.Base64Image && a.ImagePath == b.ImagePath && a.UpdatedAt.Equal(b.UpdatedAt)
}
