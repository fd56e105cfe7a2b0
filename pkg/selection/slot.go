// Package selection tracks the user's chosen source image and publishes it to the
// frame producer through a last-write-wins slot.
package selection

import (
	"sync/atomic"

	"github.com/user/kamishibai/pkg/pipeline"
)

// Slot holds the current SourceImage. Readers always see either the previous or
// the new image in full; a nil value means nothing usable is selected.
type Slot struct {
	current atomic.Pointer[pipeline.SourceImage]
	version atomic.Uint64
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Current returns the selected image, or nil.
func (s *Slot) Current() *pipeline.SourceImage {
	return s.current.Load()
}

// Set replaces the selected image.
func (s *Slot) Set(img *pipeline.SourceImage) {
	s.current.Store(img)
	s.version.Add(1)
}

// Clear removes the selection so the producer falls back to the placeholder.
func (s *Slot) Clear() {
	s.Set(nil)
}

// Version increments on every Set and lets observers detect replacement.
func (s *Slot) Version() uint64 {
	return s.version.Load()
}
