// Package hostclock implements ports.Clock on the process monotonic clock.
package hostclock

import (
	"time"

	"github.com/user/kamishibai/pkg/ports"
)

// Clock reports the time elapsed since it was created.
type Clock struct {
	start time.Time
}

// New starts a clock at zero.
func New() *Clock {
	return &Clock{start: time.Now()}
}

// Now returns the monotonic offset since New.
func (c *Clock) Now() time.Duration {
	return time.Since(c.start)
}

var _ ports.Clock = (*Clock)(nil)
