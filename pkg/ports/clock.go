package ports

import "time"

// Clock reports host time as a monotonic offset, used to stamp presentation times.
type Clock interface {
	Now() time.Duration
}
