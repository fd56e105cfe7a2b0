// Package lifecycle multiplexes many stream consumers onto one frame producer.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// State is the lifecycle state.
type State int

const (
	// Idle means no consumer is streaming and no producer exists.
	Idle State = iota
	// Active means at least one consumer is streaming and the producer runs.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Producer is the component gated by the lifecycle.
type Producer interface {
	Start() error
	Stop()
}

// Factory constructs a fresh producer for each Idle to Active transition.
type Factory func() (Producer, error)

// Stats is a snapshot of lifecycle counters.
type Stats struct {
	State         State
	Consumers     int
	Constructions int
	Teardowns     int
}

// Lifecycle is a reference-counted start/stop state machine. One mutex guards
// the count together with producer construction and teardown, so concurrent
// Start and Stop calls observe a consistent state.
type Lifecycle struct {
	factory Factory
	logger  ports.Logger

	mu            sync.Mutex
	count         int
	producer      Producer
	constructions int
	teardowns     int
}

// New creates an idle lifecycle.
func New(factory Factory, logger ports.Logger) *Lifecycle {
	return &Lifecycle{
		factory: factory,
		logger:  logger.WithComponent("lifecycle"),
	}
}

// Start registers a consumer. The producer is constructed and started only when
// the first consumer arrives; a failure leaves the lifecycle Idle.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count++
		l.logger.Debug("Consumer joined, %d active", l.count)
		return nil
	}

	p, err := l.factory()
	if err != nil {
		return fmt.Errorf("failed to construct producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}
	l.producer = p
	l.count = 1
	l.constructions++
	l.logger.Info("Stream started")
	return nil
}

// Stop unregisters a consumer. The producer is stopped and discarded when the
// last consumer leaves. Stop while Idle does nothing.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.count == 0:
		l.logger.Debug("Stop ignored, stream is idle")
		return
	case l.count > 1:
		l.count--
		l.logger.Debug("Consumer left, %d active", l.count)
		return
	}

	l.producer.Stop()
	l.producer = nil
	l.count = 0
	l.teardowns++
	l.logger.Info("Stream stopped")
}

// Shutdown tears the producer down regardless of the consumer count.
func (l *Lifecycle) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return
	}
	l.producer.Stop()
	l.producer = nil
	l.count = 0
	l.teardowns++
	l.logger.Info("Stream shut down")
}

// State returns Active when a producer is running.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count > 0 {
		return Active
	}
	return Idle
}

// Count returns the number of active consumers.
func (l *Lifecycle) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Stats returns a snapshot of the counters.
func (l *Lifecycle) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Stats{
		State:         Idle,
		Consumers:     l.count,
		Constructions: l.constructions,
		Teardowns:     l.teardowns,
	}
	if l.count > 0 {
		st.State = Active
	}
	return st
}
