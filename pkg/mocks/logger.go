package mocks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/kamishibai/pkg/ports"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level     ports.LogLevel
	Component string
	Message   string
}

type logRecord struct {
	mu      sync.Mutex
	entries []LogEntry
}

// Logger is a mock implementation of ports.Logger that records formatted messages.
// Loggers derived with WithComponent share the same record.
type Logger struct {
	rec       *logRecord
	component string
}

// NewLogger creates a new recording Logger.
func NewLogger() *Logger {
	return &Logger{rec: &logRecord{}}
}

func (m *Logger) log(level ports.LogLevel, msg string, args ...interface{}) {
	text := msg
	if len(args) > 0 {
		text = fmt.Sprintf(msg, args...)
	}
	m.rec.mu.Lock()
	m.rec.entries = append(m.rec.entries, LogEntry{Level: level, Component: m.component, Message: text})
	m.rec.mu.Unlock()
}

func (m *Logger) Debug(msg string, args ...interface{}) { m.log(ports.LevelDebug, msg, args...) }
func (m *Logger) Info(msg string, args ...interface{})  { m.log(ports.LevelInfo, msg, args...) }
func (m *Logger) Warn(msg string, args ...interface{})  { m.log(ports.LevelWarn, msg, args...) }
func (m *Logger) Error(msg string, args ...interface{}) { m.log(ports.LevelError, msg, args...) }

func (m *Logger) WithComponent(component string) ports.Logger {
	return &Logger{rec: m.rec, component: component}
}

// Entries returns all recorded entries.
func (m *Logger) Entries() []LogEntry {
	m.rec.mu.Lock()
	defer m.rec.mu.Unlock()
	out := make([]LogEntry, len(m.rec.entries))
	copy(out, m.rec.entries)
	return out
}

// Count returns how many entries at level contain substr.
func (m *Logger) Count(level ports.LogLevel, substr string) int {
	n := 0
	for _, e := range m.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

var _ ports.Logger = (*Logger)(nil)
