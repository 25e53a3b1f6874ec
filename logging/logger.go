// Package logging provides structured JSON logging for the Spectra client.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level. An empty name means INFO.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", name)
	}
}

// Entry represents a single log entry with structured fields.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Duration  *int64         `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Logger writes JSON entries to any number of writers and fans them out to subscribers.
type Logger struct {
	mu          sync.RWMutex
	minLevel    Level
	writers     []io.Writer
	subscribers []chan<- Entry
}

// New creates a Logger that drops entries below minLevel.
func New(minLevel Level, writers ...io.Writer) *Logger {
	return &Logger{
		minLevel: minLevel,
		writers:  writers,
	}
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return New(ERROR + 1)
}

// Subscribe adds a channel to receive log entries in real-time.
func (l *Logger) Subscribe(ch chan<- Entry) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, ch)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.subscribers {
			if sub == ch {
				l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.minLevel
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Log writes a log entry at the specified level.
func (l *Logger) Log(level Level, category, message string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Category:  category,
		Message:   message,
		Fields:    fields,
	})
}

// Debug logs a debug message.
func (l *Logger) Debug(category, message string, fields map[string]any) {
	l.Log(DEBUG, category, message, fields)
}

// Info logs an info message.
func (l *Logger) Info(category, message string, fields map[string]any) {
	l.Log(INFO, category, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(category, message string, fields map[string]any) {
	l.Log(WARN, category, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(category, message string, err error, fields map[string]any) {
	if !l.Enabled(ERROR) {
		return
	}
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     ERROR.String(),
		Category:  category,
		Message:   message,
		Fields:    fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	l.write(entry)
}

func (l *Logger) write(entry Entry) {
	if l == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.mu.RLock()
	writers := l.writers
	subscribersCopy := make([]chan<- Entry, len(l.subscribers))
	copy(subscribersCopy, l.subscribers)
	l.mu.RUnlock()

	for _, w := range writers {
		_, _ = w.Write(data)
	}

	// Subscribers never block the caller.
	for _, ch := range subscribersCopy {
		select {
		case ch <- entry:
		default:
		}
	}
}
