package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level of a toast
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toast is one transient user-facing notification
type Toast struct {
	Level     Level     `json:"level"`
	Entity    string    `json:"entity"`
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Notifier reports the outcome of slice operations to the operator
type Notifier interface {
	Success(entity, operation, message string)
	Error(entity, operation string, err error)
}

// LogNotifier writes toasts to slog
type LogNotifier struct{}

func (LogNotifier) Success(entity, operation, message string) {
	slog.Info(message, "entity", entity, "operation", operation)
}

func (LogNotifier) Error(entity, operation string, err error) {
	slog.Warn("Operation failed", "entity", entity, "operation", operation, "error", err)
}

// Feed keeps the most recent toasts in a bounded buffer and forwards them to
// an optional next notifier
type Feed struct {
	mu       sync.RWMutex
	toasts   []Toast
	capacity int
	next     Notifier
	now      func() time.Time
}

// NewFeed creates a feed holding at most capacity toasts
func NewFeed(capacity int, next Notifier) *Feed {
	if capacity <= 0 {
		capacity = 50
	}
	return &Feed{
		toasts:   make([]Toast, 0, capacity),
		capacity: capacity,
		next:     next,
		now:      time.Now,
	}
}

func (f *Feed) Success(entity, operation, message string) {
	f.push(Toast{Level: LevelSuccess, Entity: entity, Operation: operation, Message: message})
	if f.next != nil {
		f.next.Success(entity, operation, message)
	}
}

func (f *Feed) Error(entity, operation string, err error) {
	f.push(Toast{Level: LevelError, Entity: entity, Operation: operation, Message: err.Error()})
	if f.next != nil {
		f.next.Error(entity, operation, err)
	}
}

func (f *Feed) push(t Toast) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t.At = f.now()
	if len(f.toasts) == f.capacity {
		copy(f.toasts, f.toasts[1:])
		f.toasts = f.toasts[:len(f.toasts)-1]
	}
	f.toasts = append(f.toasts, t)
}

// Recent returns the buffered toasts, newest last
func (f *Feed) Recent() []Toast {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Toast, len(f.toasts))
	copy(out, f.toasts)
	return out
}

// Discard is a Notifier that drops every toast
type Discard struct{}

func (Discard) Success(string, string, string) {}
func (Discard) Error(string, string, error)    {}
