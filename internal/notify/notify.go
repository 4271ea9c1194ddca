// Package notify is the transient user-notification layer. Every dispatcher
// outcome the operator should see passes through a Notifier; nothing here is
// persisted.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prescripto/clinic-console/pkg/logging"
)

// Level distinguishes success toasts from failure toasts.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one transient message shown to the operator.
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives transient notifications from dispatchers.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(message string) {
	n.logger.Info("notice", "level", "success", "message", message)
}

func (n *LogNotifier) Error(message string) {
	n.logger.Warn("notice", "level", "error", "message", message)
}

// Recorder keeps the most recent notifications in memory. The console serves
// it as the notification feed; tests use it to assert on dispatcher outcomes.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewRecorder creates a recorder that retains at most limit notifications.
// A non-positive limit keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Success(message string) {
	r.record(LevelSuccess, message)
}

func (r *Recorder) Error(message string) {
	r.record(LevelError, message)
}

func (r *Recorder) record(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		At:      time.Now(),
	})
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
}

// Notifications returns a copy of the retained notifications, oldest first.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Reset drops all retained notifications.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Multi fans one notification out to several sinks.
func Multi(sinks ...Notifier) Notifier {
	return multi(sinks)
}

type multi []Notifier

func (m multi) Success(message string) {
	for _, n := range m {
		n.Success(message)
	}
}

func (m multi) Error(message string) {
	for _, n := range m {
		n.Error(message)
	}
}

// Ensure interface compliance
var _ Notifier = (*LogNotifier)(nil)
var _ Notifier = (*Recorder)(nil)
var _ Notifier = (multi)(nil)
