package session

import (
	"sync"
	"time"

	"macrokit/internal/model"
)

const logCapacity = 200

// Log is the user-facing activity log. Recoverable failures are reported
// here instead of surfacing as errors to callers.
type Log struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Info(msg string) { l.append(model.LogInfo, msg) }
func (l *Log) Warn(msg string) { l.append(model.LogWarn, msg) }

func (l *Log) append(level model.LogLevel, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.LogEntry{
		At:      time.Now().UTC(),
		Level:   level,
		Message: msg,
	})
	if len(l.entries) > logCapacity {
		l.entries = l.entries[len(l.entries)-logCapacity:]
	}
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []model.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LogEntry(nil), l.entries...)
}

// Messages returns just the message strings, oldest first.
func (l *Log) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Message
	}
	return out
}
