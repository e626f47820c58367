package logging

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// Entry is one recorded log line.
type Entry struct {
	Level   ports.Level
	Message string
	Fields  map[string]interface{}
}

// MemoryLogger records entries in memory. Loggers derived via With share
// the same entry list.
type MemoryLogger struct {
	store  *memoryStore
	fields []ports.Field
}

type memoryStore struct {
	mu      sync.Mutex
	level   ports.Level
	entries []Entry
}

// NewMemoryLogger creates a recorder that keeps every level.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{store: &memoryStore{level: ports.LevelDebug}}
}

func (l *MemoryLogger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelDebug, msg, fields)
}

func (l *MemoryLogger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelInfo, msg, fields)
}

func (l *MemoryLogger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelWarn, msg, fields)
}

func (l *MemoryLogger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelError, msg, fields)
}

// With returns a recorder adding fields to each entry.
func (l *MemoryLogger) With(fields ...ports.Field) ports.Logger {
	return &MemoryLogger{store: l.store, fields: appendFields(l.fields, fields)}
}

func (l *MemoryLogger) Level() ports.Level {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return l.store.level
}

func (l *MemoryLogger) SetLevel(level ports.Level) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.level = level
}

// Entries returns a copy of the recorded entries.
func (l *MemoryLogger) Entries() []Entry {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	out := make([]Entry, len(l.store.entries))
	copy(out, l.store.entries)
	return out
}

// Messages returns the recorded messages at or above level.
func (l *MemoryLogger) Messages(level ports.Level) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level >= level {
			out = append(out, e.Message)
		}
	}
	return out
}

func (l *MemoryLogger) record(level ports.Level, msg string, fields []ports.Field) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if level < l.store.level {
		return
	}
	all := appendFields(l.fields, fields)
	m := make(map[string]interface{}, len(all))
	for _, f := range all {
		m[f.Key] = f.Value
	}
	l.store.entries = append(l.store.entries, Entry{Level: level, Message: msg, Fields: m})
}

var _ ports.Logger = (*MemoryLogger)(nil)
