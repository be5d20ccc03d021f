// Package logtest provides a slog handler that records log entries for tests.
package logtest

import (
	"context"
	"log/slog"
	"sync"
)

// Entry is a recorded log entry.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Recorder is a slog.Handler that keeps every entry in memory.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	attrs   []slog.Attr
}

// New returns a recorder and a logger writing to it.
func New() (*Recorder, *slog.Logger) {
	r := &Recorder{
		mu:      &sync.Mutex{},
		entries: &[]Entry{},
	}

	return r, slog.New(r)
}

// Enabled records every level.
func (r *Recorder) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle records the entry.
func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	entry := Entry{
		Level:   record.Level,
		Message: record.Message,
		Attrs:   make(map[string]any, len(r.attrs)+record.NumAttrs()),
	}

	for _, a := range r.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	*r.entries = append(*r.entries, entry)
	r.mu.Unlock()

	return nil
}

// WithAttrs returns a recorder sharing the entries of r.
func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Recorder{
		mu:      r.mu,
		entries: r.entries,
		attrs:   append(append([]slog.Attr(nil), r.attrs...), attrs...),
	}
}

// WithGroup is not supported, attributes stay ungrouped.
func (r *Recorder) WithGroup(string) slog.Handler {
	return r
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Entry(nil), *r.entries...)
}

// Count returns the number of entries with the provided level and message.
func (r *Recorder) Count(level slog.Level, message string) int {
	var n int

	for _, e := range r.Entries() {
		if e.Level == level && e.Message == message {
			n++
		}
	}

	return n
}

// CountLevel returns the number of entries at the provided level.
func (r *Recorder) CountLevel(level slog.Level) int {
	var n int

	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}

	return n
}
