// Package recorder is a logging backend that keeps entries in memory, for
// tests that assert on what was logged.
package recorder

import (
	"strings"
	"sync"
)

type Entry struct {
	Level   string
	Message string
	Keyvals []any
}

// Recorder implements logger.LoggerInstance. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, message string, keyvals []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: message, Keyvals: keyvals})
}

func (r *Recorder) Log(message string, keyvals ...any)   { r.record("log", message, keyvals) }
func (r *Recorder) Debug(message string, keyvals ...any) { r.record("debug", message, keyvals) }
func (r *Recorder) Info(message string, keyvals ...any)  { r.record("info", message, keyvals) }
func (r *Recorder) Warn(message string, keyvals ...any)  { r.record("warn", message, keyvals) }
func (r *Recorder) Error(message string, keyvals ...any) { r.record("error", message, keyvals) }

// Fatal is recorded like any other level; it does not exit.
func (r *Recorder) Fatal(message string, keyvals ...any) { r.record("fatal", message, keyvals) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Find returns the entries at level whose message starts with prefix.
func (r *Recorder) Find(level, prefix string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level && strings.HasPrefix(e.Message, prefix) {
			out = append(out, e)
		}
	}
	return out
}
