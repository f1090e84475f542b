package logging

import (
	"strings"
	"sync"
)

// Recorder is a Sink that keeps every entry in memory.
// Tests install one to assert on what an operation reported.
type Recorder struct {
	mu      sync.Mutex
	entries []LogEntry
	remove  func()
}

// NewRecorder creates a Recorder and registers it as a sink.
// Call Close to unregister it.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.remove = AddSink(r.record)
	return r
}

func (r *Recorder) record(e LogEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Has reports whether an entry with the given level contains substr.
func (r *Recorder) Has(level LogLevel, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Count returns how many entries were recorded at level.
func (r *Recorder) Count(level LogLevel) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Close unregisters the recorder.
func (r *Recorder) Close() {
	if r.remove != nil {
		r.remove()
	}
}
