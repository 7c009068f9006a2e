package logging

import (
	"context"
	"sync"
)

// Entry is one captured log call.
type Entry struct {
	Level string
	Msg   string
	Attrs map[string]any
}

// Recorder keeps every entry in memory.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	base    []any
}

func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) Debug(_ context.Context, msg string, args ...any) { r.add("DEBUG", msg, args) }
func (r *Recorder) Info(_ context.Context, msg string, args ...any)  { r.add("INFO", msg, args) }
func (r *Recorder) Warn(_ context.Context, msg string, args ...any)  { r.add("WARN", msg, args) }
func (r *Recorder) Error(_ context.Context, msg string, args ...any) { r.add("ERROR", msg, args) }

// With shares the underlying buffer with the parent.
func (r *Recorder) With(args ...any) Logger {
	base := append(append([]any{}, r.base...), args...)
	return &Recorder{mu: r.mu, entries: r.entries, base: base}
}

// Entries returns a copy of everything logged so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), *r.entries...)
}

// Has reports whether a message was logged at level.
func (r *Recorder) Has(level, msg string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}

func (r *Recorder) add(level, msg string, args []any) {
	attrs := make(map[string]any)
	all := append(append([]any{}, r.base...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			attrs[k] = all[i+1]
		}
	}
	r.mu.Lock()
	*r.entries = append(*r.entries, Entry{Level: level, Msg: msg, Attrs: attrs})
	r.mu.Unlock()
}
