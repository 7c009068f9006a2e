package email

import (
	"context"
	"sync"
)

// Sent is one recorded dispatch.
type Sent struct {
	Kind Kind
	To   string
	Data Data
}

// Recorder is an in-memory Dispatcher for tests. Recipients listed in Fail
// make Send report failure.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Fail map[string]bool
}

func NewRecorder() *Recorder {
	return &Recorder{Fail: map[string]bool{}}
}

func (r *Recorder) Send(_ context.Context, kind Kind, recipient string, data Data) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{Kind: kind, To: recipient, Data: data})
	return !r.Fail[recipient]
}

// Sent returns a copy of every recorded dispatch.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Count returns how many dispatches of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent dispatch of kind.
func (r *Recorder) Last(kind Kind) (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Kind == kind {
			return r.sent[i], true
		}
	}
	return Sent{}, false
}
