package draft

import (
	"context"
	"sync"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/logging"
)

const writeTimeout = 5 * time.Second

// Debouncer coalesces rapid saves per key and writes the latest snapshot once
// the key has been quiet for delay. Writes and clears of one key are
// serialized, so a write that already left the queue cannot land after a
// Clear of the same key.
type Debouncer struct {
	store  Store
	delay  time.Duration
	logger logging.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Snapshot
	writes  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewDebouncer(store Store, delay time.Duration, logger logging.Logger) *Debouncer {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Debouncer{
		store:   store,
		delay:   delay,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]Snapshot),
		writes:  make(map[string]*keyLock),
	}
}

// Schedule replaces the pending snapshot for key and restarts its timer.
func (d *Debouncer) Schedule(key string, snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[key] = snap
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := d.Flush(ctx, key); err != nil {
			d.logger.Warn(ctx, "draft write failed", "key", key, "error", err)
		}
	})
}

// Flush writes the pending snapshot for key immediately, if any.
func (d *Debouncer) Flush(ctx context.Context, key string) error {
	unlock := d.lockKey(key)
	defer unlock()

	d.mu.Lock()
	snap, ok := d.take(key)
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.store.Save(ctx, key, snap)
}

// Cancel drops the pending snapshot for key without writing it. It returns
// once any write of key already in progress has finished.
func (d *Debouncer) Cancel(key string) {
	unlock := d.lockKey(key)
	defer unlock()

	d.mu.Lock()
	d.take(key)
	d.mu.Unlock()
}

// Clear drops the pending snapshot for key and deletes the stored one.
func (d *Debouncer) Clear(ctx context.Context, key string) error {
	unlock := d.lockKey(key)
	defer unlock()

	d.mu.Lock()
	d.take(key)
	d.mu.Unlock()
	return d.store.Delete(ctx, key)
}

// take removes and returns the pending snapshot of key. d.mu must be held.
func (d *Debouncer) take(key string) (Snapshot, bool) {
	snap, ok := d.pending[key]
	delete(d.pending, key)
	if t, found := d.timers[key]; found {
		t.Stop()
		delete(d.timers, key)
	}
	return snap, ok
}

// lockKey serializes store writes of key and returns the matching unlock.
func (d *Debouncer) lockKey(key string) func() {
	d.mu.Lock()
	l, ok := d.writes[key]
	if !ok {
		l = &keyLock{}
		d.writes[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(d.writes, key)
		}
		d.mu.Unlock()
	}
}

// Pending reports whether key has an unwritten snapshot.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
