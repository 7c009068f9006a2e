// Package draft persists resumable snapshots of in-progress forms. Snapshots
// are keyed by flow identity, never expire on their own and are removed only
// by an explicit Delete after a terminal submission.
package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
)

// Snapshot is one persisted draft. Version is the schema version of Data so
// readers can discard snapshots written by an incompatible form.
type Snapshot struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Store is a small key-value cache with explicit invalidation.
type Store interface {
	// Load returns common.ErrNotFound when no snapshot exists.
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps snapshots in a map guarded by a RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	snap.Data = append(json.RawMessage(nil), snap.Data...)
	return &snap, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Data = append(json.RawMessage(nil), snap.Data...)
	m.snaps[key] = snap
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, key)
	return nil
}
