package draft

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
)

func snap(data string) Snapshot {
	return Snapshot{Version: 1, SavedAt: time.Unix(1700000000, 0).UTC(), Data: json.RawMessage(data)}
}

func TestMemoryStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Load(ctx, "k")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Save(ctx, "k", snap(`{"a":1}`)))
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Data))
	assert.Equal(t, 1, got.Version)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Load(ctx, "k")
	require.ErrorIs(t, err, common.ErrNotFound)
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisStore_PrefixesKeysWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	s := NewRedisStore(fr, 0)

	require.NoError(t, s.Save(ctx, "terms:tok", snap(`{"fields":{"legalName":"Ana"}}`)))
	assert.Contains(t, fr.data, "draft:terms:tok")
	assert.Equal(t, time.Duration(0), fr.ttl["draft:terms:tok"])

	got, err := s.Load(ctx, "terms:tok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":{"legalName":"Ana"}}`, string(got.Data))

	require.NoError(t, s.Delete(ctx, "terms:tok"))
	_, err = s.Load(ctx, "terms:tok")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRedisStore_WrapsErrors(t *testing.T) {
	fr := newFakeRedis()
	fr.err = errors.New("conn refused")
	s := NewRedisStore(fr, time.Hour)

	_, err := s.Load(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), "get draft")
}

type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, key string, s Snapshot) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.MemoryStore.Save(ctx, key, s)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	d := NewDebouncer(store, 30*time.Millisecond, nil)

	d.Schedule("k", snap(`{"n":1}`))
	d.Schedule("k", snap(`{"n":2}`))
	d.Schedule("k", snap(`{"n":3}`))

	require.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
	got, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":3}`, string(got.Data))
	assert.False(t, d.Pending("k"))
}

func TestDebouncer_CancelDropsPending(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	d := NewDebouncer(store, 20*time.Millisecond, nil)

	d.Schedule("k", snap(`{}`))
	d.Cancel("k")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, store.count())
}

func TestDebouncer_FlushWritesImmediately(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	d := NewDebouncer(store, time.Hour, nil)

	d.Schedule("k", snap(`{"x":true}`))
	require.NoError(t, d.Flush(context.Background(), "k"))
	assert.Equal(t, 1, store.count())
	require.NoError(t, d.Flush(context.Background(), "k"))
	assert.Equal(t, 1, store.count())
}

type blockingStore struct {
	*MemoryStore
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, key string, s Snapshot) error {
	close(b.started)
	<-b.release
	return b.MemoryStore.Save(ctx, key, s)
}

func TestDebouncer_ClearWaitsForWriteInProgress(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{MemoryStore: NewMemoryStore(), started: make(chan struct{}), release: make(chan struct{})}
	d := NewDebouncer(store, time.Hour, nil)

	d.Schedule("k", snap(`{"stale":true}`))
	flushed := make(chan error, 1)
	go func() { flushed <- d.Flush(ctx, "k") }()
	<-store.started

	cleared := make(chan error, 1)
	go func() { cleared <- d.Clear(ctx, "k") }()

	select {
	case <-cleared:
		t.Fatal("clear returned while a write was in progress")
	case <-time.After(30 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-flushed)
	require.NoError(t, <-cleared)

	_, err := store.Load(ctx, "k")
	require.ErrorIs(t, err, common.ErrNotFound, "cleared draft must stay deleted")
	assert.Empty(t, d.writes)
}

func TestDebouncer_CancelWaitsForWriteInProgress(t *testing.T) {
	ctx := context.Background()
	store := &blockingStore{MemoryStore: NewMemoryStore(), started: make(chan struct{}), release: make(chan struct{})}
	d := NewDebouncer(store, time.Hour, nil)

	d.Schedule("k", snap(`{}`))
	go func() { _ = d.Flush(ctx, "k") }()
	<-store.started

	canceled := make(chan struct{})
	go func() {
		d.Cancel("k")
		close(canceled)
	}()
	select {
	case <-canceled:
		t.Fatal("cancel returned while a write was in progress")
	case <-time.After(30 * time.Millisecond):
	}
	close(store.release)
	<-canceled

	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.Load(ctx, "k")
	require.ErrorIs(t, err, common.ErrNotFound)
}
