package s3storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
)

// Memory is an in-process ObjectStore for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}, now: time.Now}
}

func memKey(b Bucket, key string) string {
	return b.String() + "/" + key
}

func (m *Memory) Put(_ context.Context, b Bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: got %d bytes, declared %d", len(data), size)
	}
	m.mu.Lock()
	m.objects[memKey(b, key)] = memObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, b Bucket, key string) ([]byte, error) {
	m.mu.RLock()
	obj, ok := m.objects[memKey(b, key)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", memKey(b, key), common.ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) Exists(_ context.Context, b Bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[memKey(b, key)]
	return ok, nil
}

func (m *Memory) Presign(_ context.Context, b Bucket, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[memKey(b, key)]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", memKey(b, key), common.ErrNotFound)
	}
	q := url.Values{"expires": {m.now().Add(ttl).UTC().Format(time.RFC3339)}}
	return "memory://" + memKey(b, key) + "?" + q.Encode(), nil
}

// ContentType returns the stored content type, for assertions.
func (m *Memory) ContentType(b Bucket, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[memKey(b, key)].contentType
}
