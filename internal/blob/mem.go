package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-process Store.
type MemStore struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objs: make(map[string][]byte)}
}

func (m *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), b...), nil
}

func (m *MemStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = append([]byte(nil), data...)
	return nil
}
