package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. Used by tests and dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// keyMu guards keyLocks, one update lock per key
	keyMu    sync.Mutex
	keyLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	l := s.lockFor(key)
	l.Lock()
	defer l.Unlock()
	return readModifyWrite(ctx, s, key, fn)
}

func (s *MemoryStore) lockFor(key string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}

func (s *MemoryStore) Close() error {
	return nil
}
