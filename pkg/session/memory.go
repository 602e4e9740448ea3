package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory. It is the default store and
// suitable for single-process deployments. A session read back is the same
// pointer that was stored.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	capacity int
}

// WithCapacity presizes the session map.
// Default: 0.
func WithCapacity(n int) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		c.capacity = n
	}
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryStore{
		sessions: make(map[string]*Session, cfg.capacity),
	}
}

// GetOrCreate returns the session under id, creating and storing one on a miss.
func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrStoreClosed{}
	}
	if ok {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed{}
	}
	// Another goroutine may have created it meanwhile.
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s = New(id)
	m.sessions[id] = s
	return s, nil
}

// Put stores s under id.
func (m *MemoryStore) Put(ctx context.Context, id string, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed{}
	}
	m.sessions[id] = s
	return nil
}

// Contains reports whether id is stored.
func (m *MemoryStore) Contains(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrStoreClosed{}
	}
	_, ok := m.sessions[id]
	return ok, nil
}

// Close drops every session.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.sessions = nil
	return nil
}

// Count returns the number of sessions in the store.
// This is for monitoring/testing purposes.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
