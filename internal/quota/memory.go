package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps quota state in process memory. Counts reset on restart
// and fragment across replicas, so it is only suitable for tests and local
// development.
type MemoryStore struct {
	mu        sync.Mutex
	states    map[string]State
	addresses map[string]int
	grants    map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:    make(map[string]State),
		addresses: make(map[string]int),
		grants:    make(map[string]int),
	}
}

func (m *MemoryStore) State(_ context.Context, key string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key], nil
}

func (m *MemoryStore) Debit(_ context.Context, key string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.states[key]
	switch {
	case s.FreeUsed < FreeQuota:
		s.FreeUsed++
	case s.Credits > 0:
		s.Credits--
	}
	m.states[key] = s
	return s, nil
}

func (m *MemoryStore) AddressCount(_ context.Context, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addresses[hash], nil
}

func (m *MemoryStore) IncrementAddress(_ context.Context, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[hash]++
	return m.addresses[hash], nil
}

func (m *MemoryStore) GrantCredits(_ context.Context, key, sessionID string, amount int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.grants[sessionID]; done {
		return m.states[key].Credits, true, nil
	}
	m.grants[sessionID] = amount
	s := m.states[key]
	s.Credits += amount
	m.states[key] = s
	return s.Credits, false, nil
}
