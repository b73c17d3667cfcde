package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps states in memory. It is used for dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	states  map[string]State
	flushes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Get(_ context.Context, sourceID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sourceID]
	if !ok {
		return State{SourceID: sourceID}, nil
	}
	return st, nil
}

func (m *MemoryStore) Set(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SourceID] = state
	return nil
}

func (m *MemoryStore) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sourceID)
	return nil
}

// Flushes returns how often Flush has been called.
func (m *MemoryStore) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

func (m *MemoryStore) List(context.Context) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]State, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}
