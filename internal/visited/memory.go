package visited

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process cache used by tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Has(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.entries[id]
	return ok, nil
}

func (m *Memory) Add(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("visited entry requires an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.entries[entry.ID]; ok {
		return nil
	}
	m.entries[entry.ID] = stamp(entry)
	return nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.entries), nil
}

func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].VisitedAt.Equal(entries[j].VisitedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].VisitedAt.Before(entries[j].VisitedAt)
	})
}
