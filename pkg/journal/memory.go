package journal

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps events in process
type Memory struct {
	mu     sync.RWMutex
	events []Event
	closed bool
}

// NewMemory creates an empty in-memory journal
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.events = append(m.events, prepare(ev))
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := append([]Event(nil), m.events...)
	sort.Slice(out, func(i, j int) bool { return sortKey(out[i]) > sortKey(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
