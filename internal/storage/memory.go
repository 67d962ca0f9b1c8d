package storage

import (
	"context"
	"sync"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
)

// MemoryStore keeps the newest capacity detections in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	items    []domain.Detection // oldest first
	ids      map[string]struct{}
	closed   bool
}

// NewMemoryStore creates a ring buffer holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make([]domain.Detection, 0, capacity),
		ids:      make(map[string]struct{}, capacity),
	}
}

func (m *MemoryStore) Insert(_ context.Context, detections []domain.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, d := range detections {
		if _, dup := m.ids[d.ID]; dup {
			continue
		}
		m.items = append(m.items, d)
		m.ids[d.ID] = struct{}{}
	}
	if over := len(m.items) - m.capacity; over > 0 {
		for _, d := range m.items[:over] {
			delete(m.ids, d.ID)
		}
		m.items = append(m.items[:0:0], m.items[over:]...)
	}
	return nil
}

// Latest returns records in reverse insertion order, matching the SQL
// backends when readings arrive in time order.
func (m *MemoryStore) Latest(_ context.Context, limit int) ([]domain.Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	n := len(m.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Detection, n)
	for i := range out {
		out[i] = m.items[len(m.items)-1-i]
	}
	return out, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
