package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/keirav/manifold/internal/core/ports"
)

// memoryTier is a strict-LRU bounded map. All read-modify-write on the
// recency list happens under the mutex; a Get moves the entry to the front.
type memoryTier struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = most recent
	capacity int
}

type memoryEntry struct {
	env *envelope
	key string
}

func newMemoryTier(capacity int) *memoryTier {
	if capacity < 1 {
		capacity = 1
	}
	return &memoryTier{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

func (m *memoryTier) level() ports.CacheLevel {
	return ports.CacheLevelMemory
}

func (m *memoryTier) get(_ context.Context, key string) (*envelope, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if entry.env.expired(time.Now()) {
		m.order.Remove(elem)
		delete(m.entries, key)
		return nil, false, nil
	}

	m.order.MoveToFront(elem)
	return entry.env, true, nil
}

func (m *memoryTier) put(_ context.Context, key string, env *envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		elem.Value.(*memoryEntry).env = env
		m.order.MoveToFront(elem)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memoryEntry{key: key, env: env})

	for len(m.entries) > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

func (m *memoryTier) delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.order.Remove(elem)
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryTier) keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	return out, nil
}

func (m *memoryTier) clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*list.Element, m.capacity)
	m.order.Init()
	return nil
}

func (m *memoryTier) size(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
