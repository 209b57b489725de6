package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wikimedia/wikimedia-ocr/engine"
)

type memoryEntry struct {
	result  engine.Result
	expires time.Time
}

// Memory is the in-process store used when no shared backend is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (engine.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return engine.Result{}, false, nil
	}
	if m.now().After(entry.expires) {
		delete(m.entries, key)
		return engine.Result{}, false, nil
	}
	return entry.result, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, result engine.Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Expired entries are cleaned up on writes.
	now := m.now()
	for k, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, k)
		}
	}

	m.entries[key] = memoryEntry{result: result, expires: now.Add(ttl)}
	return nil
}

var _ Store = (*Memory)(nil)
