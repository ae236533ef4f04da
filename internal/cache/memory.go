package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/siahsang/notes/internal/utils/collectionutils"
)

// sweepEvery is how many writes pass between sweeps of expired entries.
const sweepEvery = 256

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend keeps entries in process. Expired entries are dropped when read
// and swept periodically on write.
type MemoryBackend struct {
	entries *collectionutils.SafeMap[string, memoryEntry]
	clock   clock.Clock
	writes  atomic.Uint64
}

func NewMemoryBackend(clk clock.Clock) *MemoryBackend {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryBackend{
		entries: collectionutils.New[string, memoryEntry](),
		clock:   clk,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.expired(entry) {
		m.entries.DeleteIf(key, m.expired)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value for ttl. A non-positive ttl stores nothing.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.entries.Store(key, memoryEntry{value: value, expiresAt: m.clock.Now().Add(ttl)})
	if m.writes.Add(1)%sweepEvery == 0 {
		m.Purge()
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Purge drops every expired entry and returns how many there were.
func (m *MemoryBackend) Purge() int {
	return m.entries.DeleteFunc(func(_ string, entry memoryEntry) bool {
		return m.expired(entry)
	})
}

func (m *MemoryBackend) Len() int {
	return m.entries.Len()
}

func (m *MemoryBackend) expired(entry memoryEntry) bool {
	return !m.clock.Now().Before(entry.expiresAt)
}
