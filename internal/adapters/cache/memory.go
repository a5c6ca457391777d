package cache

import (
	"fmt"

	"pixcache/internal/core/domain"
	"pixcache/internal/core/port"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// MaxMemoryEntryBytes bounds the size of a single entry kept in memory. Larger entries are served
// from the backing cache only.
const MaxMemoryEntryBytes = 2 << 20

// presenceChecker is implemented by backing caches that can cheaply confirm an entry still exists.
type presenceChecker interface {
	Contains(key domain.CacheKey) bool
}

// MemoryTier keeps recently used entries of a backing cache in memory. The backing cache stays the
// source of truth: an entry is only held in memory once the backing cache has it, and when the
// backing cache implements Contains a memory hit is dropped once the backing entry is gone.
type MemoryTier struct {
	backing port.ImageCache
	entries *lru.Cache[domain.CacheKey, []byte]
}

func NewMemoryTier(backing port.ImageCache, size int) (*MemoryTier, error) {
	entries, err := lru.New[domain.CacheKey, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("error creating memory cache: %w", err)
	}

	return &MemoryTier{backing: backing, entries: entries}, nil
}

func (m *MemoryTier) Lookup(key domain.CacheKey) ([]byte, bool) {
	if data, ok := m.entries.Get(key); ok {
		if m.present(key) {
			return data, true
		}
		m.entries.Remove(key)
		log.Debug().Str("key", key.String()).Msg("dropped memory entry removed from backing cache")
	}

	data, ok := m.backing.Lookup(key)
	if !ok {
		return nil, false
	}

	m.remember(key, data)

	return data, true
}

func (m *MemoryTier) Store(key domain.CacheKey, data []byte) error {
	if err := m.backing.Store(key, data); err != nil {
		return err
	}

	m.remember(key, data)

	return nil
}

// Len reports the number of entries held in memory.
func (m *MemoryTier) Len() int {
	return m.entries.Len()
}

func (m *MemoryTier) present(key domain.CacheKey) bool {
	checker, ok := m.backing.(presenceChecker)
	if !ok {
		return true
	}

	return checker.Contains(key)
}

func (m *MemoryTier) remember(key domain.CacheKey, data []byte) {
	if len(data) > MaxMemoryEntryBytes {
		return
	}

	if evicted := m.entries.Add(key, data); evicted {
		log.Debug().Str("key", key.String()).Msg("memory cache evicted an entry")
	}
}
