package port

import "pixcache/internal/core/domain"

type ImageCache interface {
	// Lookup returns the stored bytes for key. Any read failure is reported as a miss.
	Lookup(key domain.CacheKey) ([]byte, bool)
	// Store persists data under key. A partially written entry is never visible to Lookup.
	Store(key domain.CacheKey, data []byte) error
}
