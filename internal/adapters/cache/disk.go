// Package cache stores transformed images as flat files named by their cache key.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pixcache/internal/adapters/file"
	"pixcache/internal/core/domain"

	"github.com/rs/zerolog/log"
)

const defaultDirPerm = 0o755

// DiskCache keeps one file per cache key in dir. Entries are never modified in place and never evicted.
type DiskCache struct {
	dir string
}

// NewDiskCache returns a cache rooted at dir. The directory is created lazily on the first store.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("error resolving cache dir: %w", err)
	}

	return &DiskCache{dir: abs}, nil
}

func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) Lookup(key domain.CacheKey) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		log.Warn().Err(err).Str("key", key.String()).Msg("invalid cache key")
		return nil, false
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the cache key, not user input
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("key", key.String()).Msg("failed to read cache entry")
		}
		return nil, false
	}

	return data, true
}

// Contains reports whether an entry file exists for key without reading it.
func (c *DiskCache) Contains(key domain.CacheKey) bool {
	path, err := c.path(key)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (c *DiskCache) Store(key domain.CacheKey, data []byte) error {
	path, err := c.path(key)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	if err := os.MkdirAll(c.dir, defaultDirPerm); err != nil {
		return fmt.Errorf("%w: error creating cache dir: %w", domain.ErrStorage, err)
	}

	if err := file.WriteAtomic(c.dir, filepath.Base(path), data); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	log.Debug().Str("key", key.String()).Int("bytes", len(data)).Msg("stored cache entry")

	return nil
}

// Clear removes every entry, including leftover temp files. The directory itself is kept.
func (c *DiskCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading cache dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("error clearing cache dir: %w", errors.Join(errs...))
	}

	log.Info().Str("dir", c.dir).Int("entries", len(entries)).Msg("cleared image cache")

	return nil
}

func (c *DiskCache) path(key domain.CacheKey) (string, error) {
	name := key.String()
	if name == "" {
		return "", errors.New("cache key is empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("cache key is not a flat file name: %q", name)
	}

	return filepath.Join(c.dir, name), nil
}
