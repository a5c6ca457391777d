package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const DefaultDiscoverDepth = 4

var ErrRootNotFound = errors.New("assets root not found")

// DiscoverRoot searches searchPaths for the first directory containing marker, a path relative to the
// root being looked for. Directories are visited in lexical order up to maxDepth levels deep and hidden
// directories are skipped, so the result is stable across runs. It is meant to run once at startup.
func DiscoverRoot(searchPaths []string, marker string, maxDepth int) (string, error) {
	marker = strings.TrimPrefix(filepath.Clean(filepath.FromSlash(marker)), string(filepath.Separator))
	if marker == "" || marker == "." || strings.HasPrefix(marker, "..") {
		return "", fmt.Errorf("invalid marker %q", marker)
	}

	found := errors.New("found")

	for _, base := range searchPaths {
		base, err := filepath.Abs(base)
		if err != nil {
			return "", fmt.Errorf("error resolving search path: %w", err)
		}

		var root string
		err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if path != base && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}

			rel, _ := filepath.Rel(base, path)
			if rel != "." && strings.Count(rel, string(filepath.Separator))+1 > maxDepth {
				return fs.SkipDir
			}

			if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
				root = path
				return found
			}

			return nil
		})
		if errors.Is(err, found) {
			log.Info().Str("root", root).Str("marker", marker).Msg("discovered assets root")
			return root, nil
		}
		if err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%w: no directory contains %s", ErrRootNotFound, marker)
}
