package service

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"pixcache/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// SandboxResolver turns raw sources into locations. Local paths are confined to a root directory
// fixed at construction.
type SandboxResolver struct {
	root  string
	hosts *HostAllowlist
}

// NewSandboxResolver canonicalizes root, which must be an existing directory. A nil allowlist
// admits every remote host.
func NewSandboxResolver(root string, hosts *HostAllowlist) (*SandboxResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving sandbox root: %w", err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("error resolving sandbox root: %w", err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("error reading sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root is not a directory: %s", canonical)
	}

	log.Debug().Str("root", canonical).Msg("sandbox root configured")

	return &SandboxResolver{root: canonical, hosts: hosts}, nil
}

// Root returns the canonical sandbox root.
func (r *SandboxResolver) Root() string {
	return r.root
}

func (r *SandboxResolver) Resolve(raw string) (domain.Location, error) {
	if domain.IsRemote(raw) {
		return r.resolveRemote(raw)
	}

	return r.ResolveLocal(raw)
}

func (r *SandboxResolver) resolveRemote(raw string) (domain.Location, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return domain.Location{}, fmt.Errorf("%w: invalid source url", domain.ErrBadRequest)
	}

	if !r.hosts.IsAllowed(u.Hostname()) {
		log.Warn().Str("host", u.Hostname()).Msg("remote host not allowed")
		return domain.Location{}, fmt.Errorf("%w: remote host not allowed", domain.ErrForbidden)
	}

	return domain.RemoteLocation(raw), nil
}

// ResolveLocal maps rawPath onto the sandbox root. The returned path is canonical and strictly inside the
// root. Anything else, including symlinks pointing out of the root, yields domain.ErrForbidden. A path
// that does not exist is returned once its existing ancestors check out, so the fetch can report it
// as missing.
func (r *SandboxResolver) ResolveLocal(rawPath string) (domain.Location, error) {
	p := domain.NormalizeSource(rawPath)
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, string(filepath.Separator)) {
		p = p[1:]
	}

	joined := filepath.Join(r.root, filepath.FromSlash(p))
	if !within(r.root, joined) {
		log.Warn().Str("source", rawPath).Msg("source escapes sandbox root")
		return domain.Location{}, fmt.Errorf("%w: path outside of assets root", domain.ErrForbidden)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if !isMissing(err) {
			log.Warn().Err(err).Str("source", rawPath).Msg("failed to resolve source")
			return domain.Location{}, fmt.Errorf("%w: unresolvable path", domain.ErrForbidden)
		}

		resolved, err = r.resolveMissing(joined)
		if err != nil {
			log.Warn().Err(err).Str("source", rawPath).Msg("failed to resolve missing source")
			return domain.Location{}, fmt.Errorf("%w: path outside of assets root", domain.ErrForbidden)
		}
	}

	if !within(r.root, resolved) {
		log.Warn().Str("source", rawPath).Str("resolved", resolved).Msg("source links outside sandbox root")
		return domain.Location{}, fmt.Errorf("%w: path outside of assets root", domain.ErrForbidden)
	}

	return domain.LocalLocation(resolved), nil
}

// resolveMissing canonicalizes a path whose leaf does not exist: the deepest existing ancestor is
// resolved through its symlinks and the missing tail is appended to it. A dangling link right below
// that ancestor is an error since its target cannot be checked.
func (r *SandboxResolver) resolveMissing(p string) (string, error) {
	var tail []string
	for dir := p; ; {
		parent, base := filepath.Dir(dir), filepath.Base(dir)
		if parent == dir {
			return "", errors.New("no existing ancestor")
		}
		tail = append([]string{base}, tail...)

		resolved, err := filepath.EvalSymlinks(parent)
		if err == nil {
			next := filepath.Join(resolved, tail[0])
			if info, lerr := os.Lstat(next); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
				return "", fmt.Errorf("dangling link %s", tail[0])
			}
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !isMissing(err) {
			return "", err
		}

		dir = parent
	}
}

func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// within reports whether p lies strictly below root. Both must be clean absolute paths.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
