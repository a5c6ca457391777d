package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"syscall"
	"time"

	"pixcache/internal/adapters/file"
	"pixcache/internal/core/domain"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 20 << 20
)

// Fetcher reads sources from the network or from the sandboxed assets directory.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	limiter  *HostLimiter
}

type Option func(*Fetcher)

// WithHostInterval enforces a minimum gap between requests to the same host. Zero disables it.
func WithHostInterval(interval time.Duration) Option {
	return func(f *Fetcher) {
		if interval > 0 {
			f.limiter = NewHostLimiter(interval)
		} else {
			f.limiter = nil
		}
	}
}

// NewFetcher returns a fetcher whose remote requests give up after timeout and whose remote bodies may
// not exceed maxBytes.
func NewFetcher(timeout time.Duration, maxBytes int64, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	f := &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Fetcher) Fetch(ctx context.Context, loc domain.Location) ([]byte, error) {
	switch loc.Kind {
	case domain.Remote:
		return f.fetchRemote(ctx, loc.URL)
	case domain.Local:
		return f.fetchLocal(loc.Path)
	default:
		return nil, fmt.Errorf("unknown location kind %d", loc.Kind)
	}
}

func (f *Fetcher) fetchRemote(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
	}

	data, err := file.Download(ctx, f.client, url, f.maxBytes)
	if err == nil {
		return data, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var statusErr *file.StatusError
	if errors.As(err, &statusErr) {
		return nil, fmt.Errorf("%w: upstream responded %d %s", domain.ErrUpstream, statusErr.Code,
			http.StatusText(statusErr.Code))
	}

	return nil, fmt.Errorf("%w: %w", domain.ErrUpstream, err)
}

func (f *Fetcher) fetchLocal(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, fmt.Errorf("%w: source file", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("error reading source file %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: source is a directory", domain.ErrNotFound)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading source file %w", err)
	}

	log.Debug().Int("bytes", len(data)).Str("path", path).Msg("read source file")

	return data, nil
}
