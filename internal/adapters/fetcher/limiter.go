package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out requests to the same upstream host.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	interval time.Duration
}

func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

// Wait blocks until a request to the host of rawURL may proceed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in url %q", rawURL)
	}

	return h.limiterFor(u.Host).Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.RLock()
	limiter, ok := h.limiters[host]
	h.mu.RUnlock()
	if ok {
		return limiter
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(h.interval), 1)
	h.limiters[host] = limiter

	return limiter
}
