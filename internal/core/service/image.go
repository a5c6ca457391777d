package service

import (
	"context"
	"errors"
	"fmt"

	"pixcache/internal/core/domain"
	"pixcache/internal/core/port"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ImageService runs the cache-check, resolve, fetch, transform and store steps for a request.
type ImageService struct {
	resolver       port.SourceResolver
	fetcher        port.SourceFetcher
	converter      port.ImageConverter
	cache          port.ImageCache
	stats          *Stats
	requirePersist bool
	group          *singleflight.Group
}

type Option func(*ImageService)

// WithRequirePersist makes a failed cache write fail the request instead of only being logged.
func WithRequirePersist(require bool) Option {
	return func(s *ImageService) {
		s.requirePersist = require
	}
}

// WithCoalescing shares one fetch and transform between concurrent misses for the same key.
func WithCoalescing(enabled bool) Option {
	return func(s *ImageService) {
		if enabled {
			s.group = &singleflight.Group{}
		} else {
			s.group = nil
		}
	}
}

func WithStats(stats *Stats) Option {
	return func(s *ImageService) {
		s.stats = stats
	}
}

func NewImageService(resolver port.SourceResolver, fetcher port.SourceFetcher, converter port.ImageConverter,
	cache port.ImageCache, opts ...Option) *ImageService {
	s := &ImageService{
		resolver:  resolver,
		fetcher:   fetcher,
		converter: converter,
		cache:     cache,
		stats:     NewStats(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *ImageService) Stats() *Stats {
	return s.stats
}

func (s *ImageService) Serve(ctx context.Context, req domain.TransformRequest) (*domain.Image, error) {
	if req.Source == "" {
		return nil, fmt.Errorf("%w: missing src", domain.ErrBadRequest)
	}

	key := domain.DeriveCacheKey(req)
	l := log.With().Str("key", key.String()).Logger()

	if data, ok := s.cache.Lookup(key); ok {
		s.stats.Hit()
		l.Debug().Int("bytes", len(data)).Msg("cache hit")
		return &domain.Image{Data: data, Format: req.Format, Key: key, Cached: true}, nil
	}

	s.stats.Miss()
	l.Debug().Msg("cache miss")

	var (
		img *domain.Image
		err error
	)
	if s.group == nil {
		img, err = s.fill(ctx, l, key, req)
	} else {
		img, err = s.fillShared(ctx, l, key, req)
	}
	if err != nil {
		s.stats.Failure()
		return nil, err
	}

	return img, nil
}

func (s *ImageService) fillShared(ctx context.Context, l zerolog.Logger, key domain.CacheKey,
	req domain.TransformRequest) (*domain.Image, error) {
	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		return s.fill(context.WithoutCancel(ctx), l, key, req)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.Debug().Msg("joined in-flight transform")
		}
		img := *res.Val.(*domain.Image)
		return &img, nil
	}
}

func (s *ImageService) fill(ctx context.Context, l zerolog.Logger, key domain.CacheKey,
	req domain.TransformRequest) (*domain.Image, error) {
	loc, err := s.resolver.Resolve(req.Source)
	if err != nil {
		l.Info().Err(err).Str("source", req.Source).Msg("failed to resolve source")
		return nil, err
	}

	data, err := s.fetcher.Fetch(ctx, loc)
	if err != nil {
		l.Error().Err(err).Str("source", req.Source).Str("kind", loc.Kind.String()).Msg("failed to fetch source")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.converter.Transform(ctx, data, req.Options())
	if err != nil {
		l.Error().Err(err).Str("source", req.Source).Msg("failed to transform image")
		return nil, err
	}

	s.stats.Fill()

	if err := s.cache.Store(key, out); err != nil {
		s.stats.StoreFailure()
		if s.requirePersist {
			l.Error().Err(err).Msg("failed to persist transformed image")
			if errors.Is(err, domain.ErrStorage) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrStorage, err)
		}
		l.Warn().Err(err).Msg("failed to persist transformed image, serving uncached")
	}

	l.Debug().Int("bytes", len(out)).Str("kind", loc.Kind.String()).Msg("transformed image")

	return &domain.Image{Data: out, Format: req.Format, Key: key}, nil
}
