package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pixcache/internal/adapters/cache"
	"pixcache/internal/adapters/converter"
	"pixcache/internal/adapters/fetcher"
	"pixcache/internal/adapters/handler"
	"pixcache/internal/config"
	"pixcache/internal/core/port"
	"pixcache/internal/core/service"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Info().Msg("starting pixcache...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}

	zerolog.SetGlobalLevel(cfg.Server.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cfg.Assets.Root
	if cfg.Assets.Discover {
		discovered, err := service.DiscoverRoot(cfg.Assets.SearchPaths, cfg.Assets.Marker, service.DefaultDiscoverDepth)
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("assets root discovery failed, using configured root")
		} else {
			root = discovered
		}
	}

	hosts := service.NewHostAllowlist(cfg.Remote.AllowedHosts)

	resolver, err := service.NewSandboxResolver(root, hosts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed initializing sandbox resolver")
	}

	diskCache, err := cache.NewDiskCache(cfg.Cache.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed initializing disk cache")
	}

	if cfg.Cache.ClearOnStart {
		if err := diskCache.Clear(); err != nil {
			log.Fatal().Err(err).Msg("failed clearing disk cache")
		}
	}

	var imageCache port.ImageCache = diskCache
	if cfg.Cache.MemoryEntries > 0 {
		imageCache, err = cache.NewMemoryTier(diskCache, cfg.Cache.MemoryEntries)
		if err != nil {
			log.Fatal().Err(err).Msg("failed initializing memory cache")
		}
	}

	var imageConverter port.ImageConverter
	switch cfg.Transform.Engine {
	case "magick":
		imageConverter, err = converter.NewMagickConverter()
		if err != nil {
			log.Panic().Err(err).Msg("failed initializing magick converter")
		}
	default:
		imageConverter = converter.NewImagingConverter()
	}

	stats := service.NewStats()
	go stats.Report(ctx, cfg.Server.StatsInterval)

	imageService := service.NewImageService(
		resolver,
		fetcher.NewFetcher(cfg.Remote.Timeout, cfg.Remote.MaxBytes, fetcher.WithHostInterval(cfg.Remote.HostInterval)),
		imageConverter,
		imageCache,
		service.WithStats(stats),
		service.WithRequirePersist(cfg.Image.RequirePersist),
		service.WithCoalescing(cfg.Image.Coalesce))

	e := handler.NewEcho(handler.Routes{
		ImagePath: cfg.Image.Path,
		Image:     handler.NewImageHandler(imageService, cfg.Image.CacheControl, cfg.Image.Headers),
		Stats:     stats,
	})

	go func() {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("root", resolver.Root()).
			Str("cache", diskCache.Dir()).
			Str("engine", cfg.Transform.Engine).
			Msg("server listening")

		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
