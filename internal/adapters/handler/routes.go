package handler

import (
	"net/http"
	"time"

	"pixcache/internal/core/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultImagePath = "/image"

type Routes struct {
	ImagePath string
	Image     *ImageHandler
	Stats     *service.Stats
}

// NewEcho builds the HTTP server with the image endpoint, health check, stats and metrics.
func NewEcho(r Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger())

	path := r.ImagePath
	if path == "" {
		path = DefaultImagePath
	}

	e.GET(path, r.Image.Handle)
	e.GET("/healthz", health)
	if r.Stats != nil {
		e.GET("/stats", stats(r.Stats))
		e.GET("/metrics", metricsHandler(r.Stats))
	}

	log.Info().Str("path", path).Msg("registered image endpoint")

	return e
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func stats(s *service.Stats) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, s.Snapshot())
	}
}

// RequestLogger logs every request with zerolog once the response is written.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			level := zerolog.DebugLevel
			if res.Status >= http.StatusInternalServerError {
				level = zerolog.WarnLevel
			}

			log.WithLevel(level).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("requestId", res.Header().Get(echo.HeaderXRequestID)).
				Int("status", res.Status).
				Int64("bytes", res.Size).
				Dur("latency", time.Since(start)).
				Msg("handled request")

			return nil
		}
	}
}
