package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pixcache/internal/core/domain"
	"pixcache/internal/core/port"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	headerCacheControl = "Cache-Control"
	headerETag         = "ETag"
	headerIfNoneMatch  = "If-None-Match"
	headerXCache       = "X-Cache"
)

type ImageHandler struct {
	service      port.ImageService
	cacheControl string
	headers      map[string]string
}

// NewImageHandler returns a handler serving transformed images. headers are added to every successful
// response and may replace Cache-Control, but never Content-Type.
func NewImageHandler(service port.ImageService, cacheControl string, headers map[string]string) *ImageHandler {
	extra := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, echo.HeaderContentType) {
			log.Warn().Str("header", k).Msg("ignoring configured content type header")
			continue
		}
		extra[k] = v
	}

	return &ImageHandler{service: service, cacheControl: cacheControl, headers: extra}
}

func (h *ImageHandler) Handle(c echo.Context) error {
	req, err := domain.NewTransformRequest(
		c.QueryParam("src"),
		c.QueryParam("width"),
		c.QueryParam("height"),
		c.QueryParam("quality"),
		c.QueryParam("format"))
	if err != nil {
		log.Debug().Err(err).Str("query", c.QueryString()).Msg("rejected image request")
		return c.String(http.StatusBadRequest, err.Error())
	}

	l := log.With().
		Str("src", req.Source).
		Int("width", req.Width).
		Int("height", req.Height).
		Int("quality", req.Quality).
		Str("format", string(req.Format)).
		Logger()

	img, err := h.service.Serve(c.Request().Context(), req)
	if err != nil {
		status, message := errorResponse(err)
		if status >= http.StatusInternalServerError {
			l.Error().Err(err).Int("status", status).Msg("failed to serve image")
		} else {
			l.Info().Err(err).Int("status", status).Msg("rejected image request")
		}
		return c.String(status, message)
	}

	header := c.Response().Header()
	if h.cacheControl != "" {
		header.Set(headerCacheControl, h.cacheControl)
	}
	for k, v := range h.headers {
		header.Set(k, v)
	}

	etag := img.Key.ETag()
	header.Set(headerETag, etag)
	if img.Cached {
		header.Set(headerXCache, "HIT")
	} else {
		header.Set(headerXCache, "MISS")
	}

	if etagMatches(c.Request().Header.Get(headerIfNoneMatch), etag) {
		return c.NoContent(http.StatusNotModified)
	}

	l.Debug().Bool("cached", img.Cached).Int("bytes", len(img.Data)).Msg("serving image")

	return c.Blob(http.StatusOK, img.Format.ContentType(), img.Data)
}

// errorResponse maps service errors onto a status and a client safe message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError, "upstream fetch failed"
	case errors.Is(err, domain.ErrDecode):
		return http.StatusInternalServerError, "image processing failed"
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, "cache write failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}

	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}

	return false
}
