package port

import (
	"context"

	"pixcache/internal/core/domain"
)

type ImageService interface {
	// Serve returns the encoded image for req, from cache when possible.
	Serve(ctx context.Context, req domain.TransformRequest) (*domain.Image, error)
}
