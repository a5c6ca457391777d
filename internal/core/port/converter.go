package port

import (
	"context"

	"pixcache/internal/core/domain"
)

type ImageConverter interface {
	// Transform decodes data, resizes it to fit the requested box without upscaling and encodes it in the
	// requested format and quality. Undecodable input yields an error wrapping domain.ErrDecode.
	Transform(ctx context.Context, data []byte, opts domain.TransformOptions) ([]byte, error)
}
