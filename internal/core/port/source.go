package port

import (
	"context"

	"pixcache/internal/core/domain"
)

type SourceResolver interface {
	// Resolve classifies a raw source as remote or local. Local sources escaping the sandbox root yield an
	// error wrapping domain.ErrForbidden.
	Resolve(raw string) (domain.Location, error)
}

type SourceFetcher interface {
	// Fetch returns the raw bytes behind a resolved location.
	Fetch(ctx context.Context, loc domain.Location) ([]byte, error)
}
