package domain

import "errors"

var (
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream fetch failed")
	ErrDecode     = errors.New("image decode failed")
	ErrStorage    = errors.New("cache write failed")
)

const (
	DefaultQuality = 80
	MinQuality     = 1
	MaxQuality     = 100
	DefaultFormat  = WebP
	// MaxDimension bounds requested widths and heights.
	MaxDimension = 16384
)
