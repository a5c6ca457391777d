package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NewTransformRequest validates raw query values and fills in defaults. All failures wrap
// ErrBadRequest and are safe to show to clients.
func NewTransformRequest(source, width, height, quality, format string) (TransformRequest, error) {
	if strings.TrimSpace(source) == "" {
		return TransformRequest{}, fmt.Errorf("%w: missing src", ErrBadRequest)
	}

	w, err := parseDimension(width)
	if err != nil {
		return TransformRequest{}, fmt.Errorf("%w: invalid width", ErrBadRequest)
	}

	h, err := parseDimension(height)
	if err != nil {
		return TransformRequest{}, fmt.Errorf("%w: invalid height", ErrBadRequest)
	}

	q := DefaultQuality
	if quality != "" {
		q, err = strconv.Atoi(quality)
		if err != nil || q < MinQuality || q > MaxQuality {
			return TransformRequest{}, fmt.Errorf("%w: quality must be between %d and %d",
				ErrBadRequest, MinQuality, MaxQuality)
		}
	}

	f, ok := ParseFormat(format)
	if !ok {
		return TransformRequest{}, fmt.Errorf("%w: unsupported format", ErrBadRequest)
	}

	return TransformRequest{
		Source:  source,
		Width:   w,
		Height:  h,
		Quality: q,
		Format:  f,
	}, nil
}

func parseDimension(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("dimension must be positive: %d", v)
	}
	if v > MaxDimension {
		return 0, fmt.Errorf("dimension exceeds %d: %d", MaxDimension, v)
	}

	return v, nil
}
