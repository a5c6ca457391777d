package domain

import "strings"

type Format string

const (
	WebP Format = "webp"
	JPEG Format = "jpeg"
	PNG  Format = "png"
	AVIF Format = "avif"
	GIF  Format = "gif"
)

// ParseFormat maps a user supplied format name onto a known output format. The empty string
// selects the default format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultFormat, true
	case "webp":
		return WebP, true
	case "jpeg", "jpg":
		return JPEG, true
	case "png":
		return PNG, true
	case "avif":
		return AVIF, true
	case "gif":
		return GIF, true
	default:
		return "", false
	}
}

func (f Format) ContentType() string {
	return "image/" + string(f)
}

func (f Format) Extension() string {
	return string(f)
}

// Lossless reports whether the encoder ignores the quality setting.
func (f Format) Lossless() bool {
	return f == PNG || f == GIF
}

// TransformRequest describes a single transformation. Width and Height are zero when absent.
type TransformRequest struct {
	Source  string
	Width   int
	Height  int
	Quality int
	Format  Format
}

func (r TransformRequest) Options() TransformOptions {
	return TransformOptions{
		Width:   r.Width,
		Height:  r.Height,
		Quality: r.Quality,
		Format:  r.Format,
	}
}

// TransformOptions is the part of a request the transform engine cares about.
type TransformOptions struct {
	Width   int
	Height  int
	Quality int
	Format  Format
}

type LocationKind int

const (
	Remote LocationKind = iota + 1
	Local
)

func (k LocationKind) String() string {
	switch k {
	case Remote:
		return "remote"
	case Local:
		return "local"
	default:
		return "unknown"
	}
}

// Location is a resolved source. For Local locations Path is an absolute path inside the
// sandbox root; for Remote locations URL is the source as requested.
type Location struct {
	Kind LocationKind
	URL  string
	Path string
}

func RemoteLocation(url string) Location {
	return Location{Kind: Remote, URL: url}
}

func LocalLocation(path string) Location {
	return Location{Kind: Local, Path: path}
}

// Image is a fully encoded transform result.
type Image struct {
	Data   []byte
	Format Format
	Key    CacheKey
	Cached bool
}
