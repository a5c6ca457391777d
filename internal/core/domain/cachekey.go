package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// CacheKey names a cache entry. It is a flat file name: a 128-bit hex digest of the normalized
// source followed by a readable parameter suffix.
type CacheKey string

func (k CacheKey) String() string {
	return string(k)
}

// ETag returns a strong entity tag for the entry. Entries never change once written, so the
// key itself identifies the content.
func (k CacheKey) ETag() string {
	sum := sha256.Sum256([]byte(k))
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// IsRemote reports whether src is an http or https URL.
func IsRemote(src string) bool {
	i := strings.Index(src, "://")
	if i <= 0 {
		return false
	}
	scheme := strings.ToLower(src[:i])
	return scheme == "http" || scheme == "https"
}

// NormalizeSource returns the identity of a source for caching. Remote URLs are kept verbatim,
// local paths lose their query string.
func NormalizeSource(src string) string {
	if IsRemote(src) {
		return src
	}
	if i := strings.IndexByte(src, '?'); i >= 0 {
		return src[:i]
	}
	return src
}

func DeriveCacheKey(req TransformRequest) CacheKey {
	sum := sha256.Sum256([]byte(NormalizeSource(req.Source)))

	return CacheKey(fmt.Sprintf("%s_%sx%s_q%d.%s",
		hex.EncodeToString(sum[:16]),
		dimension(req.Width),
		dimension(req.Height),
		req.Quality,
		req.Format.Extension()))
}

func dimension(v int) string {
	if v <= 0 {
		return "auto"
	}
	return strconv.Itoa(v)
}

// BuildImageURL composes the endpoint URL a client should request for req. The source is
// normalized the same way DeriveCacheKey does it so both sides agree on identity.
func BuildImageURL(basePath string, req TransformRequest) string {
	if basePath == "" {
		basePath = "/image"
	}

	q := url.Values{}
	q.Set("src", NormalizeSource(req.Source))
	if req.Width > 0 {
		q.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		q.Set("height", strconv.Itoa(req.Height))
	}
	if req.Quality > 0 {
		q.Set("quality", strconv.Itoa(req.Quality))
	}
	if req.Format != "" {
		q.Set("format", string(req.Format))
	}

	return basePath + "?" + q.Encode()
}
