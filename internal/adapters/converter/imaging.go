package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"

	"pixcache/internal/core/domain"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
)

const avifSpeed = 8

// ImagingConverter transforms images in process.
type ImagingConverter struct {
	filter imaging.ResampleFilter
}

func NewImagingConverter() *ImagingConverter {
	return &ImagingConverter{filter: imaging.Lanczos}
}

func (c *ImagingConverter) Transform(ctx context.Context, data []byte, opts domain.TransformOptions) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", domain.ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDecode, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := domain.FitDimensions(bounds.Dx(), bounds.Dy(), opts.Width, opts.Height)
	if width != bounds.Dx() || height != bounds.Dy() {
		img = imaging.Resize(img, width, height, c.filter)
	}

	log.Debug().
		Int("srcWidth", bounds.Dx()).
		Int("srcHeight", bounds.Dy()).
		Int("width", width).
		Int("height", height).
		Str("format", string(opts.Format)).
		Msg("encoding image")

	var buf bytes.Buffer
	if err := encode(&buf, img, opts.Format, opts.Quality); err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", opts.Format, err)
	}

	return buf.Bytes(), nil
}

func encode(w io.Writer, img image.Image, format domain.Format, quality int) error {
	if quality < domain.MinQuality || quality > domain.MaxQuality {
		quality = domain.DefaultQuality
	}

	switch format {
	case domain.JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case domain.PNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case domain.GIF:
		return imaging.Encode(w, img, imaging.GIF)
	case domain.WebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	case domain.AVIF:
		return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: avifSpeed})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
