package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strconv"

	"pixcache/internal/adapters/file"
	"pixcache/internal/core/domain"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// MagickConverter shells out to ImageMagick. Geometry is computed in Go on the EXIF-oriented source
// so both engines size images identically.
type MagickConverter struct {
	magickBinary []string
}

func NewMagickConverter() (*MagickConverter, error) {
	eh := &MagickConverter{}
	commands := [][]string{{"magick", "-version"}, {"convert", "-version"}}

	for _, command := range commands {
		_, err := exec.Command(command[0], command[1:]...).Output()
		if err != nil {
			log.Debug().Strs("commands", command).Msg("binary not found")
			continue
		}

		log.Debug().Strs("commands", command).Msg("binary found")
		eh.magickBinary = command[:len(command)-1]
		break
	}

	if len(eh.magickBinary) == 0 {
		return nil, errors.New("magick binary not available")
	}

	return eh, nil
}

func (m *MagickConverter) Transform(ctx context.Context, data []byte, opts domain.TransformOptions) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDecode, err)
	}

	bounds := src.Bounds()
	width, height := domain.FitDimensions(bounds.Dx(), bounds.Dy(), opts.Width, opts.Height)

	in, err := file.SaveTemp(data, "")
	if err != nil {
		return nil, err
	}
	defer file.RemoveTemp(in)

	out := in + "." + opts.Format.Extension()
	defer file.RemoveTemp(out)

	quality := opts.Quality
	if quality < domain.MinQuality || quality > domain.MaxQuality {
		quality = domain.DefaultQuality
	}

	args := append(slices.Clone(m.magickBinary),
		in+"[0]",
		"-auto-orient",
		"-strip",
		"-resize", fmt.Sprintf("%dx%d!", width, height),
		"-quality", strconv.Itoa(quality),
		fmt.Sprintf("%s:%s", opts.Format.Extension(), out))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	stderr, err := cmd.CombinedOutput()
	if err != nil {
		log.Error().Bytes("magickStderr", stderr).Msg("magick command failed")
		return nil, fmt.Errorf("magick failed: %w", err)
	}

	log.Debug().Int("width", width).Int("height", height).Msg("magick command finished")

	return file.GetTemp(out)
}
