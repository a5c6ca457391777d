package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog/log"
)

const userAgent = "pixcache/1.0"

// ErrTooLarge is returned by Download when the body exceeds the size limit.
var ErrTooLarge = errors.New("response body too large")

// StatusError reports a non-success response status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code on download: %d", e.Code)
}

// Download returns the body of a GET request to url. Bodies above maxBytes are rejected, a non-positive
// limit disables the check.
func Download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing request %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode}
	}

	var body io.Reader = res.Body
	if maxBytes > 0 {
		body = io.LimitReader(res.Body, maxBytes+1)
	}

	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error reading response %w", err)
	}

	if maxBytes > 0 && int64(len(buf)) > maxBytes {
		return nil, ErrTooLarge
	}

	log.Debug().Int("bytes", len(buf)).Str("url", url).Msg("downloaded file")

	return buf, nil
}

// SaveTemp saves bytes to a uniquely named file in the system temp directory and returns the path.
func SaveTemp(data []byte, extension string) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}

	log.Debug().Int("bytes", len(data)).Str("extension", extension).Msg("creating temp file")

	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s%s", id.String(), extension))
	if err := writeNew(path, data, false); err != nil {
		return "", err
	}

	log.Debug().Str("path", path).Msg("created file")

	return path, nil
}

// GetTemp retrieves a temporarily stored file by its path, as returned from SaveTemp().
func GetTemp(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading temp file %w", err)
	}

	return buf, nil
}

// RemoveTemp removes a specified temporary file at the given path and logs success or failure.
func RemoveTemp(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Err(err).Msg("could not clean up temp file")
		return
	}
	log.Debug().Str("path", path).Msg("cleaned up temp file")
}

// TempPrefix marks in-progress files written by WriteAtomic.
const TempPrefix = ".tmp-"

// WriteAtomic publishes data as dir/name. The bytes are written and synced to a temp file in dir first
// and renamed into place, so readers see either the old file, no file, or the complete new one.
func WriteAtomic(dir, name string, data []byte) error {
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, TempPrefix+id.String())
	if err := writeNew(tmp, data, true); err != nil {
		return err
	}

	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		RemoveTemp(tmp)
		return fmt.Errorf("error publishing file %w", err)
	}

	return nil
}

func writeNew(path string, data []byte, sync bool) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("error creating file %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		RemoveTemp(path)
		return fmt.Errorf("error writing file %w", err)
	}

	if sync {
		if err := f.Sync(); err != nil {
			f.Close()
			RemoveTemp(path)
			return fmt.Errorf("error syncing file %w", err)
		}
	}

	if err := f.Close(); err != nil {
		RemoveTemp(path)
		return fmt.Errorf("error closing file %w", err)
	}

	return nil
}
