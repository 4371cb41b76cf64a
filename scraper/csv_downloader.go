// scraper/csv_downloader.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

// RemoteOverrideLoader downloads the override table from a URL and keeps the
// last good copy at CachePath. When the download fails the cached copy is used.
type RemoteOverrideLoader struct {
	URL        string
	CachePath  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewRemoteOverrideLoader(url, cachePath string, timeout time.Duration) *RemoteOverrideLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteOverrideLoader{
		URL:        url,
		CachePath:  cachePath,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.ForService("overrides"),
	}
}

// LoadOverrides fetches and parses the remote table. A table that downloads
// but cannot be decoded is rejected and the cached copy is kept. A table with
// some invalid rows is accepted; those rows are reported as in ParseOverrides.
func (l *RemoteOverrideLoader) LoadOverrides() ([]models.ParkOverride, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.httpClient.Timeout)
	defer cancel()

	data, err := downloadFile(ctx, l.httpClient, l.URL)
	if err == nil {
		overrides, perr := ParseOverrides(data)
		var invalid *InvalidOverridesError
		if perr == nil || errors.As(perr, &invalid) {
			if werr := writeFileAtomic(l.CachePath, data); werr != nil {
				l.logger.Warn("failed to cache override file", "path", l.CachePath, "error", werr)
			}
			l.logger.Info("loaded overrides", "url", l.URL, "count", len(overrides))
			return overrides, perr
		}
		err = fmt.Errorf("downloaded override file: %w", perr)
	}

	if _, statErr := os.Stat(l.CachePath); statErr != nil {
		return nil, fmt.Errorf("override download failed and no cached copy at %s: %w", l.CachePath, err)
	}
	l.logger.Warn("override download failed, using cached copy", "url", l.URL, "path", l.CachePath, "error", err)
	return (&FileOverrideLoader{Path: l.CachePath, logger: l.logger}).LoadOverrides()
}

// downloadFile returns the body of a successful GET of url.
func downloadFile(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file from %s: received status code %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded content from %s: %w", url, err)
	}
	return data, nil
}

// writeFileAtomic replaces path with data through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
