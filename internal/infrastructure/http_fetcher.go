package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// maxPlaylistSize caps how much of a playlist response is read
const maxPlaylistSize = 16 << 20

// HTTPPlaylistFetcher retrieves playlist text over HTTP
type HTTPPlaylistFetcher struct {
	client  *http.Client
	logger  *zap.Logger
	maxSize int64
}

// NewHTTPPlaylistFetcher creates a fetcher using client
func NewHTTPPlaylistFetcher(client *http.Client, logger *zap.Logger) *HTTPPlaylistFetcher {
	return &HTTPPlaylistFetcher{client: client, logger: logger, maxSize: maxPlaylistSize}
}

// Fetch returns the body of a 2xx response
func (f *HTTPPlaylistFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: unexpected status %d from %s", domain.ErrFetch, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read body: %v", domain.ErrFetch, err)
	}
	if int64(len(body)) > f.maxSize {
		return "", fmt.Errorf("%w: playlist from %s exceeds %d bytes", domain.ErrFetch, url, f.maxSize)
	}

	f.logger.Debug("Playlist fetched",
		zap.String("url", url),
		zap.Int("bytes", len(body)))

	return string(body), nil
}
