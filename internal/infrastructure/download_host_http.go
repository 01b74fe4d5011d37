package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

const partSuffix = ".part"

// HTTPDownloadHost downloads files into a directory with plain HTTP GETs
type HTTPDownloadHost struct {
	client  *http.Client
	baseDir string
	logger  *zap.Logger
	tracker *downloadTracker

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	reserved map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHTTPDownloadHost creates a host saving files below baseDir
func NewHTTPDownloadHost(baseDir string, client *http.Client, logger *zap.Logger) *HTTPDownloadHost {
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPDownloadHost{
		client:   client,
		baseDir:  baseDir,
		logger:   logger,
		tracker:  newDownloadTracker(),
		cancels:  make(map[string]context.CancelFunc),
		reserved: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Download starts fetching req.URL in the background
func (h *HTTPDownloadHost) Download(ctx context.Context, req domain.DownloadRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target, err := h.targetPath(req.Filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	id := uuid.New().String()
	dctx, cancel := context.WithCancel(h.ctx)

	h.mu.Lock()
	target = h.reserve(target, req.Conflict)
	h.cancels[id] = cancel
	h.mu.Unlock()

	h.tracker.set(domain.DownloadDelta{ID: id, State: domain.DownloadInProgress})

	h.wg.Add(1)
	go h.fetch(dctx, id, req.URL, target)

	return id, nil
}

// targetPath maps a relative slash-separated name into baseDir
func (h *HTTPDownloadHost) targetPath(name string) (string, error) {
	clean := path.Clean("/" + name)
	if name == "" || clean == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid download filename %q", name)
	}
	return filepath.Join(h.baseDir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// reserve picks the final path for a download. Callers hold h.mu.
func (h *HTTPDownloadHost) reserve(target string, policy domain.ConflictPolicy) string {
	if policy == domain.ConflictOverwrite {
		h.reserved[target] = struct{}{}
		return target
	}

	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	candidate := target
	for n := 1; h.taken(candidate); n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	h.reserved[candidate] = struct{}{}
	return candidate
}

func (h *HTTPDownloadHost) taken(p string) bool {
	if _, ok := h.reserved[p]; ok {
		return true
	}
	if _, err := os.Stat(p); err == nil {
		return true
	}
	if _, err := os.Stat(p + partSuffix); err == nil {
		return true
	}
	return false
}

func (h *HTTPDownloadHost) fetch(ctx context.Context, id, url, target string) {
	defer h.wg.Done()
	defer func() {
		h.mu.Lock()
		if cancel, ok := h.cancels[id]; ok {
			cancel()
			delete(h.cancels, id)
		}
		delete(h.reserved, target)
		h.mu.Unlock()
	}()

	if err := h.save(ctx, url, target); err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = "cancelled"
		}
		h.logger.Debug("Download interrupted",
			zap.String("download_id", id),
			zap.String("url", url),
			zap.String("reason", reason))
		h.tracker.set(domain.DownloadDelta{ID: id, State: domain.DownloadInterrupted, Error: reason})
		return
	}

	h.tracker.set(domain.DownloadDelta{ID: id, State: domain.DownloadComplete, Filename: target})
}

// save streams url into target via a .part file
func (h *HTTPDownloadHost) save(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	part := target + partSuffix
	file, err := os.Create(part)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(part)
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}

	if err := os.Rename(part, target); err != nil {
		os.Remove(part)
		return err
	}
	return nil
}

// OnChanged subscribes to the state transitions of a download
func (h *HTTPDownloadHost) OnChanged(id string) (<-chan domain.DownloadDelta, func(), error) {
	return h.tracker.subscribe(id)
}

// Cancel aborts a running download; finished downloads are left alone
func (h *HTTPDownloadHost) Cancel(ctx context.Context, id string) error {
	delta, ok := h.tracker.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}
	if delta.State.IsTerminal() {
		return nil
	}

	h.mu.Lock()
	cancel, ok := h.cancels[id]
	h.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Close aborts every running download and waits for them to settle
func (h *HTTPDownloadHost) Close() error {
	h.cancel()
	h.wg.Wait()
	return nil
}
