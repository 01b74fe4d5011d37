package infrastructure

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// maxPollFailures is how many consecutive tellStatus errors end a download
const maxPollFailures = 10

// Aria2DownloadHost hands downloads to an aria2 daemon and polls their status
type Aria2DownloadHost struct {
	client       *Aria2Client
	baseDir      string
	headers      map[string]string
	pollInterval time.Duration
	logger       *zap.Logger
	tracker      *downloadTracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAria2DownloadHost creates a host that stores files below baseDir on the aria2 side
func NewAria2DownloadHost(client *Aria2Client, baseDir string, headers map[string]string, pollInterval time.Duration, logger *zap.Logger) *Aria2DownloadHost {
	ctx, cancel := context.WithCancel(context.Background())
	return &Aria2DownloadHost{
		client:       client,
		baseDir:      baseDir,
		headers:      headers,
		pollInterval: pollInterval,
		logger:       logger,
		tracker:      newDownloadTracker(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Download queues req on aria2 and starts polling it
func (h *Aria2DownloadHost) Download(ctx context.Context, req domain.DownloadRequest) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+req.Filename), "/")
	if req.Filename == "" || clean == "" || strings.Contains(req.Filename, "..") {
		return "", fmt.Errorf("invalid download filename %q", req.Filename)
	}

	gid, err := h.client.AddURI(ctx, req.URL, Aria2Options{
		Dir:       filepath.Join(h.baseDir, filepath.FromSlash(path.Dir(clean))),
		Out:       path.Base(clean),
		Headers:   h.headers,
		Overwrite: req.Conflict == domain.ConflictOverwrite,
	})
	if err != nil {
		return "", err
	}

	h.tracker.set(domain.DownloadDelta{ID: gid, State: domain.DownloadInProgress})

	h.wg.Add(1)
	go h.poll(gid)

	return gid, nil
}

func (h *Aria2DownloadHost) poll(gid string) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}

		if delta, ok := h.tracker.get(gid); !ok || delta.State.IsTerminal() {
			return
		}

		status, err := h.client.TellStatus(h.ctx, gid)
		if err != nil {
			failures++
			h.logger.Debug("aria2 status poll failed",
				zap.String("gid", gid), zap.Int("failures", failures), zap.Error(err))
			if failures >= maxPollFailures {
				h.tracker.set(domain.DownloadDelta{
					ID:    gid,
					State: domain.DownloadInterrupted,
					Error: fmt.Sprintf("lost contact with aria2: %v", err),
				})
				return
			}
			continue
		}
		failures = 0

		delta := deltaFromAria2(gid, status)
		h.tracker.set(delta)
		if delta.State.IsTerminal() {
			h.purge(gid)
			return
		}
	}
}

// purge drops a settled download from aria2's result list
func (h *Aria2DownloadHost) purge(gid string) {
	if err := h.client.RemoveDownloadResult(h.ctx, gid); err != nil {
		h.logger.Debug("Failed to purge aria2 download result", zap.String("gid", gid), zap.Error(err))
	}
}

// deltaFromAria2 maps aria2 states onto download states
func deltaFromAria2(gid string, status *Aria2Status) domain.DownloadDelta {
	delta := domain.DownloadDelta{ID: gid}
	switch status.Status {
	case "complete":
		delta.State = domain.DownloadComplete
		if len(status.Files) > 0 {
			delta.Filename = status.Files[0].Path
		}
	case "error":
		delta.State = domain.DownloadInterrupted
		delta.Error = status.ErrorMessage
		if delta.Error == "" {
			delta.Error = "aria2 error " + status.ErrorCode
		}
	case "removed":
		delta.State = domain.DownloadInterrupted
		delta.Error = "removed"
	default:
		delta.State = domain.DownloadInProgress
	}
	return delta
}

// OnChanged subscribes to the state transitions of a download
func (h *Aria2DownloadHost) OnChanged(id string) (<-chan domain.DownloadDelta, func(), error) {
	return h.tracker.subscribe(id)
}

// Cancel force-removes a running download from aria2
func (h *Aria2DownloadHost) Cancel(ctx context.Context, id string) error {
	delta, ok := h.tracker.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDownloadNotFound, id)
	}
	if delta.State.IsTerminal() {
		return nil
	}

	if err := h.client.ForceRemove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove aria2 download %s: %w", id, err)
	}
	h.tracker.set(domain.DownloadDelta{ID: id, State: domain.DownloadInterrupted, Error: "cancelled"})
	return nil
}

// Ping checks that the aria2 daemon answers
func (h *Aria2DownloadHost) Ping(ctx context.Context) error {
	_, err := h.client.GetVersion(ctx)
	return err
}

// Close stops every poller
func (h *Aria2DownloadHost) Close() error {
	h.cancel()
	h.wg.Wait()
	return nil
}
