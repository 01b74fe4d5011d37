package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// SegmentTimeout bounds how long a single segment may take to reach a terminal state
const SegmentTimeout = 30 * time.Second

// FileTimeout bounds a direct whole-file download
const FileTimeout = 2 * time.Hour

// SegmentDownloader hands one segment to the download host and waits for its outcome
type SegmentDownloader struct {
	host        domain.DownloadHost
	logger      *zap.Logger
	timeout     time.Duration
	fileTimeout time.Duration
}

// NewSegmentDownloader creates a segment downloader bound to a host
func NewSegmentDownloader(host domain.DownloadHost, logger *zap.Logger) *SegmentDownloader {
	return &SegmentDownloader{
		host:        host,
		logger:      logger,
		timeout:     SegmentTimeout,
		fileTimeout: FileTimeout,
	}
}

// SegmentFilename is the host-relative file a segment is saved to
func SegmentFilename(taskID string, index int) string {
	return fmt.Sprintf("%s/segment_%05d.ts", taskID, index)
}

// Download starts the segment and blocks until the host reports completion,
// interruption, or the timeout passes. Failures of the segment itself are
// reported inside the record; the returned error is only set when ctx ends,
// in which case the host download is cancelled too.
func (sd *SegmentDownloader) Download(ctx context.Context, taskID string, seg domain.Segment) (domain.DownloadedSegmentRecord, error) {
	return sd.download(ctx, taskID, seg, SegmentFilename(taskID, seg.Index), sd.timeout)
}

// DownloadFile saves a whole file under seg.Filename, next to any earlier
// file of the same name, and waits up to the file timeout for it
func (sd *SegmentDownloader) DownloadFile(ctx context.Context, taskID string, seg domain.Segment) (domain.DownloadedSegmentRecord, error) {
	return sd.download(ctx, taskID, seg, seg.Filename, sd.fileTimeout)
}

func (sd *SegmentDownloader) download(ctx context.Context, taskID string, seg domain.Segment, filename string, timeout time.Duration) (domain.DownloadedSegmentRecord, error) {
	record := domain.DownloadedSegmentRecord{
		Index: seg.Index,
		URL:   seg.URL,
	}

	id, err := sd.host.Download(ctx, domain.DownloadRequest{
		URL:      seg.URL,
		Filename: filename,
		Conflict: domain.ConflictUniquify,
	})
	if err != nil {
		if ctx.Err() != nil {
			return record, ctx.Err()
		}
		record.Error = fmt.Sprintf("failed to start download: %v", err)
		return record, nil
	}

	deltas, release, err := sd.host.OnChanged(id)
	if err != nil {
		record.Error = fmt.Sprintf("failed to watch download %s: %v", id, err)
		sd.abandon(id)
		return record, nil
	}
	defer release()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			sd.abandon(id)
			return record, ctx.Err()

		case <-timer.C:
			record.Error = domain.ErrTimeout.Error()
			sd.logger.Warn("Segment download timed out",
				zap.String("task_id", taskID),
				zap.Int("index", seg.Index),
				zap.String("download_id", id),
				zap.Duration("timeout", timeout))
			sd.abandon(id)
			return record, nil

		case delta, ok := <-deltas:
			if !ok {
				record.Error = fmt.Sprintf("%s: watch closed", domain.ErrInterrupted)
				return record, nil
			}
			switch delta.State {
			case domain.DownloadComplete:
				record.DownloadID = id
				record.Filename = delta.Filename
				return record, nil
			case domain.DownloadInterrupted:
				record.Error = domain.ErrInterrupted.Error()
				sd.logger.Warn("Segment download interrupted",
					zap.String("task_id", taskID),
					zap.Int("index", seg.Index),
					zap.String("download_id", id),
					zap.String("reason", delta.Error))
				return record, nil
			}
		}
	}
}

// abandon cancels a download nobody waits for anymore
func (sd *SegmentDownloader) abandon(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sd.host.Cancel(ctx, id); err != nil {
		sd.logger.Debug("Failed to cancel abandoned download",
			zap.String("download_id", id), zap.Error(err))
	}
}
