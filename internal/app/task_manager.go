package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
	"github.com/yourusername/fetchvideo-go/internal/playlist"
	"github.com/yourusername/fetchvideo-go/pkg/logger"
)

// SegmentPacing is the pause between two segment downloads of the same task
const SegmentPacing = 100 * time.Millisecond

// ErrManagerStopped is returned when a download is started after Stop
var ErrManagerStopped = errors.New("task manager stopped")

// errInterruptedByRestart is recorded on tasks left downloading by a previous process
var errInterruptedByRestart = errors.New("interrupted by restart")

// TaskManager owns download tasks: it starts them, drives one segment loop per
// task, persists every change and accepts cancellation.
type TaskManager struct {
	repo        domain.TaskRepository
	fetcher     domain.PlaylistFetcher
	host        domain.DownloadHost
	segments    *SegmentDownloader
	sink        domain.ProgressSink
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	pacing      time.Duration

	mu      sync.RWMutex
	active  map[string]*domain.DownloadTask
	aborts  map[string]context.CancelFunc
	running bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTaskManager creates a new task manager. sink and multiLogger may be nil.
func NewTaskManager(
	repo domain.TaskRepository,
	fetcher domain.PlaylistFetcher,
	host domain.DownloadHost,
	sink domain.ProgressSink,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *TaskManager {
	if sink == nil {
		sink = domain.MultiSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		repo:        repo,
		fetcher:     fetcher,
		host:        host,
		segments:    NewSegmentDownloader(host, log),
		sink:        sink,
		logger:      log,
		multiLogger: multiLogger,
		pacing:      SegmentPacing,
		active:      make(map[string]*domain.DownloadTask),
		aborts:      make(map[string]context.CancelFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start marks the manager as running and closes out tasks a previous process
// left in the downloading state
func (tm *TaskManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	if tm.running {
		tm.mu.Unlock()
		return fmt.Errorf("task manager already running")
	}
	if tm.stopped {
		tm.mu.Unlock()
		return ErrManagerStopped
	}
	tm.running = true
	tm.mu.Unlock()

	recovered, err := tm.recoverOrphans()
	if err != nil {
		return fmt.Errorf("failed to recover orphaned tasks: %w", err)
	}
	if recovered > 0 {
		tm.logger.Warn("Recovered orphaned tasks", zap.Int("count", recovered))
	}

	tm.logTaskEvent("manager_started", zap.Int("recovered", recovered))
	return nil
}

func (tm *TaskManager) recoverOrphans() (int, error) {
	orphans, err := tm.repo.FindByStatus(domain.StatusDownloading)
	if err != nil {
		return 0, err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	n := 0
	for _, task := range orphans {
		if _, ok := tm.active[task.ID]; ok {
			continue
		}
		task.MarkFailed(errInterruptedByRestart)
		if err := tm.repo.Save(task); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Stop ends every segment loop and waits for them to exit. Tasks still
// downloading are moved to the error state.
func (tm *TaskManager) Stop() error {
	tm.mu.Lock()
	tm.running = false
	tm.stopped = true
	tm.mu.Unlock()

	tm.cancel()
	tm.wg.Wait()

	tm.logTaskEvent("manager_stopped")
	return nil
}

// IsRunning returns whether the manager is running
func (tm *TaskManager) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// ActiveCount returns the number of tasks with a live segment loop
func (tm *TaskManager) ActiveCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.active)
}

// StartDownload fetches and parses a playlist, persists a new task and starts
// its segment loop. Fetch and parse failures are returned and no task is created.
func (tm *TaskManager) StartDownload(ctx context.Context, playlistURL string, video domain.VideoData) (*domain.DownloadTask, error) {
	if _, err := playlist.ParsePlaylistURL(playlistURL); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if !playlist.IsM3U8URL(playlistURL) {
		tm.logger.Debug("URL has no m3u8 marker, relying on the playlist header",
			zap.String("url", playlistURL))
	}

	text, err := tm.fetcher.Fetch(ctx, playlistURL)
	if err != nil {
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return nil, err
	}

	segments, err := playlist.Parse(text, playlistURL)
	if err != nil {
		return nil, err
	}
	if playlist.IsMaster(text) {
		tm.logger.Warn("Playlist is a master playlist, variant playlists will be fetched as segments",
			zap.String("url", playlistURL))
	}

	if video.URL == "" {
		video.URL = playlistURL
	}
	if video.Title == "" {
		video.Title = playlist.TitleFromURL(playlistURL)
	}
	if video.Quality == "" {
		video.Quality = playlist.GuessQuality(playlistURL)
	}

	return tm.launch(domain.NewDownloadTask(video, segments), playlistURL)
}

// DownloadFile saves a single media file such as an .mp4 or .webm as a
// one-segment task. The file lands in the download root as <title><ext>,
// numbered when the name is taken. Playlist URLs are rejected.
func (tm *TaskManager) DownloadFile(ctx context.Context, fileURL string, video domain.VideoData) (*domain.DownloadTask, error) {
	if _, err := playlist.ParsePlaylistURL(fileURL); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if playlist.IsM3U8URL(fileURL) {
		return nil, fmt.Errorf("%w: %s is a playlist, start a playlist download instead", domain.ErrInvalidURL, fileURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if video.URL == "" {
		video.URL = fileURL
	}
	if video.Title == "" {
		video.Title = playlist.FileStem(fileURL)
	}
	if video.Quality == "" {
		video.Quality = playlist.GuessQuality(fileURL)
	}
	filename := playlist.FileName(video.Title, fileURL)
	if video.Title == "" {
		video.Title = strings.TrimSuffix(filename, playlist.FileExtension(fileURL))
	}

	return tm.launch(domain.NewFileTask(video, fileURL, filename), fileURL)
}

// Download routes a request by URL: playlists go through StartDownload,
// everything else is saved as a single file
func (tm *TaskManager) Download(ctx context.Context, video domain.VideoData) (*domain.DownloadTask, error) {
	if video.URL == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidURL)
	}
	if playlist.IsM3U8URL(video.URL) {
		return tm.StartDownload(ctx, video.URL, video)
	}
	return tm.DownloadFile(ctx, video.URL, video)
}

// launch persists a new task and starts its segment loop
func (tm *TaskManager) launch(task *domain.DownloadTask, sourceURL string) (*domain.DownloadTask, error) {
	video := task.VideoData

	tm.mu.Lock()
	if tm.stopped {
		tm.mu.Unlock()
		return nil, ErrManagerStopped
	}
	for _, other := range tm.active {
		if other.VideoData.URL == video.URL && other.IsDownloading() {
			tm.logger.Warn("URL is already being downloaded",
				zap.String("url", video.URL),
				zap.String("existing_task_id", other.ID))
			break
		}
	}
	if err := tm.repo.Save(task.Clone()); err != nil {
		tm.mu.Unlock()
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	taskCtx, abort := context.WithCancel(tm.ctx)
	tm.active[task.ID] = task
	tm.aborts[task.ID] = abort
	tm.wg.Add(1)
	snapshot := task.Clone()
	tm.mu.Unlock()

	tm.logger.Info("Download task started",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("url", sourceURL),
		zap.String("title", video.Title),
		zap.Int("segments", task.TotalSegments))
	tm.logTaskEvent("task_started",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("url", sourceURL),
		zap.Int("segments", task.TotalSegments))

	tm.sink.TaskStarted(snapshot)
	go tm.run(taskCtx, task)

	return snapshot, nil
}

// run downloads the remaining segments of a task one at a time. ctx ends
// when the manager stops or a file task is cancelled.
func (tm *TaskManager) run(ctx context.Context, task *domain.DownloadTask) {
	defer tm.wg.Done()
	defer tm.release(task.ID)
	defer func() {
		if r := recover(); r != nil {
			tm.fail(task, fmt.Errorf("segment loop panic: %v", r))
		}
	}()

	for {
		tm.mu.Lock()
		if !task.IsDownloading() {
			tm.mu.Unlock()
			return
		}
		seg, ok := task.NextSegment()
		if !ok {
			task.MarkCompleted()
			snapshot := task.Clone()
			err := tm.repo.Save(snapshot)
			tm.mu.Unlock()
			if err != nil {
				tm.logError("Failed to persist completed task", task.ID, err)
			}
			tm.finished(snapshot)
			return
		}
		tm.mu.Unlock()

		record, err := tm.downloadSegment(ctx, task, seg)
		if err != nil {
			tm.fail(task, fmt.Errorf("segment loop stopped: %w", err))
			return
		}

		tm.mu.Lock()
		if !task.IsDownloading() {
			// cancelled while the segment was in flight
			tm.mu.Unlock()
			if record.DownloadID != "" {
				tm.cancelDownloads(context.Background(), []string{record.DownloadID})
			}
			return
		}
		task.RecordSegment(record)
		snapshot := task.Clone()
		if err := tm.repo.Save(snapshot); err != nil {
			task.MarkFailed(fmt.Errorf("failed to persist task: %w", err))
			snapshot = task.Clone()
			_ = tm.repo.Save(snapshot)
			tm.mu.Unlock()
			tm.logError("Failed to persist task", task.ID, err)
			tm.finished(snapshot)
			return
		}
		tm.mu.Unlock()

		tm.logTaskEvent("segment_recorded",
			zap.String("task_id", task.ID),
			zap.Int("index", record.Index),
			zap.Int("current_index", snapshot.CurrentIndex),
			zap.String("error", record.Error))
		if record.Failed() {
			tm.logger.Warn("Segment failed",
				zap.String("task_id", task.ID),
				zap.Int("index", record.Index),
				zap.String("error", record.Error))
		}
		tm.sink.TaskProgress(snapshot)

		if snapshot.HasRemaining() && !tm.pause(ctx) {
			tm.fail(task, fmt.Errorf("segment loop stopped: %w", ctx.Err()))
			return
		}
	}
}

func (tm *TaskManager) downloadSegment(ctx context.Context, task *domain.DownloadTask, seg domain.Segment) (domain.DownloadedSegmentRecord, error) {
	if task.Kind == domain.KindFile {
		return tm.segments.DownloadFile(ctx, task.ID, seg)
	}
	return tm.segments.Download(ctx, task.ID, seg)
}

func (tm *TaskManager) pause(ctx context.Context) bool {
	if tm.pacing <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(tm.pacing):
		return true
	}
}

// fail moves a downloading task to the error state
func (tm *TaskManager) fail(task *domain.DownloadTask, cause error) {
	tm.mu.Lock()
	if !task.IsDownloading() {
		tm.mu.Unlock()
		return
	}
	task.MarkFailed(cause)
	snapshot := task.Clone()
	err := tm.repo.Save(snapshot)
	tm.mu.Unlock()

	tm.logError("Download task failed", task.ID, cause)
	if err != nil {
		tm.logError("Failed to persist failed task", task.ID, err)
	}
	tm.finished(snapshot)
}

func (tm *TaskManager) finished(snapshot *domain.DownloadTask) {
	tm.logger.Info("Download task finished",
		zap.String("task_id", snapshot.ID),
		zap.String("status", string(snapshot.Status)),
		zap.Int("segments", snapshot.TotalSegments),
		zap.Int("failed", snapshot.FailedCount()))
	tm.logTaskEvent(finishEvent(snapshot.Status),
		zap.String("task_id", snapshot.ID),
		zap.String("status", string(snapshot.Status)),
		zap.Int("failed", snapshot.FailedCount()),
		zap.String("error", snapshot.Error))

	tm.sink.TaskFinished(snapshot)
}

// finishEvent names the task log event for a terminal status
func finishEvent(status domain.TaskStatus) string {
	switch status {
	case domain.StatusCompleted:
		return "task_completed"
	case domain.StatusCancelled:
		return "task_cancelled"
	default:
		return "task_failed"
	}
}

func (tm *TaskManager) release(id string) {
	tm.mu.Lock()
	if abort, ok := tm.aborts[id]; ok {
		abort()
		delete(tm.aborts, id)
	}
	delete(tm.active, id)
	tm.mu.Unlock()
}

// CancelTask cancels every segment download recorded so far and marks the
// task cancelled. Only downloading tasks can be cancelled. The in-flight
// segment of a playlist task is left to finish or time out; a file task's
// transfer is aborted.
func (tm *TaskManager) CancelTask(ctx context.Context, id string) error {
	tm.mu.RLock()
	task, ok := tm.active[id]
	var ids []string
	if ok && task.IsDownloading() {
		ids = task.CancellableDownloadIDs()
	}
	tm.mu.RUnlock()

	if !ok {
		if _, err := tm.repo.FindByID(id); errors.Is(err, domain.ErrTaskNotFound) {
			return fmt.Errorf("%w: %w", domain.ErrTaskNotCancellable, domain.ErrTaskNotFound)
		}
		return fmt.Errorf("%w: task %s is not downloading", domain.ErrTaskNotCancellable, id)
	}

	tm.cancelDownloads(ctx, ids)

	tm.mu.Lock()
	if !task.IsDownloading() {
		status := task.Status
		tm.mu.Unlock()
		return fmt.Errorf("%w: task %s is %s", domain.ErrTaskNotCancellable, id, status)
	}
	task.MarkCancelled()
	late := lateDownloadIDs(task.CancellableDownloadIDs(), ids)
	snapshot := task.Clone()
	err := tm.repo.Save(snapshot)
	var abort context.CancelFunc
	if task.Kind == domain.KindFile {
		abort = tm.aborts[id]
	}
	tm.mu.Unlock()

	// a playlist segment wait runs to its own end; a whole file is stopped
	if abort != nil {
		abort()
	}

	if err != nil {
		tm.logError("Failed to persist cancelled task", id, err)
	}
	tm.cancelDownloads(ctx, late)

	tm.finished(snapshot)
	return nil
}

// lateDownloadIDs returns the ids in all that are missing from seen
func lateDownloadIDs(all, seen []string) []string {
	known := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		known[id] = struct{}{}
	}
	var late []string
	for _, id := range all {
		if _, ok := known[id]; !ok {
			late = append(late, id)
		}
	}
	return late
}

// cancelDownloads cancels host downloads in parallel; failures are only logged
func (tm *TaskManager) cancelDownloads(ctx context.Context, ids []string) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := tm.host.Cancel(ctx, id); err != nil {
				tm.logger.Debug("Failed to cancel segment download",
					zap.String("download_id", id), zap.Error(err))
			}
		}(id)
	}
	wg.Wait()
}

// GetTask returns the current state of a task
func (tm *TaskManager) GetTask(id string) (*domain.DownloadTask, error) {
	tm.mu.RLock()
	if task, ok := tm.active[id]; ok {
		snapshot := task.Clone()
		tm.mu.RUnlock()
		return snapshot, nil
	}
	tm.mu.RUnlock()

	return tm.repo.FindByID(id)
}

// ListTasks returns all retained tasks, newest first
func (tm *TaskManager) ListTasks() ([]*domain.DownloadTask, error) {
	return tm.repo.FindAll()
}

// GetStats returns task statistics
func (tm *TaskManager) GetStats() (*domain.TaskStats, error) {
	return tm.repo.GetStats()
}

// InspectPlaylist fetches a playlist and describes it without creating a task
func (tm *TaskManager) InspectPlaylist(ctx context.Context, playlistURL string) (*playlist.Info, error) {
	if _, err := playlist.ParsePlaylistURL(playlistURL); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}

	text, err := tm.fetcher.Fetch(ctx, playlistURL)
	if err != nil {
		if !errors.Is(err, domain.ErrFetch) {
			err = fmt.Errorf("%w: %w", domain.ErrFetch, err)
		}
		return nil, err
	}

	return playlist.Probe(text, playlistURL)
}

func (tm *TaskManager) logTaskEvent(event string, fields ...zap.Field) {
	if tm.multiLogger != nil {
		tm.multiLogger.LogTaskEvent(event, fields...)
	}
}

func (tm *TaskManager) logError(msg, taskID string, err error) {
	tm.logger.Error(msg, zap.String("task_id", taskID), zap.Error(err))
	if tm.multiLogger != nil {
		tm.multiLogger.LogAppError(msg, zap.String("task_id", taskID), zap.Error(err))
	}
}
