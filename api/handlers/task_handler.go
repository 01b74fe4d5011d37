package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/app"
	"github.com/yourusername/fetchvideo-go/internal/domain"
	"github.com/yourusername/fetchvideo-go/internal/playlist"
)

// TaskService is the part of the task manager the HTTP layer depends on
type TaskService interface {
	StartDownload(ctx context.Context, playlistURL string, video domain.VideoData) (*domain.DownloadTask, error)
	Download(ctx context.Context, video domain.VideoData) (*domain.DownloadTask, error)
	CancelTask(ctx context.Context, id string) error
	GetTask(id string) (*domain.DownloadTask, error)
	ListTasks() ([]*domain.DownloadTask, error)
	GetStats() (*domain.TaskStats, error)
	InspectPlaylist(ctx context.Context, playlistURL string) (*playlist.Info, error)
	IsRunning() bool
}

// TaskHandler handles download task HTTP requests
type TaskHandler struct {
	tasks  TaskService
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// StartDownloadRequest represents a request to download a playlist
type StartDownloadRequest struct {
	URL     string `json:"url" binding:"required"`
	Title   string `json:"title,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// TaskResponse is a task plus derived progress fields
type TaskResponse struct {
	*domain.DownloadTask
	Percent int `json:"percent"`
	Failed  int `json:"failed"`
}

func newTaskResponse(task *domain.DownloadTask) TaskResponse {
	return TaskResponse{
		DownloadTask: task,
		Percent:      task.Percent(),
		Failed:       task.FailedCount(),
	}
}

// StartDownload handles POST /api/v1/tasks
func (h *TaskHandler) StartDownload(c *gin.Context) {
	var req StartDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.StartDownload(c.Request.Context(), req.URL, domain.VideoData{
		URL:     req.URL,
		Title:   req.Title,
		Quality: req.Quality,
	})
	if err != nil {
		h.logger.Error("Failed to start download", zap.String("url", req.URL), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, newTaskResponse(task))
}

// Download handles POST /api/v1/downloads. Playlist URLs start a segment
// download, any other URL is saved as a single file.
func (h *TaskHandler) Download(c *gin.Context) {
	var req StartDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.Download(c.Request.Context(), domain.VideoData{
		URL:     req.URL,
		Title:   req.Title,
		Quality: req.Quality,
	})
	if err != nil {
		h.logger.Error("Failed to start download", zap.String("url", req.URL), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, newTaskResponse(task))
}

// defaultRecentLimit mirrors the size of a downloads shelf
const defaultRecentLimit = 10

// RecentDownloads handles GET /api/v1/downloads/recent
func (h *TaskHandler) RecentDownloads(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	tasks, err := h.tasks.ListTasks()
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(tasks) > limit {
		tasks = tasks[:limit]
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, newTaskResponse(task))
	}
	c.JSON(http.StatusOK, gin.H{
		"downloads": out,
		"count":     len(out),
	})
}

// GetTask handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, newTaskResponse(task))
}

// ListTasks handles GET /api/v1/tasks
func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.ListTasks()
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := domain.TaskStatus(c.Query("status"))
	if status != "" && !domain.ValidateStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	out := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		if status != "" && task.Status != status {
			continue
		}
		out = append(out, newTaskResponse(task))
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": out,
		"count": len(out),
	})
}

// GetStats handles GET /api/v1/tasks/stats
func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.tasks.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelTask handles POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	id := c.Param("id")

	if err := h.tasks.CancelTask(c.Request.Context(), id); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.GetTask(id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "task cancelled", "id": id})
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(task))
}

// InspectRequest represents a request to describe a playlist
type InspectRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}

// InspectPlaylist handles GET and POST /api/v1/playlists/inspect
func (h *TaskHandler) InspectPlaylist(c *gin.Context) {
	var req InspectRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.tasks.InspectPlaylist(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Warn("Failed to inspect playlist", zap.String("url", req.URL), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTaskNotCancellable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrEmptyPlaylist):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrManagerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
