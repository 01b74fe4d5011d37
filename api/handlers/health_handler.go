package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// RunningChecker reports whether the task manager accepts work
type RunningChecker interface {
	IsRunning() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	manager RunningChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager RunningChecker) *HealthHandler {
	return &HealthHandler{
		manager: manager,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Tasks   struct {
		Running bool `json:"running"`
	} `json:"tasks"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Tasks.Running = h.manager.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.manager.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "task manager not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
