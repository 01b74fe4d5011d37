package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/infrastructure"
)

// EventSource hands out task event subscriptions
type EventSource interface {
	Subscribe(buffer int) (<-chan infrastructure.TaskEvent, func())
}

// EventWebSocketHandler pushes task lifecycle events to WebSocket clients
type EventWebSocketHandler struct {
	events EventSource
	logger *zap.Logger
}

// NewEventWebSocketHandler creates a new event stream handler
func NewEventWebSocketHandler(events EventSource, log *zap.Logger) *EventWebSocketHandler {
	return &EventWebSocketHandler{
		events: events,
		logger: log,
	}
}

// HandleWebSocket handles GET /api/v1/events, optionally filtered by ?task_id=
func (h *EventWebSocketHandler) HandleWebSocket(c *gin.Context) {
	taskID := c.Query("task_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, release := h.events.Subscribe(64)
	defer release()

	h.logger.Info("Event stream client connected",
		zap.String("task_id", taskID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	done := readUntilClosed(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if taskID != "" && event.TaskID != taskID {
				continue
			}
			if err := writeJSON(conn, event); err != nil {
				h.logger.Debug("Failed to send task event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
