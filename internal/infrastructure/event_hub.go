package infrastructure

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// TaskEventType names the kind of task signal
type TaskEventType string

const (
	EventTaskStarted  TaskEventType = "task_started"
	EventTaskProgress TaskEventType = "task_progress"
	EventTaskFinished TaskEventType = "task_finished"
)

// TaskEvent is a compact task snapshot pushed to subscribers
type TaskEvent struct {
	Type          TaskEventType     `json:"type"`
	TaskID        string            `json:"task_id"`
	Title         string            `json:"title"`
	Status        domain.TaskStatus `json:"status"`
	CurrentIndex  int               `json:"current_index"`
	TotalSegments int               `json:"total_segments"`
	Percent       int               `json:"percent"`
	Failed        int               `json:"failed"`
	Error         string            `json:"error,omitempty"`
	Time          time.Time         `json:"time"`
}

// NewTaskEvent summarises a task
func NewTaskEvent(eventType TaskEventType, task *domain.DownloadTask) TaskEvent {
	return TaskEvent{
		Type:          eventType,
		TaskID:        task.ID,
		Title:         task.VideoData.Title,
		Status:        task.Status,
		CurrentIndex:  task.CurrentIndex,
		TotalSegments: task.TotalSegments,
		Percent:       task.Percent(),
		Failed:        task.FailedCount(),
		Error:         task.Error,
		Time:          time.Now(),
	}
}

// EventHub broadcasts task signals to live subscribers. Slow subscribers
// lose events instead of stalling the segment loops.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[int]chan TaskEvent
	nextID int
	logger *zap.Logger
}

// NewEventHub creates an empty hub
func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		subs:   make(map[int]chan TaskEvent),
		logger: logger,
	}
}

// Subscribe registers a subscriber; the returned func unregisters it and closes the channel
func (h *EventHub) Subscribe(buffer int) (<-chan TaskEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan TaskEvent, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// SubscriberCount returns the number of live subscribers
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *EventHub) publish(event TaskEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Debug("Dropping task event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("task_id", event.TaskID),
				zap.String("type", string(event.Type)))
		}
	}
}

// TaskStarted implements domain.ProgressSink
func (h *EventHub) TaskStarted(task *domain.DownloadTask) {
	h.publish(NewTaskEvent(EventTaskStarted, task))
}

// TaskProgress implements domain.ProgressSink
func (h *EventHub) TaskProgress(task *domain.DownloadTask) {
	h.publish(NewTaskEvent(EventTaskProgress, task))
}

// TaskFinished implements domain.ProgressSink
func (h *EventHub) TaskFinished(task *domain.DownloadTask) {
	h.publish(NewTaskEvent(EventTaskFinished, task))
}
