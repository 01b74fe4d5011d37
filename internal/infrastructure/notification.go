package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// NotificationService sends desktop notifications about task lifecycle
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(message), escapeAppleScript(title))
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// TaskStarted implements domain.ProgressSink
func (n *NotificationService) TaskStarted(task *domain.DownloadTask) {
	title := "Download Started"
	message := fmt.Sprintf("%s (%d segments)", truncateString(task.VideoData.Title, 40), task.TotalSegments)
	go n.Send(title, message)
}

// TaskProgress implements domain.ProgressSink; progress is only logged
func (n *NotificationService) TaskProgress(task *domain.DownloadTask) {
	n.logger.Debug("Task progress",
		zap.String("task_id", task.ID),
		zap.Int("current", task.CurrentIndex),
		zap.Int("total", task.TotalSegments))
}

// TaskFinished implements domain.ProgressSink
func (n *NotificationService) TaskFinished(task *domain.DownloadTask) {
	title, message := finishedMessage(task)
	go n.Send(title, message)
}

func finishedMessage(task *domain.DownloadTask) (string, string) {
	name := truncateString(task.VideoData.Title, 40)
	switch task.Status {
	case domain.StatusCompleted:
		if failed := task.FailedCount(); failed > 0 {
			return "Download Completed", fmt.Sprintf("%s: %d of %d segments failed", name, failed, task.TotalSegments)
		}
		return "Download Completed", fmt.Sprintf("%s: %d segments", name, task.TotalSegments)
	case domain.StatusCancelled:
		return "Download Cancelled", name
	default:
		return "Download Failed", fmt.Sprintf("%s: %s", name, truncateString(task.Error, 60))
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
