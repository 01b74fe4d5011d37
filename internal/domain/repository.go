package domain

// DefaultMaxTasks is the number of task records retained by a task store
const DefaultMaxTasks = 20

// TaskRepository defines the interface for task persistence
type TaskRepository interface {
	// Save inserts or replaces a task, then evicts the oldest records by
	// start time beyond the retention cap
	Save(task *DownloadTask) error

	// FindByID finds a task by ID, returning ErrTaskNotFound when absent
	FindByID(id string) (*DownloadTask, error)

	// FindByStatus finds tasks by status
	FindByStatus(status TaskStatus) ([]*DownloadTask, error)

	// FindAll returns all retained tasks, newest start time first
	FindAll() ([]*DownloadTask, error)

	// Count returns the number of retained tasks
	Count() (int64, error)

	// GetStats returns task statistics
	GetStats() (*TaskStats, error)
}

// TaskStats represents task statistics
type TaskStats struct {
	Total       int64 `json:"total"`
	Downloading int64 `json:"downloading"`
	Completed   int64 `json:"completed"`
	Cancelled   int64 `json:"cancelled"`
	Error       int64 `json:"error"`
}
