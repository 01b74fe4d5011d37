package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// SQLiteTaskRepository implements TaskRepository using SQLite
type SQLiteTaskRepository struct {
	db       *gorm.DB
	maxTasks int
}

// NewSQLiteTaskRepository opens (and migrates) the task store. maxTasks <= 0
// selects domain.DefaultMaxTasks.
func NewSQLiteTaskRepository(dbPath string, maxTasks int) (*SQLiteTaskRepository, error) {
	if maxTasks <= 0 {
		maxTasks = domain.DefaultMaxTasks
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time; segment loops save concurrently
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.DownloadTask{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteTaskRepository{db: db, maxTasks: maxTasks}, nil
}

// Save inserts or replaces a task and evicts the oldest tasks beyond the cap
func (r *SQLiteTaskRepository) Save(task *domain.DownloadTask) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		newest := tx.Model(&domain.DownloadTask{}).
			Select("id").
			Order("start_time DESC").
			Limit(r.maxTasks)
		if err := tx.Where("id NOT IN (?)", newest).Delete(&domain.DownloadTask{}).Error; err != nil {
			return fmt.Errorf("failed to prune tasks: %w", err)
		}
		return nil
	})
}

// FindByID finds a task by ID
func (r *SQLiteTaskRepository) FindByID(id string) (*domain.DownloadTask, error) {
	var task domain.DownloadTask
	err := r.db.First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, err
	}
	return &task, nil
}

// FindByStatus finds tasks by status, newest first
func (r *SQLiteTaskRepository) FindByStatus(status domain.TaskStatus) ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	err := r.db.Where("status = ?", status).Order("start_time DESC").Find(&tasks).Error
	return tasks, err
}

// FindAll returns every retained task, newest first
func (r *SQLiteTaskRepository) FindAll() ([]*domain.DownloadTask, error) {
	var tasks []*domain.DownloadTask
	err := r.db.Order("start_time DESC").Find(&tasks).Error
	return tasks, err
}

// Count returns the number of retained tasks
func (r *SQLiteTaskRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&domain.DownloadTask{}).Count(&count).Error
	return count, err
}

// GetStats returns task statistics
func (r *SQLiteTaskRepository) GetStats() (*domain.TaskStats, error) {
	stats := &domain.TaskStats{}

	statusCounts := []struct {
		Status domain.TaskStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.DownloadTask{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		stats.Total += sc.Count
		switch sc.Status {
		case domain.StatusDownloading:
			stats.Downloading = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		case domain.StatusError:
			stats.Error = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteTaskRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
