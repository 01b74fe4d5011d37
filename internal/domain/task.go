package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current status of a download task
type TaskStatus string

const (
	StatusDownloading TaskStatus = "downloading"
	StatusCompleted   TaskStatus = "completed"
	StatusCancelled   TaskStatus = "cancelled"
	StatusError       TaskStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed out of the status
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// ValidateStatus checks if a status is valid
func ValidateStatus(status TaskStatus) bool {
	return status == StatusDownloading || status.IsTerminal()
}

// TaskKind tells playlist downloads apart from single-file downloads
type TaskKind string

const (
	KindPlaylist TaskKind = "playlist"
	KindFile     TaskKind = "file"
)

// Segment is one media chunk referenced by a playlist, or the whole file of
// a direct download. Filename overrides the per-task segment name.
type Segment struct {
	URL      string  `json:"url"`
	Index    int     `json:"index"`
	Duration float64 `json:"duration"`
	Filename string  `json:"filename,omitempty"`
}

// DownloadedSegmentRecord is the outcome of one segment attempt.
// Either DownloadID and Filename are set, or Error is.
type DownloadedSegmentRecord struct {
	Index      int    `json:"index"`
	URL        string `json:"url"`
	Filename   string `json:"filename,omitempty"`
	DownloadID string `json:"download_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the attempt ended with an error
func (r DownloadedSegmentRecord) Failed() bool {
	return r.Error != ""
}

// VideoData is caller supplied metadata about the stream being acquired
type VideoData struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// DownloadTask represents one attempt to acquire every segment of a playlist
type DownloadTask struct {
	ID                 string                    `json:"id" gorm:"primaryKey"`
	Kind               TaskKind                  `json:"kind" gorm:"not null;default:playlist"`
	VideoData          VideoData                 `json:"video_data" gorm:"embedded;embeddedPrefix:video_"`
	Segments           []Segment                 `json:"segments" gorm:"serializer:json;type:text"`
	DownloadedSegments []DownloadedSegmentRecord `json:"downloaded_segments" gorm:"serializer:json;type:text"`
	TotalSegments      int                       `json:"total_segments"`
	CurrentIndex       int                       `json:"current_index"`
	Status             TaskStatus                `json:"status" gorm:"not null;index"`
	StartTime          time.Time                 `json:"start_time" gorm:"index"`
	EndTime            *time.Time                `json:"end_time,omitempty"`
	Error              string                    `json:"error,omitempty"`
}

// TableName specifies the table name for GORM
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// NewDownloadTask creates a task in the downloading state
func NewDownloadTask(video VideoData, segments []Segment) *DownloadTask {
	return &DownloadTask{
		ID:                 uuid.New().String(),
		Kind:               KindPlaylist,
		VideoData:          video,
		Segments:           segments,
		DownloadedSegments: make([]DownloadedSegmentRecord, 0, len(segments)),
		TotalSegments:      len(segments),
		CurrentIndex:       0,
		Status:             StatusDownloading,
		StartTime:          time.Now(),
	}
}

// NewFileTask creates a one-segment task that saves url as filename
func NewFileTask(video VideoData, url, filename string) *DownloadTask {
	task := NewDownloadTask(video, []Segment{{URL: url, Index: 0, Filename: filename}})
	task.Kind = KindFile
	return task
}

// IsDownloading checks if the task still accepts segment records
func (t *DownloadTask) IsDownloading() bool {
	return t.Status == StatusDownloading
}

// IsTerminal checks if the task is in a terminal state
func (t *DownloadTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// HasRemaining reports whether segments are still to be attempted
func (t *DownloadTask) HasRemaining() bool {
	return t.CurrentIndex < len(t.Segments)
}

// NextSegment returns the segment to attempt next
func (t *DownloadTask) NextSegment() (Segment, bool) {
	if !t.HasRemaining() {
		return Segment{}, false
	}
	return t.Segments[t.CurrentIndex], true
}

// RecordSegment appends the outcome of the current segment and advances the cursor
func (t *DownloadTask) RecordSegment(record DownloadedSegmentRecord) {
	t.DownloadedSegments = append(t.DownloadedSegments, record)
	t.CurrentIndex++
}

// MarkCompleted marks the task as completed
func (t *DownloadTask) MarkCompleted() {
	t.finish(StatusCompleted)
}

// MarkCancelled marks the task as cancelled
func (t *DownloadTask) MarkCancelled() {
	t.finish(StatusCancelled)
}

// MarkFailed marks the task as failed with the error message kept verbatim
func (t *DownloadTask) MarkFailed(err error) {
	t.Error = err.Error()
	t.finish(StatusError)
}

func (t *DownloadTask) finish(status TaskStatus) {
	t.Status = status
	now := time.Now()
	t.EndTime = &now
}

// CancellableDownloadIDs returns the host download ids of successful records
func (t *DownloadTask) CancellableDownloadIDs() []string {
	ids := make([]string, 0, len(t.DownloadedSegments))
	for _, rec := range t.DownloadedSegments {
		if rec.DownloadID != "" && !rec.Failed() {
			ids = append(ids, rec.DownloadID)
		}
	}
	return ids
}

// FailedCount returns the number of segment attempts that ended with an error
func (t *DownloadTask) FailedCount() int {
	n := 0
	for _, rec := range t.DownloadedSegments {
		if rec.Failed() {
			n++
		}
	}
	return n
}

// Progress returns the attempted share of segments in the range [0, 1]
func (t *DownloadTask) Progress() float64 {
	if t.TotalSegments == 0 {
		return 0
	}
	return float64(t.CurrentIndex) / float64(t.TotalSegments)
}

// Percent returns Progress scaled to 0..100
func (t *DownloadTask) Percent() int {
	return int(t.Progress() * 100)
}

// Clone returns a deep copy safe to hand out while the original keeps changing
func (t *DownloadTask) Clone() *DownloadTask {
	c := *t
	c.Segments = append([]Segment(nil), t.Segments...)
	c.DownloadedSegments = append([]DownloadedSegmentRecord(nil), t.DownloadedSegments...)
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	return &c
}
