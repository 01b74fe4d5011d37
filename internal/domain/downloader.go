package domain

import "context"

// DownloadState is the lifecycle state a download host reports for one download
type DownloadState string

const (
	DownloadInProgress  DownloadState = "in_progress"
	DownloadComplete    DownloadState = "complete"
	DownloadInterrupted DownloadState = "interrupted"
)

// IsTerminal reports whether the host will send no further transitions
func (s DownloadState) IsTerminal() bool {
	return s == DownloadComplete || s == DownloadInterrupted
}

// ConflictPolicy decides what happens when the destination file already exists
type ConflictPolicy string

const (
	ConflictUniquify  ConflictPolicy = "uniquify"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// DownloadRequest describes one file the host should fetch
type DownloadRequest struct {
	URL      string
	Filename string // relative to the host's download directory, slash separated
	Conflict ConflictPolicy
}

// DownloadDelta is a state transition reported by a download host
type DownloadDelta struct {
	ID       string
	State    DownloadState
	Filename string // final absolute path once complete
	Error    string // reason when interrupted
}

// DownloadHost is the download facility segments are handed to
type DownloadHost interface {
	// Download starts a download and returns its host-assigned id
	Download(ctx context.Context, req DownloadRequest) (string, error)

	// OnChanged subscribes to state transitions of one download. The current
	// state is delivered first so a subscriber never misses a terminal state.
	// The returned func releases the subscription.
	OnChanged(id string) (<-chan DownloadDelta, func(), error)

	// Cancel aborts a download; cancelling a finished download is a no-op
	Cancel(ctx context.Context, id string) error
}

// PlaylistFetcher retrieves playlist text
type PlaylistFetcher interface {
	// Fetch returns the body of a 2xx response; other outcomes wrap ErrFetch
	Fetch(ctx context.Context, url string) (string, error)
}

// ProgressSink receives best-effort task signals. Implementations must not block
// for long and must never fail the task.
type ProgressSink interface {
	TaskStarted(task *DownloadTask)
	TaskProgress(task *DownloadTask)
	TaskFinished(task *DownloadTask)
}

// MultiSink fans signals out to several sinks
type MultiSink []ProgressSink

func (m MultiSink) TaskStarted(task *DownloadTask) {
	for _, s := range m {
		s.TaskStarted(task)
	}
}

func (m MultiSink) TaskProgress(task *DownloadTask) {
	for _, s := range m {
		s.TaskProgress(task)
	}
}

func (m MultiSink) TaskFinished(task *DownloadTask) {
	for _, s := range m {
		s.TaskFinished(task)
	}
}
