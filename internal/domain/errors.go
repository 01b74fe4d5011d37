package domain

import "errors"

var (
	// ErrInvalidURL is returned for URLs that are malformed or not http(s)
	ErrInvalidURL = errors.New("invalid url")
	// ErrFetch is returned when the playlist cannot be retrieved
	ErrFetch = errors.New("playlist fetch failed")
	// ErrParse is returned when the text is not an M3U8 playlist
	ErrParse = errors.New("not an m3u8 playlist")
	// ErrEmptyPlaylist is returned when a playlist references no segments
	ErrEmptyPlaylist = errors.New("playlist contains no segments")

	// ErrInterrupted is recorded when the host reports a segment download as interrupted
	ErrInterrupted = errors.New("segment download interrupted")
	// ErrTimeout is recorded when a segment download reaches no terminal state in time
	ErrTimeout = errors.New("segment download timed out")

	// ErrTaskNotFound is returned when no task exists for an id
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotCancellable is returned when a task is missing or no longer downloading
	ErrTaskNotCancellable = errors.New("task not cancellable")

	// ErrDownloadNotFound is returned by download hosts for unknown download ids
	ErrDownloadNotFound = errors.New("download not found")
)
