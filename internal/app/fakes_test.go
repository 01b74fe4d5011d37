package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// mockRepo implements domain.TaskRepository in memory
type mockRepo struct {
	mu       sync.Mutex
	tasks    map[string]*domain.DownloadTask
	maxTasks int
	failFrom int // saves from this ordinal on fail; 0 never fails
	saves    int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tasks:    make(map[string]*domain.DownloadTask),
		maxTasks: domain.DefaultMaxTasks,
	}
}

func (m *mockRepo) Save(task *domain.DownloadTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.failFrom > 0 && m.saves >= m.failFrom {
		return errBoom
	}
	m.tasks[task.ID] = task.Clone()

	for len(m.tasks) > m.maxTasks {
		var oldest *domain.DownloadTask
		for _, t := range m.tasks {
			if oldest == nil || t.StartTime.Before(oldest.StartTime) {
				oldest = t
			}
		}
		delete(m.tasks, oldest.ID)
	}
	return nil
}

func (m *mockRepo) FindByID(id string) (*domain.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tasks[id]; ok {
		return t.Clone(), nil
	}
	return nil, domain.ErrTaskNotFound
}

func (m *mockRepo) FindByStatus(status domain.TaskStatus) ([]*domain.DownloadTask, error) {
	all, _ := m.FindAll()
	var out []*domain.DownloadTask
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) FindAll() ([]*domain.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.DownloadTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *mockRepo) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.tasks)), nil
}

func (m *mockRepo) GetStats() (*domain.TaskStats, error) {
	all, _ := m.FindAll()
	stats := &domain.TaskStats{Total: int64(len(all))}
	for _, t := range all {
		switch t.Status {
		case domain.StatusDownloading:
			stats.Downloading++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusCancelled:
			stats.Cancelled++
		case domain.StatusError:
			stats.Error++
		}
	}
	return stats, nil
}

// mockFetcher serves playlist text by url
type mockFetcher struct {
	bodies map[string]string
	err    error
}

func (f *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return "", fmt.Errorf("%w: status 404", domain.ErrFetch)
	}
	return body, nil
}

// fakeHost settles every download at creation time according to outcome.
// Downloads left in progress only end when cancelled.
type fakeHost struct {
	mu        sync.Mutex
	nextID    int
	requests  []domain.DownloadRequest
	cancelled []string
	states    map[string]domain.DownloadDelta
	watchers  map[string]chan domain.DownloadDelta
	outcome   func(n int) domain.DownloadState
	startErr  error
	started   chan int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		states:   make(map[string]domain.DownloadDelta),
		watchers: make(map[string]chan domain.DownloadDelta),
		started:  make(chan int, 1024),
	}
}

func (h *fakeHost) Download(ctx context.Context, req domain.DownloadRequest) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.requests)
	h.requests = append(h.requests, req)
	if h.startErr != nil {
		return "", h.startErr
	}

	h.nextID++
	id := fmt.Sprintf("dl-%d", h.nextID)
	state := domain.DownloadComplete
	if h.outcome != nil {
		state = h.outcome(n)
	}
	delta := domain.DownloadDelta{ID: id, State: state}
	if state == domain.DownloadComplete {
		delta.Filename = "/downloads/" + req.Filename
	}
	h.states[id] = delta
	h.started <- n
	return id, nil
}

func (h *fakeHost) OnChanged(id string) (<-chan domain.DownloadDelta, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delta, ok := h.states[id]
	if !ok {
		return nil, nil, domain.ErrDownloadNotFound
	}
	ch := make(chan domain.DownloadDelta, 4)
	ch <- delta
	h.watchers[id] = ch
	return ch, func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}, nil
}

func (h *fakeHost) Cancel(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancelled = append(h.cancelled, id)
	delta, ok := h.states[id]
	if !ok {
		return domain.ErrDownloadNotFound
	}
	if delta.State == domain.DownloadInProgress {
		delta.State = domain.DownloadInterrupted
		delta.Error = "cancelled"
		h.states[id] = delta
		if ch, ok := h.watchers[id]; ok {
			select {
			case ch <- delta:
			default:
			}
		}
	}
	return nil
}

// settle moves an in-progress download to state and notifies its watcher
func (h *fakeHost) settle(id string, state domain.DownloadState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delta := h.states[id]
	delta.State = state
	if state == domain.DownloadComplete {
		delta.Filename = "/downloads/" + h.requests[len(h.requests)-1].Filename
	}
	h.states[id] = delta
	if ch, ok := h.watchers[id]; ok {
		select {
		case ch <- delta:
		default:
		}
	}
}

func (h *fakeHost) cancelledIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.cancelled...)
}

func (h *fakeHost) requestCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

// recordingSink keeps a copy of every signal
type recordingSink struct {
	mu       sync.Mutex
	started  []*domain.DownloadTask
	progress []*domain.DownloadTask
	finished []*domain.DownloadTask
}

func (s *recordingSink) TaskStarted(task *domain.DownloadTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, task.Clone())
}

func (s *recordingSink) TaskProgress(task *domain.DownloadTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, task.Clone())
}

func (s *recordingSink) TaskFinished(task *domain.DownloadTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, task.Clone())
}

func (s *recordingSink) progressFor(id string) []*domain.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DownloadTask
	for _, t := range s.progress {
		if t.ID == id {
			out = append(out, t)
		}
	}
	return out
}

func (s *recordingSink) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

var errBoom = errors.New("boom")
