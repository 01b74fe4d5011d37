package infrastructure

import (
	"sync"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// watcherBuffer holds every transition a download can make after subscription
const watcherBuffer = 4

// maxRetired is how many settled, unwatched downloads stay queryable
const maxRetired = 256

// downloadTracker keeps the last known state of each download and fans
// transitions out to subscribers. A settled download is forgotten when its
// last watcher releases it; settled downloads nobody watches are kept in a
// bounded FIFO so a subscription racing completion still finds them.
type downloadTracker struct {
	mu         sync.Mutex
	states     map[string]domain.DownloadDelta
	watchers   map[string]map[int]chan domain.DownloadDelta
	retired    []string
	maxRetired int
	nextID     int
}

func newDownloadTracker() *downloadTracker {
	return &downloadTracker{
		states:     make(map[string]domain.DownloadDelta),
		watchers:   make(map[string]map[int]chan domain.DownloadDelta),
		maxRetired: maxRetired,
	}
}

// set records a transition; transitions out of a terminal state are ignored
func (t *downloadTracker) set(delta domain.DownloadDelta) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.states[delta.ID]; ok {
		if prev.State.IsTerminal() || prev.State == delta.State {
			return false
		}
	}
	t.states[delta.ID] = delta

	for _, ch := range t.watchers[delta.ID] {
		select {
		case ch <- delta:
		default:
		}
	}
	if delta.State.IsTerminal() && len(t.watchers[delta.ID]) == 0 {
		t.retire(delta.ID)
	}
	return true
}

// retire queues a settled download for removal. Callers hold t.mu.
func (t *downloadTracker) retire(id string) {
	t.retired = append(t.retired, id)
	for len(t.retired) > t.maxRetired {
		oldest := t.retired[0]
		t.retired = t.retired[1:]
		if len(t.watchers[oldest]) == 0 {
			delete(t.states, oldest)
		}
	}
}

// size returns the number of tracked downloads
func (t *downloadTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

func (t *downloadTracker) get(id string) (domain.DownloadDelta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delta, ok := t.states[id]
	return delta, ok
}

// subscribe returns a channel seeded with the current state
func (t *downloadTracker) subscribe(id string) (<-chan domain.DownloadDelta, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.states[id]
	if !ok {
		return nil, nil, domain.ErrDownloadNotFound
	}

	ch := make(chan domain.DownloadDelta, watcherBuffer)
	ch <- current

	t.nextID++
	key := t.nextID
	if t.watchers[id] == nil {
		t.watchers[id] = make(map[int]chan domain.DownloadDelta)
	}
	t.watchers[id][key] = ch

	var once sync.Once
	release := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.watchers[id], key)
			if len(t.watchers[id]) == 0 {
				delete(t.watchers, id)
				if t.states[id].State.IsTerminal() {
					delete(t.states, id)
				}
			}
		})
	}
	return ch, release, nil
}
