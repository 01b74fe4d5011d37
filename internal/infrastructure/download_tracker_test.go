package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

func TestDownloadTracker_SubscribeSeesCurrentState(t *testing.T) {
	tr := newDownloadTracker()
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInProgress})
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadComplete, Filename: "/x"})

	ch, release, err := tr.subscribe("a")
	require.NoError(t, err)
	defer release()

	delta := <-ch
	assert.Equal(t, domain.DownloadComplete, delta.State)
	assert.Equal(t, "/x", delta.Filename)
}

func TestDownloadTracker_TerminalIsFinal(t *testing.T) {
	tr := newDownloadTracker()
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInProgress})

	ch, release, err := tr.subscribe("a")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, domain.DownloadInProgress, (<-ch).State)

	assert.True(t, tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInterrupted}))
	assert.False(t, tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadComplete}))
	assert.False(t, tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInterrupted}))

	assert.Equal(t, domain.DownloadInterrupted, (<-ch).State)
	assert.Empty(t, ch)
}

func TestDownloadTracker_UnknownID(t *testing.T) {
	_, _, err := newDownloadTracker().subscribe("nope")
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
}

func TestDownloadTracker_ReleaseStopsDelivery(t *testing.T) {
	tr := newDownloadTracker()
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInProgress})

	ch, release, err := tr.subscribe("a")
	require.NoError(t, err)
	<-ch
	release()
	release()

	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadComplete})
	assert.Empty(t, ch)
}

func TestDownloadTracker_ReleaseForgetsSettledDownload(t *testing.T) {
	tr := newDownloadTracker()
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInProgress})

	ch, release, err := tr.subscribe("a")
	require.NoError(t, err)
	<-ch

	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadComplete})
	assert.Equal(t, 1, tr.size(), "watched downloads stay tracked")

	release()
	assert.Equal(t, 0, tr.size())
	_, ok := tr.get("a")
	assert.False(t, ok)
}

func TestDownloadTracker_ReleaseKeepsRunningDownload(t *testing.T) {
	tr := newDownloadTracker()
	tr.set(domain.DownloadDelta{ID: "a", State: domain.DownloadInProgress})

	_, release, err := tr.subscribe("a")
	require.NoError(t, err)
	release()

	delta, ok := tr.get("a")
	require.True(t, ok)
	assert.Equal(t, domain.DownloadInProgress, delta.State)
}

func TestDownloadTracker_UnwatchedSettledDownloadsAreBounded(t *testing.T) {
	tr := newDownloadTracker()
	tr.maxRetired = 2

	for _, id := range []string{"a", "b", "c"} {
		tr.set(domain.DownloadDelta{ID: id, State: domain.DownloadInProgress})
		tr.set(domain.DownloadDelta{ID: id, State: domain.DownloadComplete})
	}
	assert.Equal(t, 2, tr.size())

	_, _, err := tr.subscribe("a")
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound, "oldest settled download is evicted")

	ch, release, err := tr.subscribe("c")
	require.NoError(t, err, "a subscription racing completion still sees the result")
	assert.Equal(t, domain.DownloadComplete, (<-ch).State)
	release()
	assert.Equal(t, 1, tr.size())
}
