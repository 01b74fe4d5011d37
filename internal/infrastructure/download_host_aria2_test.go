package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// fakeAria2 is a minimal aria2 JSON-RPC endpoint
type fakeAria2 struct {
	mu       sync.Mutex
	secret   string
	added    []map[string]interface{}
	statuses map[string][]Aria2Status // consumed one per tellStatus, last one sticks
	removed  []string
	purged   []string
}

func (f *fakeAria2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(result interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": req.ID, "jsonrpc": "2.0", "result": result})
	}
	fail := func(code int, msg string) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": req.ID, "jsonrpc": "2.0", "error": map[string]interface{}{"code": code, "message": msg},
		})
	}

	params := req.Params
	if f.secret != "" {
		var token string
		if len(params) == 0 || json.Unmarshal(params[0], &token) != nil || token != "token:"+f.secret {
			fail(1, "Unauthorized")
			return
		}
		params = params[1:]
	}

	switch req.Method {
	case "aria2.addUri":
		var opts map[string]interface{}
		json.Unmarshal(params[1], &opts)
		f.added = append(f.added, opts)
		reply("gid-1")
	case "aria2.tellStatus":
		var gid string
		json.Unmarshal(params[0], &gid)
		seq := f.statuses[gid]
		if len(seq) == 0 {
			fail(1, "GID "+gid+" is not found")
			return
		}
		status := seq[0]
		if len(seq) > 1 {
			f.statuses[gid] = seq[1:]
		}
		reply(status)
	case "aria2.forceRemove":
		var gid string
		json.Unmarshal(params[0], &gid)
		f.removed = append(f.removed, gid)
		f.statuses[gid] = []Aria2Status{{GID: gid, Status: "removed"}}
		reply(gid)
	case "aria2.removeDownloadResult":
		var gid string
		json.Unmarshal(params[0], &gid)
		f.purged = append(f.purged, gid)
		reply("OK")
	case "aria2.getVersion":
		reply(map[string]string{"version": "1.37.0"})
	default:
		fail(1, "unknown method")
	}
}

func newTestAria2Host(t *testing.T, fake *fakeAria2) *Aria2DownloadHost {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := NewAria2Client(server.URL+"/jsonrpc", fake.secret, &http.Client{Timeout: time.Second})
	host := NewAria2DownloadHost(client, "/downloads", map[string]string{"Referer": "https://example.com/"},
		5*time.Millisecond, zap.NewNop())
	t.Cleanup(func() { host.Close() })
	return host
}

func TestAria2DownloadHost_Complete(t *testing.T) {
	fake := &fakeAria2{
		secret: "s3cret",
		statuses: map[string][]Aria2Status{
			"gid-1": {
				{GID: "gid-1", Status: "waiting"},
				{GID: "gid-1", Status: "active"},
				{GID: "gid-1", Status: "complete", Files: []Aria2File{{Path: "/downloads/task-1/segment_00000.ts"}}},
			},
		},
	}
	host := newTestAria2Host(t, fake)

	id, err := host.Download(context.Background(), domain.DownloadRequest{
		URL:      "https://x.test/a/seg0.ts",
		Filename: "task-1/segment_00000.ts",
		Conflict: domain.ConflictUniquify,
	})
	require.NoError(t, err)
	assert.Equal(t, "gid-1", id)

	delta := waitTerminal(t, host, id)
	assert.Equal(t, domain.DownloadComplete, delta.State)
	assert.Equal(t, "/downloads/task-1/segment_00000.ts", delta.Filename)

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.purged) == 1 && fake.purged[0] == "gid-1"
	}, time.Second, 5*time.Millisecond, "settled result is purged")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.added, 1)
	opts := fake.added[0]
	assert.Equal(t, "/downloads/task-1", opts["dir"])
	assert.Equal(t, "segment_00000.ts", opts["out"])
	assert.Equal(t, "true", opts["auto-file-renaming"])
	assert.Equal(t, []interface{}{"Referer: https://example.com/"}, opts["header"])
}

func TestAria2DownloadHost_ErrorIsInterrupted(t *testing.T) {
	fake := &fakeAria2{statuses: map[string][]Aria2Status{
		"gid-1": {{GID: "gid-1", Status: "error", ErrorCode: "3", ErrorMessage: "Resource not found"}},
	}}
	host := newTestAria2Host(t, fake)

	id, err := host.Download(context.Background(), domain.DownloadRequest{URL: "https://x.test/a.ts", Filename: "a.ts"})
	require.NoError(t, err)

	delta := waitTerminal(t, host, id)
	assert.Equal(t, domain.DownloadInterrupted, delta.State)
	assert.Equal(t, "Resource not found", delta.Error)
}

func TestAria2DownloadHost_Cancel(t *testing.T) {
	fake := &fakeAria2{statuses: map[string][]Aria2Status{
		"gid-1": {{GID: "gid-1", Status: "active"}},
	}}
	host := newTestAria2Host(t, fake)

	id, err := host.Download(context.Background(), domain.DownloadRequest{URL: "https://x.test/a.ts", Filename: "a.ts"})
	require.NoError(t, err)

	require.NoError(t, host.Cancel(context.Background(), id))
	delta := waitTerminal(t, host, id)
	assert.Equal(t, domain.DownloadInterrupted, delta.State)

	fake.mu.Lock()
	assert.Equal(t, []string{"gid-1"}, fake.removed)
	fake.mu.Unlock()

	assert.ErrorIs(t, host.Cancel(context.Background(), id), domain.ErrDownloadNotFound, "released settled downloads are forgotten")
	assert.ErrorIs(t, host.Cancel(context.Background(), "other"), domain.ErrDownloadNotFound)
}

func TestAria2Client_RPCError(t *testing.T) {
	fake := &fakeAria2{secret: "right"}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewAria2Client(server.URL, "wrong", &http.Client{Timeout: time.Second})
	_, err := client.GetVersion(context.Background())

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "Unauthorized", rpcErr.Message)
}

func TestAria2DownloadHost_Ping(t *testing.T) {
	host := newTestAria2Host(t, &fakeAria2{})
	assert.NoError(t, host.Ping(context.Background()))
}

func TestDeltaFromAria2(t *testing.T) {
	assert.Equal(t, domain.DownloadInProgress, deltaFromAria2("g", &Aria2Status{Status: "paused"}).State)
	assert.Equal(t, domain.DownloadInterrupted, deltaFromAria2("g", &Aria2Status{Status: "removed"}).State)

	errDelta := deltaFromAria2("g", &Aria2Status{Status: "error", ErrorCode: "1"})
	assert.Equal(t, "aria2 error 1", errDelta.Error)
}
