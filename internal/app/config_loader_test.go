package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
download:
  base_dir: /tmp/fetchvideo
  backend: aria2
  fetch_timeout: 5s
  headers:
    Referer: https://example.com/
aria2:
  rpc_url: http://aria2.local:6800/jsonrpc
  secret: s3cret
store:
  database_path: /tmp/fetchvideo/tasks.db
  max_tasks: 50
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "/tmp/fetchvideo", config.Download.BaseDir)
	assert.Equal(t, domain.BackendAria2, config.Download.Backend)
	assert.Equal(t, 5*time.Second, config.Download.FetchTimeout)
	assert.Equal(t, "https://example.com/", config.Download.Headers["referer"])
	assert.Equal(t, "http://aria2.local:6800/jsonrpc", config.Aria2.RPCURL)
	assert.Equal(t, "s3cret", config.Aria2.Secret)
	assert.Equal(t, 500*time.Millisecond, config.Aria2.PollInterval)
	assert.Equal(t, 50, config.Store.MaxTasks)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9100\n")
	t.Setenv("FETCHVIDEO_SERVER_PORT", "9200")
	t.Setenv("FETCHVIDEO_STORE_MAX_TASKS", "5")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, config.Server.Port)
	assert.Equal(t, 5, config.Store.MaxTasks)
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	config, err := LoadConfig(writeConfig(t, "download:\n  base_dir: ~/Videos\n"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Videos"), config.Download.BaseDir)
	assert.Equal(t, filepath.Join(home, ".fetchvideo", "tasks.db"), config.Store.DatabasePath)
	assert.Equal(t, filepath.Join(home, ".fetchvideo", "logs"), config.Logging.LogsDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"port":      "server:\n  port: 70000\n",
		"backend":   "download:\n  backend: ftp\n",
		"max tasks": "store:\n  max_tasks: 0\n",
		"timeout":   "download:\n  fetch_timeout: 0s\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Server.Port = 9300
	config.Download.BaseDir = "/tmp/videos"
	config.Download.Backend = domain.BackendAria2
	config.Store.MaxTasks = 7

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9300, loaded.Server.Port)
	assert.Equal(t, "/tmp/videos", loaded.Download.BaseDir)
	assert.Equal(t, domain.BackendAria2, loaded.Download.Backend)
	assert.Equal(t, 7, loaded.Store.MaxTasks)
	assert.Equal(t, 15*time.Second, loaded.Download.FetchTimeout)
}
