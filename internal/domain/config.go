package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Aria2        Aria2Config        `mapstructure:"aria2"`
	Store        StoreConfig        `mapstructure:"store"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Download backends
const (
	BackendHTTP  = "http"
	BackendAria2 = "aria2"
)

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir      string            `mapstructure:"base_dir"`
	Backend      string            `mapstructure:"backend"` // http, aria2
	UserAgent    string            `mapstructure:"user_agent"`
	Headers      map[string]string `mapstructure:"headers"`
	FetchTimeout time.Duration     `mapstructure:"fetch_timeout"`
}

// Aria2Config contains settings for the aria2 JSON-RPC backend
type Aria2Config struct {
	RPCURL       string        `mapstructure:"rpc_url"`
	Secret       string        `mapstructure:"secret"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StoreConfig contains task store configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
	MaxTasks     int    `mapstructure:"max_tasks"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // categorised task/error logs
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			BaseDir:      "$HOME/Downloads/FetchVideo",
			Backend:      BackendHTTP,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headers:      map[string]string{},
			FetchTimeout: 15 * time.Second,
		},
		Aria2: Aria2Config{
			RPCURL:       "http://localhost:6800/jsonrpc",
			PollInterval: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/.fetchvideo/tasks.db",
			MaxTasks:     DefaultMaxTasks,
		},
		Notification: NotificationConfig{
			Enabled: true,
			Method:  "osascript",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.fetchvideo/logs",
		},
	}
}
