package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/fetchvideo-go/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. FETCHVIDEO_SERVER_PORT
const EnvPrefix = "FETCHVIDEO"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fetchvideo")
		v.AddConfigPath("/etc/fetchvideo")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every scalar key so AutomaticEnv also applies to
// keys that are absent from the config file
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host", "server.port",
		"download.base_dir", "download.backend", "download.user_agent", "download.fetch_timeout",
		"aria2.rpc_url", "aria2.secret", "aria2.poll_interval",
		"store.database_path", "store.max_tasks",
		"notification.enabled", "notification.method",
		"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
	} {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Store.DatabasePath = expandPath(config.Store.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.BaseDir == "" {
		return fmt.Errorf("download base directory not configured")
	}

	switch config.Download.Backend {
	case domain.BackendHTTP:
	case domain.BackendAria2:
		if config.Aria2.RPCURL == "" {
			return fmt.Errorf("aria2 rpc url not configured")
		}
		if config.Aria2.PollInterval <= 0 {
			return fmt.Errorf("aria2 poll interval must be positive")
		}
	default:
		return fmt.Errorf("unknown download backend: %q", config.Download.Backend)
	}

	if config.Download.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}

	if config.Store.DatabasePath == "" {
		return fmt.Errorf("store database path not configured")
	}

	if config.Store.MaxTasks < 1 {
		return fmt.Errorf("max tasks must be at least 1")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("download.base_dir", config.Download.BaseDir)
	v.Set("download.backend", config.Download.Backend)
	v.Set("download.user_agent", config.Download.UserAgent)
	v.Set("download.headers", config.Download.Headers)
	v.Set("download.fetch_timeout", config.Download.FetchTimeout.String())
	v.Set("aria2.rpc_url", config.Aria2.RPCURL)
	v.Set("aria2.secret", config.Aria2.Secret)
	v.Set("aria2.poll_interval", config.Aria2.PollInterval.String())
	v.Set("store.database_path", config.Store.DatabasePath)
	v.Set("store.max_tasks", config.Store.MaxTasks)
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.method", config.Notification.Method)
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)
	v.Set("logging.logs_dir", config.Logging.LogsDir)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
