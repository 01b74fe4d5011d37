package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/api"
	"github.com/yourusername/fetchvideo-go/api/handlers"
	"github.com/yourusername/fetchvideo-go/internal/app"
	"github.com/yourusername/fetchvideo-go/internal/domain"
	"github.com/yourusername/fetchvideo-go/internal/infrastructure"
	"github.com/yourusername/fetchvideo-go/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "fetchvideo-server",
		Short: "HLS playlist download server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./configs/config.yaml)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "configs/config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			config, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if err := app.SaveConfig(config, path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	})
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// downloadHost is a download capability that owns background work
type downloadHost interface {
	domain.DownloadHost
	Close() error
}

func newDownloadHost(config *domain.Config, log *zap.Logger) (downloadHost, error) {
	switch config.Download.Backend {
	case domain.BackendAria2:
		rpc := infrastructure.NewAria2Client(config.Aria2.RPCURL, config.Aria2.Secret, &http.Client{Timeout: 10 * time.Second})
		host := infrastructure.NewAria2DownloadHost(rpc, config.Download.BaseDir, config.Download.Headers, config.Aria2.PollInterval, log)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := host.Ping(ctx); err != nil {
			log.Warn("aria2 is not reachable yet", zap.String("rpc_url", config.Aria2.RPCURL), zap.Error(err))
		}
		return host, nil
	case domain.BackendHTTP:
		// segment requests carry the same headers as playlist requests
		segmentClient := infrastructure.NewHTTPClient(config.Download.UserAgent, config.Download.Headers, 0)
		return infrastructure.NewHTTPDownloadHost(config.Download.BaseDir, segmentClient, log), nil
	default:
		return nil, fmt.Errorf("unknown download backend: %q", config.Download.Backend)
	}
}

func runServer(configPath string) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		log = logger.NewDefault()
		log.Warn("Falling back to console logging", zap.String("output_path", config.Logging.OutputPath), zap.Error(err))
	}
	defer log.Sync()

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting fetchvideo server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("backend", config.Download.Backend),
		zap.String("base_dir", config.Download.BaseDir))

	if err := createDirectories(config); err != nil {
		return err
	}

	repo, err := infrastructure.NewSQLiteTaskRepository(config.Store.DatabasePath, config.Store.MaxTasks)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	client := infrastructure.NewHTTPClient(config.Download.UserAgent, config.Download.Headers, config.Download.FetchTimeout)
	fetcher := infrastructure.NewHTTPPlaylistFetcher(client, log)

	host, err := newDownloadHost(config, log)
	if err != nil {
		return err
	}
	defer host.Close()

	hub := infrastructure.NewEventHub(log)
	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	sink := domain.MultiSink{notifier, hub}

	taskMgr := app.NewTaskManager(repo, fetcher, host, sink, log, multiLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := taskMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task manager: %w", err)
	}

	router := api.SetupRouter(api.RouterDeps{
		Tasks:       taskMgr,
		Events:      hub,
		Logger:      log,
		MultiLogger: multiLog,
		LogsDir:     multiLog.GetLogsDir(),
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := taskMgr.Stop(); err != nil {
		log.Error("Error stopping task manager", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Logging.LogsDir,
		filepath.Dir(config.Store.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
