package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fetchvideo-go/api/handlers"
	"github.com/yourusername/fetchvideo-go/api/middleware"
	"github.com/yourusername/fetchvideo-go/pkg/logger"
)

// RouterDeps bundles what the HTTP layer needs from the rest of the service
type RouterDeps struct {
	Tasks       handlers.TaskService
	Events      handlers.EventSource
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	LogsDir     string
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger, deps.MultiLogger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(deps.Tasks)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		taskHandler := handlers.NewTaskHandler(deps.Tasks, deps.Logger)
		tasks := v1.Group("/tasks")
		{
			tasks.POST("", taskHandler.StartDownload)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/stats", taskHandler.GetStats)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.POST("/:id/cancel", taskHandler.CancelTask)
		}

		downloads := v1.Group("/downloads")
		{
			downloads.POST("", taskHandler.Download)
			downloads.GET("/recent", taskHandler.RecentDownloads)
		}

		playlists := v1.Group("/playlists")
		{
			playlists.GET("/inspect", taskHandler.InspectPlaylist)
			playlists.POST("/inspect", taskHandler.InspectPlaylist)
		}

		if deps.Events != nil {
			eventHandler := handlers.NewEventWebSocketHandler(deps.Events, deps.Logger)
			v1.GET("/events", eventHandler.HandleWebSocket)
		}

		if deps.LogsDir != "" {
			logHandler := handlers.NewLogHandler(deps.LogsDir)
			logStream := handlers.NewLogWebSocketHandler(deps.LogsDir, deps.Logger)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/stream", logStream.HandleWebSocket)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
