package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/api/handlers"
	"github.com/yourusername/media-fetch-go/api/middleware"
	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
	"github.com/yourusername/media-fetch-go/pkg/logger"
)

// RouterConfig carries everything the HTTP layer serves
type RouterConfig struct {
	Fetches *app.FetchService
	// History is optional; the history routes are absent without it
	History  domain.HistoryRepository
	RateGate domain.RateGate
	Ready    handlers.ReadinessCheck
	LogsDir  string
	Logger   *zap.Logger
	// MultiLogger is optional and receives server errors in its error category
	MultiLogger *logger.MultiLogger
}

// SetupRouter sets up the HTTP router
func SetupRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.LoggerWithMultiLogger(config.Logger, config.MultiLogger))
	router.Use(middleware.RecoveryWithMultiLogger(config.Logger, config.MultiLogger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(config.Fetches.Active, config.Ready)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		fetchHandler := handlers.NewFetchHandler(config.Fetches, config.Logger)
		fetch := v1.Group("/fetch")
		{
			fetch.POST("", middleware.RateLimit(config.RateGate), fetchHandler.Fetch)
			fetch.POST("/:id/cancel", fetchHandler.Cancel)
		}

		progressHandler := handlers.NewProgressHandler(config.Fetches.Registry(), config.Logger)
		progress := v1.Group("/progress")
		{
			progress.GET("/:id", progressHandler.GetProgress)
			progress.GET("/:id/ws", progressHandler.Watch)
		}

		if config.History != nil {
			historyHandler := handlers.NewHistoryHandler(config.History)
			v1.GET("/history", historyHandler.List)
			v1.GET("/history/stats", historyHandler.Stats)
		}

		if config.LogsDir != "" {
			logHandler := handlers.NewLogHandler(config.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/transcripts/:id", logHandler.GetTranscript)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
