package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentimentiq/backend/config"
	"github.com/sentimentiq/backend/internal/infrastructure/monitoring"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, metrics *monitoring.Metrics, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	if metrics != nil {
		router.Use(metrics.Middleware())
	}
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.POST("/runtime/messages", handler.HandleRuntimeMessage)

		tabs := v1.Group("/tabs/:id")
		{
			tabs.POST("/activated", handler.TabActivated)
			tabs.POST("/updated", handler.TabUpdated)
			tabs.POST("/snapshot", handler.PushSnapshot)
			tabs.DELETE("", handler.TabRemoved)
		}
		v1.POST("/windows/:id/focused", handler.WindowFocused)

		v1.POST("/extract", handler.Extract)

		storage := v1.Group("/storage/local")
		{
			storage.GET("", handler.GetStorage)
			storage.GET("/watch", handler.WatchStorage(newUpgrader(cfg.Server.AllowedOrigins)))
		}

		st := v1.Group("/store")
		{
			st.GET("", handler.GetState)
			st.POST("/analyze", handler.Analyze)
			st.DELETE("/history", handler.ClearHistory)
		}

		v1.POST("/subscription/checkout", handler.Checkout)
	}

	return router
}
