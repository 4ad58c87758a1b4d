package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/service"
)

// Handler serves the HTTP API of a service.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewRouter builds the gin engine for svc.
func NewRouter(svc *service.Service, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		svc:    svc,
		logger: logger.With("component", "httpapi"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), h.logRequests())

	router.GET("/health", h.health)
	router.GET("/ws", gin.WrapH(svc.WSHandler()))

	api := router.Group("/api")
	{
		api.GET("/stats", h.stats)
		api.DELETE("/stats", h.clearStats)
		api.GET("/health", h.healthStatus)
		api.GET("/metrics", h.metrics)
		api.GET("/events", h.events)
		api.PATCH("/config", h.updateConfig)

		sched := api.Group("/scheduler")
		{
			sched.POST("/start", h.startScheduler)
			sched.POST("/stop", h.stopScheduler)
			sched.POST("/restart", h.restartScheduler)
		}

		targets := api.Group("/targets")
		{
			targets.GET("", h.listTargets)
			targets.POST("", h.addTarget)
			targets.PATCH("/:name", h.updateTarget)
			targets.DELETE("/:name", h.removeTarget)
		}

		quotes := api.Group("/quotes")
		{
			quotes.GET("", h.quotes)
			quotes.GET("/:symbol", h.quote)
		}

		api.GET("/market", h.market)
		api.GET("/cache/stats", h.cacheStats)
		api.POST("/news", h.publishNews)
	}

	return router
}

// logRequests logs every request at debug level and failures at warn.
func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		if status >= 500 {
			h.logger.Warn("request failed", attrs...)
			return
		}
		h.logger.Debug("request", attrs...)
	}
}
