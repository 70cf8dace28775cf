package api

import (
	"github.com/gin-gonic/gin"

	"Laira/pkg/ratelimiter"
)

// RegisterRoutes wires all routes onto the router. limiter may be nil to
// disable request rate limiting.
func RegisterRoutes(router *gin.Engine, a *API, limiter ratelimiter.RateLimiter) {
	router.GET("/health", a.HealthHandler)

	v1 := router.Group("/api/v1")
	if limiter != nil {
		v1.Use(RateLimitMiddleware(limiter))
	}

	projects := v1.Group("/projects/:project")
	{
		projects.POST("/documents", a.ProcessDocumentsHandler)
		projects.GET("/progress", a.ProgressHandler)
		projects.GET("/stats", a.StatsHandler)

		projects.POST("/chat", a.ChatHandler)
		projects.GET("/chat/history", a.ChatHistoryHandler)
		projects.POST("/chat/reset", a.ResetSessionHandler)
	}

	v1.GET("/collections", a.ListCollectionsHandler)
	v1.DELETE("/collections/:name", a.DropCollectionHandler)
}
