package handler

import (
	"github.com/dafibh/fortuna/lending-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the ops routes
func RegisterRoutes(e *echo.Echo, rateLimiter *middleware.RateLimiter, healthHandler *HealthHandler, debtStatusHandler *DebtStatusHandler, wsHandler *WebSocketHandler) {
	e.GET("/health", healthHandler.Health)

	internal := e.Group("/internal")

	// Job routes (rate limited per client)
	jobs := internal.Group("/jobs")
	jobs.Use(middleware.RateLimitMiddleware(rateLimiter))
	jobs.POST("/debt-status", debtStatusHandler.TriggerRefresh)

	// Contract event stream
	internal.GET("/ws", wsHandler.HandleWS)
}
