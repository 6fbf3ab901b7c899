package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	worker DebtStatusRunner
}

func NewHealthHandler(db Pinger, worker DebtStatusRunner) *HealthHandler {
	return &HealthHandler{db: db, worker: worker}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status           string `json:"status"`
	Database         string `json:"database"`
	DebtStatusWorker string `json:"debtStatusWorker"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", DebtStatusWorker: "stopped"}
	if h.worker != nil && h.worker.IsRunning() {
		resp.DebtStatusWorker = "running"
	}

	if err := h.db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check: database unreachable")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}

	return c.JSON(http.StatusOK, resp)
}
