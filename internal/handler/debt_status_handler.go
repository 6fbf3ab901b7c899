package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// DebtStatusRunner is the part of the debt status worker the ops surface drives
type DebtStatusRunner interface {
	RunNow(ctx context.Context) (*service.RefreshSummary, error)
	IsRunning() bool
}

// DebtStatusHandler triggers the batch debt status refresh by hand
type DebtStatusHandler struct {
	runner DebtStatusRunner
}

func NewDebtStatusHandler(runner DebtStatusRunner) *DebtStatusHandler {
	return &DebtStatusHandler{runner: runner}
}

// RefreshSummaryResponse is the JSON body returned after a manual run
type RefreshSummaryResponse struct {
	RunID     string `json:"runId"`
	StartedAt string `json:"startedAt"`
	Total     int    `json:"total"`
	Changed   int    `json:"changed"`
	Failed    int    `json:"failed"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// TriggerRefresh handles POST /internal/jobs/debt-status
func (h *DebtStatusHandler) TriggerRefresh(c echo.Context) error {
	// the run outlives a dropped client connection
	ctx := context.WithoutCancel(c.Request().Context())

	summary, err := h.runner.RunNow(ctx)
	if err != nil {
		return respondError(c, err)
	}

	log.Info().
		Str("run_id", summary.RunID.String()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Msg("Manual debt status refresh finished")

	return c.JSON(http.StatusOK, RefreshSummaryResponse{
		RunID:     summary.RunID.String(),
		StartedAt: summary.StartedAt.UTC().Format(time.RFC3339),
		Total:     summary.Total,
		Changed:   summary.Changed,
		Failed:    summary.Failed,
		ElapsedMs: summary.Elapsed.Milliseconds(),
	})
}
