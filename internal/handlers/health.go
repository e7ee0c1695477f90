package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/healthcheck"
)

type HealthHandler struct {
	checkers []healthcheck.Checker
	logger   *slog.Logger
}

func NewHealthHandler(log *slog.Logger, checkers ...healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		checkers: checkers,
		logger:   log.With(slog.String("handler", "health")),
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health/checks", h.Checks)
}

// Checks godoc
// @Summary Run runtime health checks
// @Tags health
// @Success 200 {object} healthcheck.Summary
// @Router /health/checks [get]
func (h *HealthHandler) Checks(c echo.Context) error {
	if _, err := requireOperator(c); err != nil {
		return err
	}
	summary := healthcheck.Run(c.Request().Context(), h.checkers...)
	if summary.Status == healthcheck.StatusError {
		h.logger.Warn("health checks failing", slog.Int("checks", len(summary.Checks)))
	}
	return c.JSON(http.StatusOK, summary)
}
