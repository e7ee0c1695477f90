package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

type BatchesHandler struct {
	service  *batch.Service
	channels *channel.Registry
	issuer   *channel.AuthIssuer
	logger   *slog.Logger
}

// DispatchRequest is an operator-submitted canonical batch.
type DispatchRequest struct {
	Pipeline string        `json:"pipeline"`
	Provider string        `json:"provider"`
	Entries  []batch.Entry `json:"entries"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func NewBatchesHandler(log *slog.Logger, service *batch.Service, channels *channel.Registry, issuer *channel.AuthIssuer) *BatchesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BatchesHandler{
		service:  service,
		channels: channels,
		issuer:   issuer,
		logger:   log.With(slog.String("handler", "batches")),
	}
}

func (h *BatchesHandler) Register(e *echo.Echo) {
	group := e.Group("/batches")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/dispatch", h.Dispatch)
}

// List godoc
// @Summary List recent batch reports
// @Tags batches
// @Param limit query int false "Maximum number of records"
// @Success 200 {array} batch.Record
// @Router /batches [get]
func (h *BatchesHandler) List(c echo.Context) error {
	if _, err := requireOperator(c); err != nil {
		return err
	}
	records := h.service.History().List()
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if limit < len(records) {
			records = records[:limit]
		}
	}
	return c.JSON(http.StatusOK, records)
}

// Get godoc
// @Summary Get one batch report
// @Tags batches
// @Param id path string true "Batch ID"
// @Success 200 {object} batch.Record
// @Failure 404 {object} ErrorResponse
// @Router /batches/{id} [get]
func (h *BatchesHandler) Get(c echo.Context) error {
	if _, err := requireOperator(c); err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	rec, ok := h.service.History().Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "batch not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// Dispatch godoc
// @Summary Run a canonical batch through the engine
// @Tags batches
// @Param payload body DispatchRequest true "Batch"
// @Success 200 {object} batch.Record
// @Failure 400 {object} ErrorResponse
// @Router /batches/dispatch [post]
func (h *BatchesHandler) Dispatch(c echo.Context) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Entries) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "entries are required")
	}
	channelType, err := h.channels.ParseChannelType(req.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	auth, err := h.issuer.Issue(channelType)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	b := batch.Batch{Entries: req.Entries}
	h.logger.Info("operator dispatch",
		slog.String("operator", operator),
		slog.String("provider", channelType.String()),
		slog.Int("events", b.Len()),
	)
	rec := h.service.RelayTo(context.WithoutCancel(c.Request().Context()), req.Pipeline, b, auth)
	return c.JSON(http.StatusOK, rec)
}
