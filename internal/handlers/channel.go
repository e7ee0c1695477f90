package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/channel"
)

type ChannelHandler struct {
	registry *channel.Registry
}

func NewChannelHandler(registry *channel.Registry) *ChannelHandler {
	return &ChannelHandler{registry: registry}
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	metaGroup := e.Group("/channels")
	metaGroup.GET("", h.ListChannels)
	metaGroup.GET("/:platform", h.GetChannel)
}

// ListChannels godoc
// @Summary List channel types
// @Tags channel
// @Success 200 {array} channel.Descriptor
// @Router /channels [get]
func (h *ChannelHandler) ListChannels(c echo.Context) error {
	if _, err := requireOperator(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.registry.ListDescriptors())
}

// GetChannel godoc
// @Summary Get channel type metadata
// @Tags channel
// @Param platform path string true "Channel platform"
// @Success 200 {object} channel.Descriptor
// @Failure 404 {object} ErrorResponse
// @Router /channels/{platform} [get]
func (h *ChannelHandler) GetChannel(c echo.Context) error {
	if _, err := requireOperator(c); err != nil {
		return err
	}
	channelType, err := h.registry.ParseChannelType(c.Param("platform"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	desc, ok := h.registry.GetDescriptor(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	return c.JSON(http.StatusOK, desc)
}
