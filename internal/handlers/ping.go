package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/version"
)

// PingHandler serves /ping and HEAD /health for liveness.
type PingHandler struct {
	registry *channel.Registry
	logger   *slog.Logger
}

// PingResponse reports liveness and the mounted platforms.
type PingResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Platforms []string `json:"platforms"`
}

// NewPingHandler creates a ping handler.
func NewPingHandler(log *slog.Logger, registry *channel.Registry) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{registry: registry, logger: log.With(slog.String("handler", "ping"))}
}

// Register mounts GET /ping and HEAD /health on the Echo instance.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping returns 200 with the status and the registered webhook platforms.
func (h *PingHandler) Ping(c echo.Context) error {
	platforms := []string{}
	if h.registry != nil {
		for _, t := range h.registry.Types() {
			platforms = append(platforms, t.String())
		}
	}
	return c.JSON(http.StatusOK, PingResponse{
		Status:    "ok",
		Version:   version.GetInfo(),
		Platforms: platforms,
	})
}

// PingHead returns 200 No Content for health checks.
func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
