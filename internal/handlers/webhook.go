package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/relay"
)

// maxWebhookBody caps inbound payloads; platform events are a few KB.
const maxWebhookBody = 1 << 20

// CommandQueue accepts parsed commands for background execution.
type CommandQueue interface {
	Enqueue(ctx context.Context, cmd channel.Command) error
}

// WebhookHandler receives platform webhooks, verifies and parses them,
// answers the platform synchronously and queues the relay job.
type WebhookHandler struct {
	registry *channel.Registry
	queue    CommandQueue
	logger   *slog.Logger
	now      func() time.Time
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(log *slog.Logger, registry *channel.Registry, queue CommandQueue) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		registry: registry,
		queue:    queue,
		logger:   log.With(slog.String("handler", "webhook")),
		now:      time.Now,
	}
}

// Register mounts the webhook routes. The optional workspace segment is for
// platforms whose payload does not name the installation.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/:platform", h.Receive)
	e.POST("/webhooks/:platform/:workspace", h.Receive)
}

// Receive handles one webhook delivery.
func (h *WebhookHandler) Receive(c echo.Context) error {
	channelType, err := h.registry.ParseType(c.Param("platform"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	platform, ok := h.registry.Platform(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "platform not supported")
	}
	log := h.logger.With(slog.String("platform", channelType.String()))
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		log = log.With(slog.String("request_id", id))
	}

	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}
	if channel.IsHandshake(body) {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
	}

	ev := channel.InboundEvent{
		Platform:      channelType,
		Headers:       req.Header.Clone(),
		Body:          body,
		ContentType:   req.Header.Get(echo.HeaderContentType),
		PathWorkspace: strings.TrimSpace(c.Param("workspace")),
		ReceivedAt:    h.now(),
	}
	if err := platform.Verify(ev); err != nil {
		log.Warn("webhook verification failed", slog.Any("error", err), slog.String("remote_ip", c.RealIP()))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	result, err := platform.Parse(ev)
	if err != nil {
		log.Warn("webhook parse failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	switch result.Kind {
	case channel.ParseCommand:
		cmd := result.Command
		cmd.Platform = channelType
		if err := h.queue.Enqueue(logger.WithContext(req.Context(), log), cmd); err != nil {
			log.Error("enqueue relay job failed", slog.Any("error", err), slog.String("workspace_id", cmd.WorkspaceID))
			if errors.Is(err, relay.ErrQueueFull) || errors.Is(err, relay.ErrStopped) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "busy, try again later")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		log.Debug("relay job queued",
			slog.String("workspace_id", cmd.WorkspaceID),
			slog.String("external_session_id", cmd.ExternalSessionID))
	case channel.ParseIgnore:
		log.Debug("webhook ignored", slog.String("reason", result.Reason))
	}
	return writeAck(c, result.Ack)
}

func writeAck(c echo.Context, ack channel.Ack) error {
	status := ack.Status
	if status == 0 {
		status = http.StatusOK
	}
	if len(ack.Body) == 0 {
		return c.NoContent(status)
	}
	contentType := ack.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(status, contentType, ack.Body)
}
