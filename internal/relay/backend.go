package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/store"
)

// CompletionRequest is the body POSTed to the completion backend.
type CompletionRequest struct {
	SessionID      string          `json:"sessionId"`
	Messages       []store.Message `json:"messages"`
	TargetBotID    string          `json:"targetBotId"`
	ChannelTag     string          `json:"channelTag"`
	ExternalUserID string          `json:"externalUserId"`
	WorkspaceID    string          `json:"workspaceId,omitempty"`
}

// Backend opens a streaming completion. The caller closes the returned body.
type Backend interface {
	Stream(ctx context.Context, req CompletionRequest) (io.ReadCloser, error)
}

// HTTPBackend talks to the completion backend over HTTP.
type HTTPBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPBackend builds a backend client. The configured timeout bounds
// dialing and the wait for response headers; the streamed body itself is
// not time limited.
func NewHTTPBackend(log *slog.Logger, cfg config.BackendConfig) *HTTPBackend {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = timeout
	return &HTTPBackend{
		endpoint: cfg.Endpoint(),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Transport: transport},
		logger:   log.With(slog.String("component", "backend")),
	}
}

// Stream posts req and returns the response body on a 2xx status.
func (b *HTTPBackend) Stream(ctx context.Context, req CompletionRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	b.logger.Debug("completion request",
		slog.String("url", b.endpoint),
		slog.String("session_id", req.SessionID),
		slog.Int("messages", len(req.Messages)))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.logger.Error("completion connect failed", slog.String("url", b.endpoint), slog.Any("error", err))
		return nil, &UpstreamError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		prefix := truncate(strings.TrimSpace(string(errBody)), 300)
		b.logger.Error("completion backend error",
			slog.String("url", b.endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", prefix))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: prefix}
	}
	return resp.Body, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
