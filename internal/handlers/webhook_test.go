package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/channel"
	slackadapter "github.com/memohai/relay/internal/channel/adapters/slack"
	"github.com/memohai/relay/internal/channel/verify"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/relay"
	"github.com/memohai/relay/internal/store"
)

const stubType = channel.Type("stub")

type stubHandle struct{}

func (stubHandle) Platform() channel.Type { return stubType }

type stubPlatform struct {
	verifyErr error
	result    channel.ParseResult
	parseErr  error

	mu     sync.Mutex
	parsed []channel.InboundEvent
}

func (p *stubPlatform) Type() channel.Type { return stubType }

func (p *stubPlatform) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: stubType, DisplayName: "Stub"}
}

func (p *stubPlatform) Verify(channel.InboundEvent) error { return p.verifyErr }

func (p *stubPlatform) Parse(ev channel.InboundEvent) (channel.ParseResult, error) {
	p.mu.Lock()
	p.parsed = append(p.parsed, ev)
	p.mu.Unlock()
	return p.result, p.parseErr
}

func (p *stubPlatform) Format(text string) string { return text }

func (p *stubPlatform) Post(context.Context, channel.Credential, channel.ReplyHandle, string) (channel.MessageHandle, error) {
	return stubHandle{}, nil
}

func (p *stubPlatform) Update(context.Context, channel.Credential, channel.MessageHandle, string) error {
	return nil
}

type stubQueue struct {
	err  error
	mu   sync.Mutex
	cmds []channel.Command
}

func (q *stubQueue) Enqueue(_ context.Context, cmd channel.Command) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, cmd)
	return nil
}

func newTestEcho(registry *channel.Registry, queue CommandQueue) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(logger.Discard())
	NewWebhookHandler(logger.Discard(), registry, queue).Register(e)
	NewPingHandler(logger.Discard(), registry).Register(e)
	return e
}

func serve(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()
	command := channel.Command{WorkspaceID: "W1", ArgumentText: "hi", Reply: stubHandle{}}
	cases := []struct {
		name       string
		path       string
		body       string
		platform   *stubPlatform
		queueErr   error
		wantStatus int
		wantBody   string
		wantQueued int
	}{
		{
			name:       "unknown platform",
			path:       "/webhooks/nope",
			body:       `{}`,
			platform:   &stubPlatform{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "generic handshake is echoed without verification",
			path:       "/webhooks/stub",
			body:       `{"type":"handshake","nonce":"abc"}`,
			platform:   &stubPlatform{verifyErr: channel.ErrAuthentication},
			wantStatus: http.StatusOK,
			wantBody:   `{"type":"handshake","nonce":"abc"}`,
		},
		{
			name:       "bad signature",
			path:       "/webhooks/stub",
			body:       `{"text":"hi"}`,
			platform:   &stubPlatform{verifyErr: channel.ErrAuthentication, result: channel.ParseResult{Kind: channel.ParseCommand, Command: command}},
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"message":"invalid signature"}`,
		},
		{
			name:       "malformed payload",
			path:       "/webhooks/stub",
			body:       `{`,
			platform:   &stubPlatform{parseErr: errors.New("unexpected EOF")},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "platform challenge",
			path:       "/webhooks/stub",
			body:       `{"type":"url_verification"}`,
			platform:   &stubPlatform{result: channel.ParseResult{Kind: channel.ParseHandshake, Ack: channel.RawAck("text/plain", []byte("challenge-token"))}},
			wantStatus: http.StatusOK,
			wantBody:   "challenge-token",
		},
		{
			name:       "ignored event",
			path:       "/webhooks/stub",
			body:       `{"bot_id":"B1"}`,
			platform:   &stubPlatform{result: channel.ParseResult{Kind: channel.ParseIgnore, Ack: channel.OKAck(), Reason: "bot message"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "command is queued and acknowledged",
			path:       "/webhooks/Stub/W9",
			body:       `{"text":"hi"}`,
			platform:   &stubPlatform{result: channel.ParseResult{Kind: channel.ParseCommand, Ack: channel.RawAck("", []byte(`{"type":5}`)), Command: command}},
			wantStatus: http.StatusOK,
			wantBody:   `{"type":5}`,
			wantQueued: 1,
		},
		{
			name:       "queue full",
			path:       "/webhooks/stub",
			body:       `{"text":"hi"}`,
			platform:   &stubPlatform{result: channel.ParseResult{Kind: channel.ParseCommand, Ack: channel.OKAck(), Command: command}},
			queueErr:   relay.ErrQueueFull,
			wantStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			registry := channel.NewRegistry()
			registry.MustRegister(tc.platform)
			queue := &stubQueue{err: tc.queueErr}
			e := newTestEcho(registry, queue)

			rec := serve(e, http.MethodPost, tc.path, tc.body)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, strings.TrimSpace(rec.Body.String()))
			}
			queue.mu.Lock()
			defer queue.mu.Unlock()
			require.Len(t, queue.cmds, tc.wantQueued)
			if tc.wantQueued > 0 {
				assert.Equal(t, stubType, queue.cmds[0].Platform)
				tc.platform.mu.Lock()
				assert.Equal(t, "W9", tc.platform.parsed[0].PathWorkspace)
				assert.Equal(t, tc.body, string(tc.platform.parsed[0].Body))
				tc.platform.mu.Unlock()
			}
		})
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	registry := channel.NewRegistry()
	registry.MustRegister(&stubPlatform{})
	e := newTestEcho(registry, &stubQueue{})

	rec := serve(e, http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"stub"}, resp.Platforms)

	rec = serve(e, http.MethodHead, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// slackRecorder stands in for chat.postMessage and chat.update.
type slackRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (s *slackRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.calls = append(s.calls, r.URL.Path+" "+r.PostForm.Get("text"))
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.PostForm.Get("channel"), "ts": "1700000000.000200"})
}

func (s *slackRecorder) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestSlackEventEndToEnd(t *testing.T) {
	t.Parallel()
	const secret = "e2e-signing-secret"
	ctx := context.Background()

	slackAPI := &slackRecorder{}
	slackSrv := httptest.NewServer(slackAPI)
	t.Cleanup(slackSrv.Close)

	backendHits := make(chan relay.CompletionRequest, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relay.CompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		backendHits <- req
		for _, f := range []string{"**Go**", " is ", "fun"} {
			payload, _ := json.Marshal(f)
			_, _ = w.Write([]byte("0:" + string(payload) + "\n"))
		}
	}))
	t.Cleanup(backend.Close)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, store.Seed(ctx, logger.Discard(), st, []config.WorkspaceConfig{{
		ID:       "T1",
		Platform: "slack",
		BotToken: "xoxb-e2e",
		Routes:   []config.RouteConfig{{Default: true, BotID: "bot-1"}},
	}}))

	registry := channel.NewRegistry()
	registry.MustRegister(slackadapter.NewAdapter(logger.Discard(), slackadapter.Config{SigningSecret: secret, APIURL: slackSrv.URL}))
	r := relay.New(logger.Discard(), relay.Options{
		Registry: registry,
		Routes:   st,
		Sessions: st,
		Backend:  relay.NewHTTPBackend(logger.Discard(), config.BackendConfig{BaseURL: backend.URL}),
	})
	dispatcher := relay.NewDispatcher(logger.Discard(), r, 2, 8)
	dispatcher.Start(ctx)
	t.Cleanup(func() { _ = dispatcher.Shutdown(context.Background()) })

	e := newTestEcho(registry, dispatcher)

	body := `{"type":"event_callback","team_id":"T1","event_id":"Ev1","event_time":1,` +
		`"event":{"type":"app_mention","user":"U1","text":"<@UBOT> what is go?","channel":"C1","ts":"1.0"}}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(verify.HeaderSlackTimestamp, ts)
	req.Header.Set(verify.HeaderSlackSignature, "v0="+hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case got := <-backendHits:
		assert.Equal(t, "bot-1", got.TargetBotID)
		assert.Equal(t, "slack", got.ChannelTag)
		assert.Equal(t, "U1", got.ExternalUserID)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "what is go?", got.Messages[0].Content)
	case <-time.After(5 * time.Second):
		t.Fatal("backend was not called")
	}

	require.Eventually(t, func() bool { return len(slackAPI.Calls()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{
		"/chat.postMessage " + relay.DefaultThinkingText,
		"/chat.update *Go* is fun",
	}, slackAPI.Calls())

	sess, err := st.FindSessionByExternalID(ctx, "slack:C1")
	require.NoError(t, err)
	assert.Equal(t, "bot-1", sess.TargetBotID)
}
