package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/store"
)

func TestHTTPBackendStream(t *testing.T) {
	t.Parallel()
	type captured struct {
		auth string
		body map[string]any
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/external", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var c captured
		c.auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&c.body))
		seen <- c
		_, _ = io.WriteString(w, textLines("hi"))
	}))
	t.Cleanup(srv.Close)

	b := NewHTTPBackend(logger.Discard(), config.BackendConfig{BaseURL: srv.URL + "/", APIKey: " secret "})
	body, err := b.Stream(context.Background(), CompletionRequest{
		SessionID:      "s1",
		Messages:       []store.Message{{ID: "m1", Role: store.RoleUser, Content: "hello"}},
		TargetBotID:    "bot",
		ChannelTag:     "slack",
		ExternalUserID: "U1",
	})
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	assert.Equal(t, textLines("hi"), string(raw))
	got := <-seen
	gotAuth, gotBody := got.auth, got.body
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "s1", gotBody["sessionId"])
	assert.Equal(t, "bot", gotBody["targetBotId"])
	assert.Equal(t, "slack", gotBody["channelTag"])
	assert.Equal(t, "U1", gotBody["externalUserId"])
	assert.NotContains(t, gotBody, "workspaceId")
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"id": "m1", "role": "user", "content": "hello"}, msgs[0])
}

func TestHTTPBackendErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, strings.Repeat("e", 1000))
	}))
	t.Cleanup(srv.Close)

	b := NewHTTPBackend(logger.Discard(), config.BackendConfig{BaseURL: srv.URL, Path: "chat"})
	_, err := b.Stream(context.Background(), CompletionRequest{SessionID: "s1"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Len(t, upstream.Body, 303)
}

func TestHTTPBackendUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := NewHTTPBackend(logger.Discard(), config.BackendConfig{BaseURL: url, TimeoutSeconds: 1})
	_, err := b.Stream(context.Background(), CompletionRequest{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.Status)
	assert.Error(t, upstream.Unwrap())
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc..."},
		{name: "inside two-byte rune", in: "ééé", n: 3, want: "é..."},
		{name: "inside four-byte rune", in: "a😀b", n: 3, want: "a..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tc.in, tc.n)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
