package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/store"
)

const fakeType = channel.Type("fake")

type fakeHandle struct{}

func (fakeHandle) Platform() channel.Type { return fakeType }

// fakePlatform records every write as "post:<text>" or "update:<text>".
type fakePlatform struct {
	limit        int
	requiresCred bool
	postErr      error
	failUpdateAt int

	mu      sync.Mutex
	writes  []string
	creds   []channel.Credential
	updates int
}

func (p *fakePlatform) Type() channel.Type { return fakeType }

func (p *fakePlatform) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:         fakeType,
		DisplayName:  "Fake",
		Capabilities: channel.Capabilities{Edit: true, RequiresCredential: p.requiresCred},
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit:        p.limit,
			TruncationSuffix: "…",
		},
	}
}

func (p *fakePlatform) Verify(channel.InboundEvent) error { return nil }

func (p *fakePlatform) Parse(channel.InboundEvent) (channel.ParseResult, error) {
	return channel.ParseResult{Kind: channel.ParseIgnore}, nil
}

func (p *fakePlatform) Format(text string) string {
	return strings.ReplaceAll(text, "**", "*")
}

func (p *fakePlatform) Post(_ context.Context, cred channel.Credential, _ channel.ReplyHandle, text string) (channel.MessageHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, cred)
	if p.postErr != nil {
		return nil, p.postErr
	}
	p.writes = append(p.writes, "post:"+text)
	return fakeHandle{}, nil
}

func (p *fakePlatform) Update(_ context.Context, _ channel.Credential, _ channel.MessageHandle, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	if p.updates == p.failUpdateAt {
		return &channel.PlatformWriteError{Platform: fakeType, Op: "update", Err: errors.New("message deleted")}
	}
	p.writes = append(p.writes, "update:"+text)
	return nil
}

func (p *fakePlatform) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

// fakeBackend serves a canned stream body and records requests.
type fakeBackend struct {
	body   string
	reader func() io.Reader
	err    error
	panics bool

	mu       sync.Mutex
	requests []CompletionRequest
}

func (b *fakeBackend) Stream(_ context.Context, req CompletionRequest) (io.ReadCloser, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	if b.panics {
		panic("backend exploded")
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.reader != nil {
		return io.NopCloser(b.reader()), nil
	}
	return io.NopCloser(strings.NewReader(b.body)), nil
}

func (b *fakeBackend) Requests() []CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CompletionRequest(nil), b.requests...)
}

// textLines encodes fragments in the backend line protocol.
func textLines(fragments ...string) string {
	var sb strings.Builder
	for _, f := range fragments {
		payload, _ := json.Marshal(f)
		sb.WriteString("0:")
		sb.Write(payload)
		sb.WriteString("\n")
	}
	return sb.String()
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Unix(0, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(step)
		return now
	}
}

func newTestStore(t *testing.T, workspaces ...config.WorkspaceConfig) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, store.Seed(context.Background(), logger.Discard(), s, workspaces))
	return s
}

func defaultWorkspace() config.WorkspaceConfig {
	return config.WorkspaceConfig{
		ID:       "W1",
		Platform: string(fakeType),
		BotToken: "xoxb-test",
		Routes: []config.RouteConfig{
			{Default: true, BotID: "bot-default"},
			{Command: "ask", BotID: "bot-ask"},
		},
	}
}

type relayFixture struct {
	platform *fakePlatform
	backend  *fakeBackend
	store    *store.SQLiteStore
	relay    *Relay
}

func newRelayFixture(t *testing.T, platform *fakePlatform, backend *fakeBackend, cfg config.RelayConfig, now func() time.Time, workspaces ...config.WorkspaceConfig) *relayFixture {
	t.Helper()
	registry := channel.NewRegistry()
	registry.MustRegister(platform)
	st := newTestStore(t, workspaces...)
	r := New(logger.Discard(), Options{
		Registry: registry,
		Routes:   st,
		Sessions: st,
		Backend:  backend,
		Config:   cfg,
		Now:      now,
	})
	return &relayFixture{platform: platform, backend: backend, store: st, relay: r}
}

func testCommand(text string) channel.Command {
	return channel.Command{
		Platform:          fakeType,
		WorkspaceID:       "W1",
		ChannelID:         "C1",
		UserID:            "U1",
		ExternalSessionID: channel.SessionKey(fakeType, "W1", "C1"),
		ArgumentText:      text,
		Reply:             fakeHandle{},
	}
}
