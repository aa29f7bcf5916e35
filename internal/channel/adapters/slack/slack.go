// Package slack implements the Slack channel adapter: Events API and slash
// command webhooks in, chat.postMessage and chat.update out.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/verify"
)

// Type is the registry key of the Slack adapter.
const Type channel.Type = "slack"

// TextLimit is the ceiling applied to a single message body.
const TextLimit = 4000

// Config configures the adapter.
type Config struct {
	// SigningSecret is the app-level secret used for request signatures.
	SigningSecret string
	// APIURL overrides https://slack.com/api/ (tests, proxies).
	APIURL     string
	HTTPClient *http.Client
}

// Adapter implements channel.Platform for Slack.
type Adapter struct {
	logger        *slog.Logger
	signingSecret string
	apiURL        string
	httpClient    *http.Client
}

// NewAdapter creates a Slack adapter.
func NewAdapter(log *slog.Logger, cfg Config) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		logger:        log.With(slog.String("adapter", "slack")),
		signingSecret: cfg.SigningSecret,
		apiURL:        apiURL,
		httpClient:    client,
	}
}

// Type returns the Slack channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// Descriptor returns the Slack adapter metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Slack",
		Capabilities: channel.Capabilities{
			Markdown:           true,
			Edit:               true,
			Threads:            true,
			NativeCommands:     true,
			RequiresCredential: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: TextLimit,
		},
	}
}

// Verify checks the v0 request signature over the raw body.
func (a *Adapter) Verify(ev channel.InboundEvent) error {
	return verify.HMACSHA256(ev.Headers, ev.Body, a.signingSecret)
}

// replyTarget is where the provisional message goes. An empty threadTS posts
// at channel level.
type replyTarget struct {
	channel  string
	threadTS string
}

func (replyTarget) Platform() channel.Type { return Type }

type postedMessage struct {
	channel string
	ts      string
}

func (postedMessage) Platform() channel.Type { return Type }

// Post sends the provisional message and returns its timestamp handle.
func (a *Adapter) Post(ctx context.Context, cred channel.Credential, reply channel.ReplyHandle, text string) (channel.MessageHandle, error) {
	target, ok := reply.(replyTarget)
	if !ok {
		return nil, fmt.Errorf("slack: unexpected reply handle %T", reply)
	}
	client, err := a.client(cred)
	if err != nil {
		return nil, &channel.PlatformWriteError{Platform: Type, Op: "post", Err: err}
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if target.threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(target.threadTS))
	}
	ch, ts, err := client.PostMessageContext(ctx, target.channel, opts...)
	if err != nil {
		return nil, &channel.PlatformWriteError{Platform: Type, Op: "post", Err: err}
	}
	if ch == "" {
		ch = target.channel
	}
	return postedMessage{channel: ch, ts: ts}, nil
}

// Update replaces the text of a posted message.
func (a *Adapter) Update(ctx context.Context, cred channel.Credential, handle channel.MessageHandle, text string) error {
	msg, ok := handle.(postedMessage)
	if !ok {
		return fmt.Errorf("slack: unexpected message handle %T", handle)
	}
	client, err := a.client(cred)
	if err != nil {
		return &channel.PlatformWriteError{Platform: Type, Op: "update", Err: err}
	}
	if _, _, _, err := client.UpdateMessageContext(ctx, msg.channel, msg.ts, slack.MsgOptionText(text, false)); err != nil {
		return &channel.PlatformWriteError{Platform: Type, Op: "update", Err: err}
	}
	return nil
}

func (a *Adapter) client(cred channel.Credential) (*slack.Client, error) {
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return nil, errors.New("slack bot token is required")
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(a.httpClient),
		slack.OptionLog(&slogSlackLogger{log: a.logger}),
	}
	if a.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(a.apiURL))
	}
	return slack.New(token, opts...), nil
}

// slogSlackLogger routes slack-go's internal logging through slog.
type slogSlackLogger struct {
	log *slog.Logger
}

func (l *slogSlackLogger) Output(_ int, s string) error {
	l.log.Debug(strings.TrimSpace(s))
	return nil
}
