// Package discord implements the Discord channel adapter over application
// command interactions. Replies go to the interaction's original response,
// so no bot token is needed.
package discord

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
	"github.com/memohai/relay/internal/channel/verify"
)

// Type is the registry key of the Discord adapter.
const Type channel.Type = "discord"

// TextLimit is Discord's message content ceiling.
const TextLimit = 2000

// Config configures the adapter.
type Config struct {
	// PublicKey is the application public key, hex encoded.
	PublicKey string
	// APIEndpoint redirects REST calls (scheme and host only).
	APIEndpoint string
	HTTPClient  *http.Client
}

// Adapter implements channel.Platform for Discord interactions.
type Adapter struct {
	logger     *slog.Logger
	publicKey  ed25519.PublicKey
	httpClient *http.Client
}

// NewAdapter creates a Discord adapter. An empty public key is allowed and
// makes every delivery fail verification.
func NewAdapter(log *slog.Logger, cfg Config) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{logger: log.With(slog.String("adapter", "discord"))}
	if strings.TrimSpace(cfg.PublicKey) != "" {
		key, err := verify.ParseEd25519PublicKey(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("discord: %w", err)
		}
		a.publicKey = key
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if endpoint := strings.TrimSpace(cfg.APIEndpoint); endpoint != "" {
		base, err := url.Parse(endpoint)
		if err != nil || base.Host == "" {
			return nil, fmt.Errorf("discord: invalid api endpoint %q", endpoint)
		}
		next := client.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		redirected := *client
		redirected.Transport = &endpointTransport{base: base, next: next}
		client = &redirected
	}
	a.httpClient = client
	return a, nil
}

// Type returns the Discord channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// Descriptor returns the Discord adapter metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Discord",
		Capabilities: channel.Capabilities{
			Markdown:       true,
			Edit:           true,
			NativeCommands: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: TextLimit,
		},
	}
}

// Verify checks the Ed25519 signature over timestamp||body.
func (a *Adapter) Verify(ev channel.InboundEvent) error {
	return verify.Ed25519(ev.Headers, ev.Body, a.publicKey)
}

// interactionRef addresses an interaction's original response. It serves as
// both the reply handle and the message handle.
type interactionRef struct {
	appID string
	token string
}

func (interactionRef) Platform() channel.Type { return Type }

// Post replaces the deferred "thinking" state with text.
func (a *Adapter) Post(ctx context.Context, cred channel.Credential, reply channel.ReplyHandle, text string) (channel.MessageHandle, error) {
	ref, ok := reply.(interactionRef)
	if !ok {
		return nil, fmt.Errorf("discord: unexpected reply handle %T", reply)
	}
	if err := a.editOriginal(ctx, cred, ref, text); err != nil {
		return nil, &channel.PlatformWriteError{Platform: Type, Op: "post", Err: err}
	}
	return ref, nil
}

// Update edits the original interaction response.
func (a *Adapter) Update(ctx context.Context, cred channel.Credential, handle channel.MessageHandle, text string) error {
	ref, ok := handle.(interactionRef)
	if !ok {
		return fmt.Errorf("discord: unexpected message handle %T", handle)
	}
	if err := a.editOriginal(ctx, cred, ref, text); err != nil {
		return &channel.PlatformWriteError{Platform: Type, Op: "update", Err: err}
	}
	return nil
}

func (a *Adapter) editOriginal(ctx context.Context, cred channel.Credential, ref interactionRef, text string) error {
	if ref.appID == "" || ref.token == "" {
		return errors.New("interaction reference is incomplete")
	}
	session, err := a.session(cred)
	if err != nil {
		return err
	}
	interaction := &discordgo.Interaction{AppID: ref.appID, Token: ref.token}
	_, err = session.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{Content: &text}, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) session(cred channel.Credential) (*discordgo.Session, error) {
	// Interaction webhooks authenticate by token in the path; only send a
	// bot authorization header when one is configured.
	token := ""
	if t := strings.TrimSpace(cred.Token); t != "" {
		token = "Bot " + t
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	s.Client = a.httpClient
	s.MaxRestRetries = 1
	return s, nil
}

var markdown = adapterutil.Dialect{
	Bold:   func(s string) string { return "**" + s + "**" },
	Italic: func(s string) string { return "*" + s + "*" },
	Strike: func(s string) string { return "~~" + s + "~~" },
	Code:   func(s string) string { return "`" + s + "`" },
	CodeBlock: func(lang, code string) string {
		return "```" + lang + "\n" + code + "\n```"
	},
	Heading: func(level int, s string) string {
		if level > 3 {
			return "**" + s + "**"
		}
		return strings.Repeat("#", level) + " " + s
	},
	Link: func(label, u string) string {
		if label == "" || label == u {
			return u
		}
		return "[" + label + "](" + u + ")"
	},
	Quote: func(s string) string {
		return "> " + strings.ReplaceAll(s, "\n", "\n> ")
	},
	Bullet: "• ",
}

// Format normalizes canonical markdown to the subset Discord renders.
func (a *Adapter) Format(text string) string {
	return adapterutil.RenderMarkdown(text, markdown)
}

type endpointTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *endpointTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.Host = t.base.Host
	return t.next.RoundTrip(r)
}
