// Package telegram implements the Telegram channel adapter over Bot API
// webhooks.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/verify"
)

// Type is the registered channel type identifier for Telegram.
const Type channel.Type = "telegram"

// TextLimit is the Bot API ceiling for a text message.
const TextLimit = 4096

// Config configures the adapter.
type Config struct {
	// SecretToken must match X-Telegram-Bot-Api-Secret-Token on every delivery.
	SecretToken string
	// APIEndpoint overrides https://api.telegram.org (local Bot API servers, tests).
	APIEndpoint string
	HTTPClient  *http.Client
}

// The Bot API library logs through one package-level logger.
var setLoggerOnce sync.Once

// Adapter implements channel.Platform for Telegram.
type Adapter struct {
	logger      *slog.Logger
	secretToken string
	apiEndpoint string
	httpClient  *http.Client
}

// NewAdapter creates a Telegram adapter and routes the Bot API library's
// logging through slog.
func NewAdapter(log *slog.Logger, cfg Config) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("adapter", "telegram"))
	setLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: log})
	})

	endpoint := tgbotapi.APIEndpoint
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIEndpoint), "/"); base != "" {
		endpoint = base + "/bot%s/%s"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		logger:      log,
		secretToken: cfg.SecretToken,
		apiEndpoint: endpoint,
		httpClient:  client,
	}
}

// Type returns the Telegram channel type.
func (a *Adapter) Type() channel.Type {
	return Type
}

// Descriptor returns the Telegram adapter metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		Capabilities: channel.Capabilities{
			Markdown:           true,
			Edit:               true,
			NativeCommands:     true,
			RequiresCredential: true,
		},
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: TextLimit,
		},
	}
}

// Verify compares the webhook secret token header.
func (a *Adapter) Verify(ev channel.InboundEvent) error {
	return verify.SharedToken(ev.Headers, verify.HeaderTelegramSecret, a.secretToken)
}

type chatTarget struct {
	chatID  int64
	replyTo int
}

func (chatTarget) Platform() channel.Type { return Type }

type sentMessage struct {
	chatID    int64
	messageID int
}

func (sentMessage) Platform() channel.Type { return Type }

// Post sends the provisional message as a reply to the user's message.
func (a *Adapter) Post(ctx context.Context, cred channel.Credential, reply channel.ReplyHandle, text string) (channel.MessageHandle, error) {
	target, ok := reply.(chatTarget)
	if !ok {
		return nil, fmt.Errorf("telegram: unexpected reply handle %T", reply)
	}
	bot, err := a.bot(ctx, cred)
	if err != nil {
		return nil, &channel.PlatformWriteError{Platform: Type, Op: "post", Err: err}
	}
	msg := tgbotapi.NewMessage(target.chatID, text)
	if target.replyTo > 0 {
		msg.ReplyToMessageID = target.replyTo
	}
	sent, err := bot.Send(msg)
	if err != nil {
		return nil, &channel.PlatformWriteError{Platform: Type, Op: "post", Err: err}
	}
	return sentMessage{chatID: target.chatID, messageID: sent.MessageID}, nil
}

// Update edits a sent message as HTML. Text the API cannot parse as HTML,
// which happens when truncation cuts through a tag, is resent without a
// parse mode.
func (a *Adapter) Update(ctx context.Context, cred channel.Credential, handle channel.MessageHandle, text string) error {
	msg, ok := handle.(sentMessage)
	if !ok {
		return fmt.Errorf("telegram: unexpected message handle %T", handle)
	}
	bot, err := a.bot(ctx, cred)
	if err != nil {
		return &channel.PlatformWriteError{Platform: Type, Op: "update", Err: err}
	}
	edit := tgbotapi.NewEditMessageText(msg.chatID, msg.messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err = bot.Send(edit)
	if apiErrorContains(err, "can't parse entities") {
		a.logger.Warn("html rejected, resending as plain text", slog.Any("error", err))
		edit.ParseMode = ""
		_, err = bot.Send(edit)
	}
	// Repeating the previous text is a no-op, not a failure.
	if err != nil && !apiErrorContains(err, "message is not modified") {
		return &channel.PlatformWriteError{Platform: Type, Op: "update", Err: err}
	}
	return nil
}

func (a *Adapter) bot(ctx context.Context, cred channel.Credential) (*tgbotapi.BotAPI, error) {
	token := strings.TrimSpace(cred.Token)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	// Built directly instead of NewBotAPI to skip the getMe round trip.
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Buffer: 100,
		Client: &contextClient{ctx: ctx, client: a.httpClient},
	}
	bot.SetAPIEndpoint(a.apiEndpoint)
	return bot, nil
}

func apiErrorContains(err error, fragment string) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(apiErr.Message, fragment)
}

// contextClient binds the relay job's context to requests the Bot API
// library builds without one.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c *contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
