package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
)

// Parse decodes an Update. The workspace (bot) comes from the webhook path
// because updates do not name the bot they were delivered to.
func (a *Adapter) Parse(ev channel.InboundEvent) (channel.ParseResult, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(ev.Body, &update); err != nil {
		return channel.ParseResult{}, fmt.Errorf("parse update: %w", err)
	}
	msg := update.Message
	if msg == nil {
		return ignore("update without message"), nil
	}
	if msg.From != nil && msg.From.IsBot {
		return ignore("bot sender"), nil
	}
	if msg.Chat == nil {
		return ignore("message without chat"), nil
	}
	workspace := strings.TrimSpace(ev.PathWorkspace)
	if workspace == "" {
		return ignore("workspace missing from webhook path"), nil
	}

	var name, text string
	if msg.IsCommand() {
		name = msg.Command()
		text = msg.CommandArguments()
	} else {
		text = msg.Text
		if strings.TrimSpace(text) == "" {
			text = msg.Caption
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ignore("no text"), nil
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	a.logger.Debug("telegram message",
		slog.String("workspace_id", workspace),
		slog.String("chat_id", chatID),
		slog.String("text", adapterutil.SummarizeText(text)))
	return channel.ParseResult{
		Kind: channel.ParseCommand,
		Ack:  channel.OKAck(),
		Command: channel.Command{
			Platform:          Type,
			WorkspaceID:       workspace,
			ChannelID:         chatID,
			UserID:            resolveSender(msg),
			ExternalSessionID: channel.SessionKey(Type, workspace, chatID),
			CommandName:       strings.ToLower(name),
			ArgumentText:      text,
			Reply:             chatTarget{chatID: msg.Chat.ID, replyTo: msg.MessageID},
		},
	}, nil
}

// resolveSender prefers the user id, then a sender chat (anonymous admins,
// channels), then the chat itself.
func resolveSender(msg *tgbotapi.Message) string {
	if msg.From != nil {
		if msg.From.ID != 0 {
			return strconv.FormatInt(msg.From.ID, 10)
		}
		if u := strings.TrimSpace(msg.From.UserName); u != "" {
			return u
		}
	}
	if msg.SenderChat != nil {
		return strconv.FormatInt(msg.SenderChat.ID, 10)
	}
	if msg.Chat != nil {
		return strconv.FormatInt(msg.Chat.ID, 10)
	}
	return ""
}

func ignore(reason string) channel.ParseResult {
	return channel.ParseResult{Kind: channel.ParseIgnore, Ack: channel.OKAck(), Reason: reason}
}
