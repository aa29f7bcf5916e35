package slack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
)

var reUserMention = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// Parse decodes a verified delivery: slash commands arrive form-encoded,
// everything else is an Events API envelope.
func (a *Adapter) Parse(ev channel.InboundEvent) (channel.ParseResult, error) {
	var (
		result channel.ParseResult
		err    error
	)
	if isForm(ev) {
		result, err = a.parseSlashCommand(ev)
	} else {
		result, err = a.parseEvent(ev)
	}
	if err == nil && result.Kind == channel.ParseCommand {
		a.logger.Debug("slack command",
			slog.String("workspace_id", result.Command.WorkspaceID),
			slog.String("command", result.Command.CommandName),
			slog.String("text", adapterutil.SummarizeText(result.Command.ArgumentText)))
	}
	return result, err
}

func isForm(ev channel.InboundEvent) bool {
	ct := ev.ContentType
	if ct == "" && ev.Headers != nil {
		ct = ev.Headers.Get("Content-Type")
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err == nil {
		return mediaType == "application/x-www-form-urlencoded"
	}
	trimmed := bytes.TrimSpace(ev.Body)
	return len(trimmed) > 0 && trimmed[0] != '{'
}

func (a *Adapter) parseSlashCommand(ev channel.InboundEvent) (channel.ParseResult, error) {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(ev.Body))
	if err != nil {
		return channel.ParseResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sc, err := slack.SlashCommandParse(req)
	if err != nil {
		return channel.ParseResult{}, fmt.Errorf("parse slash command: %w", err)
	}
	if strings.TrimSpace(sc.ChannelID) == "" {
		return ignore("slash command without channel"), nil
	}
	return channel.ParseResult{
		Kind: channel.ParseCommand,
		Ack:  channel.OKAck(),
		Command: channel.Command{
			Platform:          Type,
			WorkspaceID:       workspaceID(sc.TeamID, ev.PathWorkspace),
			ChannelID:         sc.ChannelID,
			UserID:            sc.UserID,
			ExternalSessionID: channel.SessionKey(Type, sc.ChannelID),
			ArgumentText:      strings.TrimSpace(sc.Text),
			Reply:             replyTarget{channel: sc.ChannelID},
		},
	}, nil
}

func (a *Adapter) parseEvent(ev channel.InboundEvent) (channel.ParseResult, error) {
	outer, err := slackevents.ParseEvent(json.RawMessage(ev.Body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Inner event types slack-go does not model are not ours to answer.
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(ev.Body, &envelope) == nil && envelope.Type == slackevents.CallbackEvent {
			a.logger.Debug("ignore undecodable callback event", slog.Any("error", err))
			return ignore("undecodable inner event"), nil
		}
		return channel.ParseResult{}, fmt.Errorf("parse slack event: %w", err)
	}

	switch outer.Type {
	case slackevents.URLVerification:
		challenge, ok := outer.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			return channel.ParseResult{}, fmt.Errorf("unexpected url_verification payload %T", outer.Data)
		}
		body, err := json.Marshal(map[string]string{"challenge": challenge.Challenge})
		if err != nil {
			return channel.ParseResult{}, err
		}
		return channel.ParseResult{
			Kind: channel.ParseHandshake,
			Ack:  channel.RawAck("application/json", body),
		}, nil
	case slackevents.CallbackEvent:
	default:
		return ignore("unsupported envelope " + outer.Type), nil
	}

	var msg message
	switch inner := outer.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" {
			return ignore("bot message or subtype"), nil
		}
		msg = message{user: inner.User, text: inner.Text, channel: inner.Channel, threadTS: inner.ThreadTimeStamp}
	case *slackevents.AppMentionEvent:
		if inner.BotID != "" {
			return ignore("bot mention"), nil
		}
		msg = message{user: inner.User, text: inner.Text, channel: inner.Channel, threadTS: inner.ThreadTimeStamp}
	default:
		return ignore("unsupported event " + outer.InnerEvent.Type), nil
	}

	text := strings.TrimSpace(reUserMention.ReplaceAllString(msg.text, ""))
	if text == "" {
		return ignore("empty text"), nil
	}
	// Slash command text echoed as a message is handled by the form path.
	if strings.HasPrefix(text, "/") {
		return ignore("slash command echo"), nil
	}
	if msg.channel == "" {
		return ignore("event without channel"), nil
	}

	// Threads get their own conversation; top-level messages share the channel's.
	return channel.ParseResult{
		Kind: channel.ParseCommand,
		Ack:  channel.OKAck(),
		Command: channel.Command{
			Platform:          Type,
			WorkspaceID:       workspaceID(outer.TeamID, ev.PathWorkspace),
			ChannelID:         msg.channel,
			UserID:            msg.user,
			ExternalSessionID: channel.SessionKey(Type, msg.channel, msg.threadTS),
			ArgumentText:      text,
			Reply:             replyTarget{channel: msg.channel, threadTS: msg.threadTS},
		},
	}, nil
}

type message struct {
	user     string
	text     string
	channel  string
	threadTS string
}

func workspaceID(team, fromPath string) string {
	if team = strings.TrimSpace(team); team != "" {
		return team
	}
	return strings.TrimSpace(fromPath)
}

func ignore(reason string) channel.ParseResult {
	return channel.ParseResult{Kind: channel.ParseIgnore, Ack: channel.OKAck(), Reason: reason}
}
