package discord

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/adapterutil"
)

// Option names of the generic ask command.
const (
	optionQuestion = "question"
	optionBot      = "bot"
)

var (
	pongAck     = channel.RawAck("application/json", []byte(`{"type":1}`))
	deferredAck = channel.RawAck("application/json", []byte(`{"type":5}`))
)

// Parse decodes an interaction. PING is answered with PONG; application
// commands are acknowledged as deferred and relayed.
func (a *Adapter) Parse(ev channel.InboundEvent) (channel.ParseResult, error) {
	var i discordgo.Interaction
	if err := json.Unmarshal(ev.Body, &i); err != nil {
		return channel.ParseResult{}, fmt.Errorf("parse interaction: %w", err)
	}

	switch i.Type {
	case discordgo.InteractionPing:
		return channel.ParseResult{Kind: channel.ParseHandshake, Ack: pongAck}, nil
	case discordgo.InteractionApplicationCommand:
	default:
		return channel.ParseResult{
			Kind:   channel.ParseIgnore,
			Ack:    channel.OKAck(),
			Reason: "unsupported interaction " + i.Type.String(),
		}, nil
	}

	data := i.ApplicationCommandData()
	question, bot := commandArguments(data.Options)
	if strings.TrimSpace(question) == "" {
		return channel.ParseResult{Kind: channel.ParseIgnore, Ack: channel.OKAck(), Reason: "empty question"}, nil
	}
	// An explicit bot option wins; otherwise the command's own name is tried
	// against the routing table before falling back to the default entry.
	name := bot
	if name == "" {
		name = data.Name
	}

	a.logger.Debug("discord interaction",
		slog.String("command", data.Name),
		slog.String("text", adapterutil.SummarizeText(question)))
	return channel.ParseResult{
		Kind: channel.ParseCommand,
		Ack:  deferredAck,
		Command: channel.Command{
			Platform:          Type,
			WorkspaceID:       workspaceID(&i, ev.PathWorkspace),
			ChannelID:         i.ChannelID,
			UserID:            userID(&i),
			ExternalSessionID: channel.SessionKey(Type, i.ChannelID),
			CommandName:       strings.ToLower(strings.TrimSpace(name)),
			ArgumentText:      strings.TrimSpace(question),
			Reply:             interactionRef{appID: i.AppID, token: i.Token},
		},
	}, nil
}

// commandArguments returns the question text and the bot selector. When no
// question option exists, the string options are joined in order.
func commandArguments(opts []*discordgo.ApplicationCommandInteractionDataOption) (question, bot string) {
	var rest []string
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		value, ok := opt.Value.(string)
		if !ok {
			continue
		}
		switch opt.Name {
		case optionQuestion:
			question = value
		case optionBot:
			bot = value
		default:
			rest = append(rest, value)
		}
	}
	if question == "" {
		question = strings.Join(rest, " ")
	}
	return question, bot
}

func workspaceID(i *discordgo.Interaction, fromPath string) string {
	if i.GuildID != "" {
		return i.GuildID
	}
	if p := strings.TrimSpace(fromPath); p != "" {
		return p
	}
	// Direct messages have no guild; the application stands in for it.
	return i.AppID
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
