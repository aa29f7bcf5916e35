package channel

import (
	"net/http"
	"strings"
	"time"
)

// Type identifies a chat platform (slack, discord, telegram).
type Type string

func (t Type) String() string {
	return string(t)
}

// InboundEvent is a raw webhook delivery. Body is the unparsed request body
// and must not be re-encoded before verification.
type InboundEvent struct {
	Platform      Type
	Headers       http.Header
	Body          []byte
	ContentType   string
	PathWorkspace string
	ReceivedAt    time.Time
}

// ReplyHandle tells an adapter where to post the provisional message.
// Only the adapter that produced it may interpret it.
type ReplyHandle interface {
	Platform() Type
}

// MessageHandle references a posted platform message for later updates.
type MessageHandle interface {
	Platform() Type
}

// Command is the canonical, platform-independent user request.
type Command struct {
	Platform          Type
	WorkspaceID       string
	ChannelID         string
	UserID            string
	ExternalSessionID string
	// CommandName is set by the parser only when the platform names the
	// command explicitly; otherwise it is derived from ArgumentText.
	CommandName  string
	ArgumentText string
	Reply        ReplyHandle
}

// SessionKey namespaces an external conversation id by platform so ids
// from different platforms never collide.
func SessionKey(platform Type, parts ...string) string {
	items := make([]string, 0, len(parts)+1)
	items = append(items, platform.String())
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return strings.Join(items, ":")
}

// Credential is the bearer credential for one workspace.
type Credential struct {
	WorkspaceID string
	Token       string
}

// ParseKind classifies a parsed inbound event.
type ParseKind int

const (
	// ParseIgnore drops the event (bot-originated, unsupported type).
	ParseIgnore ParseKind = iota
	// ParseHandshake answers a platform challenge and stops.
	ParseHandshake
	// ParseCommand hands a Command to the relay.
	ParseCommand
)

func (k ParseKind) String() string {
	switch k {
	case ParseHandshake:
		return "handshake"
	case ParseCommand:
		return "command"
	default:
		return "ignore"
	}
}

// Ack is the synchronous HTTP response owed to the platform.
type Ack struct {
	Status      int
	ContentType string
	Body        []byte
}

// OKAck is a bare 200 with no body.
func OKAck() Ack {
	return Ack{Status: http.StatusOK}
}

// RawAck echoes a body verbatim.
func RawAck(contentType string, body []byte) Ack {
	return Ack{Status: http.StatusOK, ContentType: contentType, Body: body}
}

// ParseResult is the outcome of Parser.Parse.
type ParseResult struct {
	Kind    ParseKind
	Ack     Ack
	Command Command
	Reason  string
}
