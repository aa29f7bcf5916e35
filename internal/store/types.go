// Package store persists chat sessions, message history, routing entries and
// workspace credentials. PostgresStore is the production backend; SQLiteStore
// serves single-node deployments and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Message roles stored in history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession maps one external conversation to an internal session.
type ChatSession struct {
	ID                string
	ExternalSessionID string
	TargetBotID       string
	Platform          string
	CreatedAt         time.Time
}

// Message is one history turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}

// RoutingEntry resolves which bot answers a command in a workspace.
// CommandName is empty on the default entry.
type RoutingEntry struct {
	WorkspaceID string
	CommandName string
	IsDefault   bool
	TargetBotID string
}

// Workspace is a platform installation (Slack team, Discord guild, Telegram bot).
type Workspace struct {
	ID       string
	Platform string
	BotToken string
}

// CreateSessionParams describes a session to create on first contact.
type CreateSessionParams struct {
	ExternalSessionID string
	TargetBotID       string
	Platform          string
}

// SessionStore is the session/message collaborator used by the relay.
type SessionStore interface {
	FindSessionByExternalID(ctx context.Context, externalSessionID string) (ChatSession, error)
	// CreateSession is safe under concurrent first contact: when another
	// caller already created the session, the existing row is returned.
	CreateSession(ctx context.Context, params CreateSessionParams) (ChatSession, error)
	GetHistory(ctx context.Context, sessionID string) ([]Message, error)
	AppendMessage(ctx context.Context, sessionID string, msg Message) (Message, error)
}

// RoutingStore is the routing/credentials registry.
type RoutingStore interface {
	ResolveRoute(ctx context.Context, workspaceID, commandName string) (RoutingEntry, error)
	DefaultRoute(ctx context.Context, workspaceID string) (RoutingEntry, error)
	Commands(ctx context.Context, workspaceID string) ([]string, error)
	GetToken(ctx context.Context, workspaceID string) (string, error)
	UpsertWorkspace(ctx context.Context, ws Workspace) error
	ReplaceRoutes(ctx context.Context, workspaceID string, entries []RoutingEntry) error
}

// Store combines both collaborators behind one backend.
type Store interface {
	SessionStore
	RoutingStore
	Close() error
}
