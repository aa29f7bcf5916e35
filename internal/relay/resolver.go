package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/store"
)

// Route is the outcome of command routing: which bot answers and the text
// it is asked.
type Route struct {
	Entry       store.RoutingEntry
	CommandName string
	Question    string
}

// Resolver maps a command to a routing entry, a session and its history.
type Resolver struct {
	routes   store.RoutingStore
	sessions store.SessionStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(log *slog.Logger, routes store.RoutingStore, sessions store.SessionStore) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		routes:   routes,
		sessions: sessions,
		logger:   log.With(slog.String("component", "resolver")),
	}
}

// Route picks the routing entry for cmd. An explicit command name from the
// platform is tried first; otherwise the first word of the text is matched
// against the workspace's commands. Without a match the default entry
// answers the full text. No default yields a *ConfigurationError.
func (r *Resolver) Route(ctx context.Context, cmd channel.Command) (Route, error) {
	question := strings.TrimSpace(cmd.ArgumentText)
	name := channel.NormalizeCommand(cmd.CommandName)

	if name == "" {
		commands, err := r.routes.Commands(ctx, cmd.WorkspaceID)
		if err != nil {
			return Route{}, fmt.Errorf("list commands: %w", err)
		}
		extracted, args := channel.ExtractCommand(question, channel.NewCommandSet(commands...))
		if extracted != "" {
			name = extracted
			// A bare command word still reaches its bot with the word as text.
			if args != "" {
				question = args
			}
		}
	}

	if name != "" {
		entry, err := r.routes.ResolveRoute(ctx, cmd.WorkspaceID, name)
		switch {
		case err == nil:
			return Route{Entry: entry, CommandName: name, Question: question}, nil
		case !errors.Is(err, store.ErrNotFound):
			return Route{}, fmt.Errorf("resolve route: %w", err)
		}
	}

	entry, err := r.routes.DefaultRoute(ctx, cmd.WorkspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return Route{}, &ConfigurationError{WorkspaceID: cmd.WorkspaceID, CommandName: name}
	}
	if err != nil {
		return Route{}, fmt.Errorf("default route: %w", err)
	}
	return Route{Entry: entry, Question: question}, nil
}

// Session finds the session for cmd's external id or creates it bound to
// the routed bot. Concurrent first contacts converge on one row.
func (r *Resolver) Session(ctx context.Context, cmd channel.Command, route Route) (store.ChatSession, error) {
	sess, err := r.sessions.FindSessionByExternalID(ctx, cmd.ExternalSessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.ChatSession{}, fmt.Errorf("find session: %w", err)
	}
	sess, err = r.sessions.CreateSession(ctx, store.CreateSessionParams{
		ExternalSessionID: cmd.ExternalSessionID,
		TargetBotID:       route.Entry.TargetBotID,
		Platform:          cmd.Platform.String(),
	})
	if err != nil {
		return store.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	r.logger.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("external_session_id", sess.ExternalSessionID))
	return sess, nil
}

// History loads the session's messages oldest first and appends the new
// user turn. The turn is not persisted here.
func (r *Resolver) History(ctx context.Context, sess store.ChatSession, question string) ([]store.Message, store.Message, error) {
	history, err := r.sessions.GetHistory(ctx, sess.ID)
	if err != nil {
		return nil, store.Message{}, fmt.Errorf("load history: %w", err)
	}
	turn := store.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      store.RoleUser,
		Content:   question,
	}
	messages := make([]store.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, turn)
	return messages, turn, nil
}
