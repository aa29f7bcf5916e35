package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/db"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. The schema is managed by db.RunMigrate.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindSessionByExternalID(ctx context.Context, externalSessionID string) (ChatSession, error) {
	const q = `SELECT id, external_session_id, target_bot_id, platform, created_at
		FROM chat_sessions WHERE external_session_id = $1`

	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		sess      ChatSession
	)
	err := s.pool.QueryRow(ctx, q, externalSessionID).Scan(&id, &sess.ExternalSessionID, &sess.TargetBotID, &sess.Platform, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, fmt.Errorf("find session: %w", err)
	}
	sess.ID = db.UUIDString(id)
	sess.CreatedAt = db.TimeFromPg(createdAt)
	return sess, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, params CreateSessionParams) (ChatSession, error) {
	const q = `INSERT INTO chat_sessions (id, external_session_id, target_bot_id, platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_session_id) DO NOTHING`

	id := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	if _, err := s.pool.Exec(ctx, q, id, params.ExternalSessionID, params.TargetBotID, params.Platform); err != nil {
		if !db.IsUniqueViolation(err) {
			return ChatSession{}, fmt.Errorf("create session: %w", err)
		}
	}
	// Whoever won the insert, the row is now there.
	return s.FindSessionByExternalID(ctx, params.ExternalSessionID)
}

func (s *PostgresStore) GetHistory(ctx context.Context, sessionID string) ([]Message, error) {
	sid, err := db.ParseUUID(sessionID)
	if err != nil {
		return nil, err
	}
	const q = `SELECT id, role, content, created_at FROM messages
		WHERE chat_session_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, q, sid)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			msg       Message
		)
		if err := rows.Scan(&id, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = db.UUIDString(id)
		msg.SessionID = sessionID
		msg.CreatedAt = db.TimeFromPg(createdAt)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, msg Message) (Message, error) {
	sid, err := db.ParseUUID(sessionID)
	if err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	mid, err := db.ParseUUID(msg.ID)
	if err != nil {
		return Message{}, err
	}
	const q = `INSERT INTO messages (id, chat_session_id, role, content)
		VALUES ($1, $2, $3, $4) RETURNING created_at`

	var createdAt pgtype.Timestamptz
	if err := s.pool.QueryRow(ctx, q, mid, sid, msg.Role, msg.Content).Scan(&createdAt); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.SessionID = sessionID
	msg.CreatedAt = db.TimeFromPg(createdAt)
	return msg, nil
}

func (s *PostgresStore) ResolveRoute(ctx context.Context, workspaceID, commandName string) (RoutingEntry, error) {
	name := channel.NormalizeCommand(commandName)
	if name == "" {
		return RoutingEntry{}, ErrNotFound
	}
	const q = `SELECT workspace_id, command_name, is_default, target_bot_id FROM routing_entries
		WHERE workspace_id = $1 AND command_name = $2 AND NOT is_default`
	return s.scanRoute(ctx, q, workspaceID, name)
}

func (s *PostgresStore) DefaultRoute(ctx context.Context, workspaceID string) (RoutingEntry, error) {
	const q = `SELECT workspace_id, command_name, is_default, target_bot_id FROM routing_entries
		WHERE workspace_id = $1 AND is_default`
	return s.scanRoute(ctx, q, workspaceID)
}

func (s *PostgresStore) scanRoute(ctx context.Context, q string, args ...any) (RoutingEntry, error) {
	var entry RoutingEntry
	err := s.pool.QueryRow(ctx, q, args...).Scan(&entry.WorkspaceID, &entry.CommandName, &entry.IsDefault, &entry.TargetBotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoutingEntry{}, ErrNotFound
	}
	if err != nil {
		return RoutingEntry{}, fmt.Errorf("resolve route: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Commands(ctx context.Context, workspaceID string) ([]string, error) {
	const q = `SELECT command_name FROM routing_entries
		WHERE workspace_id = $1 AND NOT is_default ORDER BY command_name`

	rows, err := s.pool.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) GetToken(ctx context.Context, workspaceID string) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx, `SELECT bot_token FROM workspaces WHERE id = $1`, workspaceID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) UpsertWorkspace(ctx context.Context, ws Workspace) error {
	const q = `INSERT INTO workspaces (id, platform, bot_token) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET platform = EXCLUDED.platform,
			bot_token = EXCLUDED.bot_token, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, ws.ID, strings.ToLower(ws.Platform), ws.BotToken); err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceRoutes(ctx context.Context, workspaceID string, entries []RoutingEntry) error {
	if err := validateRoutes(entries); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM routing_entries WHERE workspace_id = $1`, workspaceID); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}
	const ins = `INSERT INTO routing_entries (workspace_id, command_name, is_default, target_bot_id)
		VALUES ($1, $2, $3, $4)`
	for _, e := range entries {
		if _, err := tx.Exec(ctx, ins, workspaceID, routeCommand(e), e.IsDefault, e.TargetBotID); err != nil {
			return fmt.Errorf("insert route: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func routeCommand(e RoutingEntry) string {
	if e.IsDefault {
		return ""
	}
	return channel.NormalizeCommand(e.CommandName)
}

func validateRoutes(entries []RoutingEntry) error {
	defaults := 0
	for _, e := range entries {
		if strings.TrimSpace(e.TargetBotID) == "" {
			return errors.New("route target bot id is required")
		}
		if e.IsDefault {
			defaults++
			continue
		}
		if routeCommand(e) == "" {
			return errors.New("route command name is required unless default")
		}
	}
	if defaults > 1 {
		return errors.New("at most one default route per workspace")
	}
	return nil
}
