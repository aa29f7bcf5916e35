package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/memohai/relay/internal/channel"
)

// SQLiteStore implements Store on an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps per-connection pragmas in effect.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLiteStore{db: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	PRAGMA busy_timeout = 5000;
	PRAGMA journal_mode = WAL;
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS workspaces (
		id         TEXT PRIMARY KEY,
		platform   TEXT NOT NULL,
		bot_token  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routing_entries (
		workspace_id  TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		command_name  TEXT NOT NULL DEFAULT '',
		is_default    INTEGER NOT NULL DEFAULT 0,
		target_bot_id TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS routing_entries_command_uniq
		ON routing_entries (workspace_id, command_name) WHERE is_default = 0;
	CREATE UNIQUE INDEX IF NOT EXISTS routing_entries_default_uniq
		ON routing_entries (workspace_id) WHERE is_default = 1;

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id                  TEXT PRIMARY KEY,
		external_session_id TEXT NOT NULL UNIQUE,
		target_bot_id       TEXT NOT NULL,
		platform            TEXT NOT NULL DEFAULT '',
		created_at          INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		chat_session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_session_seq_idx ON messages (chat_session_id, seq);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindSessionByExternalID(ctx context.Context, externalSessionID string) (ChatSession, error) {
	const q = `SELECT id, external_session_id, target_bot_id, platform, created_at
		FROM chat_sessions WHERE external_session_id = ?`

	var (
		sess      ChatSession
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, q, externalSessionID).Scan(&sess.ID, &sess.ExternalSessionID, &sess.TargetBotID, &sess.Platform, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, fmt.Errorf("find session: %w", err)
	}
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	return sess, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, params CreateSessionParams) (ChatSession, error) {
	const q = `INSERT INTO chat_sessions (id, external_session_id, target_bot_id, platform, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (external_session_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), params.ExternalSessionID, params.TargetBotID, params.Platform, time.Now().UnixNano())
	if err != nil {
		return ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return s.FindSessionByExternalID(ctx, params.ExternalSessionID)
}

func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string) ([]Message, error) {
	const q = `SELECT id, role, content, created_at FROM messages
		WHERE chat_session_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg       Message
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.SessionID = sessionID
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now()
	const q = `INSERT INTO messages (id, chat_session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, msg.ID, sessionID, msg.Role, msg.Content, now.UnixNano()); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.SessionID = sessionID
	msg.CreatedAt = now.UTC()
	return msg, nil
}

func (s *SQLiteStore) ResolveRoute(ctx context.Context, workspaceID, commandName string) (RoutingEntry, error) {
	name := channel.NormalizeCommand(commandName)
	if name == "" {
		return RoutingEntry{}, ErrNotFound
	}
	const q = `SELECT workspace_id, command_name, is_default, target_bot_id FROM routing_entries
		WHERE workspace_id = ? AND command_name = ? AND is_default = 0`
	return s.scanRoute(ctx, q, workspaceID, name)
}

func (s *SQLiteStore) DefaultRoute(ctx context.Context, workspaceID string) (RoutingEntry, error) {
	const q = `SELECT workspace_id, command_name, is_default, target_bot_id FROM routing_entries
		WHERE workspace_id = ? AND is_default = 1`
	return s.scanRoute(ctx, q, workspaceID)
}

func (s *SQLiteStore) scanRoute(ctx context.Context, q string, args ...any) (RoutingEntry, error) {
	var entry RoutingEntry
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&entry.WorkspaceID, &entry.CommandName, &entry.IsDefault, &entry.TargetBotID)
	if errors.Is(err, sql.ErrNoRows) {
		return RoutingEntry{}, ErrNotFound
	}
	if err != nil {
		return RoutingEntry{}, fmt.Errorf("resolve route: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) Commands(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT command_name FROM routing_entries
		WHERE workspace_id = ? AND is_default = 0 ORDER BY command_name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) GetToken(ctx context.Context, workspaceID string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT bot_token FROM workspaces WHERE id = ?`, workspaceID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

func (s *SQLiteStore) UpsertWorkspace(ctx context.Context, ws Workspace) error {
	now := time.Now().UnixNano()
	const q = `INSERT INTO workspaces (id, platform, bot_token, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET platform = excluded.platform,
			bot_token = excluded.bot_token, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, ws.ID, strings.ToLower(ws.Platform), ws.BotToken, now, now); err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceRoutes(ctx context.Context, workspaceID string, entries []RoutingEntry) error {
	if err := validateRoutes(entries); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routing_entries WHERE workspace_id = ?`, workspaceID); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `INSERT INTO routing_entries (workspace_id, command_name, is_default, target_bot_id)
			VALUES (?, ?, ?, ?)`, workspaceID, routeCommand(e), e.IsDefault, e.TargetBotID)
		if err != nil {
			return fmt.Errorf("insert route: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
