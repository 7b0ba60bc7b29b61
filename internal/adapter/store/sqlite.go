package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"qna-agent/internal/domain"
)

// SQLiteStore implements domain.ChatStore and domain.MessageStore using a
// single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration. The parent directory is created if missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat db: %w", err)
	}
	// Single connection: SQLite allows one writer, and the foreign_keys
	// pragma below is per-connection.
	db.SetMaxOpenConns(1)
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// Cascade deletes depend on enforcement being on.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate chat db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			chat_id      TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL DEFAULT '',
			tool_calls   TEXT NOT NULL DEFAULT '[]',
			tool_call_id TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_created
			ON messages(chat_id, created_at, id);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- ChatStore ---

func (s *SQLiteStore) CreateChat(ctx context.Context, chat *domain.Chat) error {
	metaJSON, err := json.Marshal(chat.Metadata)
	if err != nil {
		return fmt.Errorf("marshal chat metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO chats (id, title, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		chat.ID, chat.Title, string(metaJSON),
		chat.CreatedAt.UTC().Format(time.RFC3339Nano),
		chat.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, metadata, created_at, updated_at FROM chats WHERE id = ?", id)
	chat, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewDomainError("ChatStore.Get", domain.ErrChatNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return chat, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, offset, limit int) ([]*domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, metadata, created_at, updated_at FROM chats ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*domain.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) CountChats(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chats").Scan(&n); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateChat(ctx context.Context, chat *domain.Chat) error {
	metaJSON, err := json.Marshal(chat.Metadata)
	if err != nil {
		return fmt.Errorf("marshal chat metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET title = ?, metadata = ?, updated_at = ? WHERE id = ?",
		chat.Title, string(metaJSON),
		chat.UpdatedAt.UTC().Format(time.RFC3339Nano), chat.ID)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	if affected == 0 {
		return domain.NewDomainError("ChatStore.Update", domain.ErrChatNotFound, chat.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if affected == 0 {
		return domain.NewDomainError("ChatStore.Delete", domain.ErrChatNotFound, id)
	}
	return nil
}

// --- MessageStore ---

func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	callsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	if msg.ToolCalls == nil {
		callsJSON = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, content, tool_calls, tool_call_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Content, string(callsJSON), msg.ToolCallID,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent limit messages of a chat in
// chronological order. A non-positive limit returns all messages.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	query := `SELECT id, chat_id, role, content, tool_calls, tool_call_id, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at, id`
	args := []any{chatID}
	if limit > 0 {
		// Window the tail, then flip back to chronological order.
		query = `SELECT id, chat_id, role, content, tool_calls, tool_call_id, created_at FROM (
			SELECT id, chat_id, role, content, tool_calls, tool_call_id, created_at
			FROM messages WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, chatID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*domain.Chat, error) {
	var chat domain.Chat
	var metaJSON, createdAt, updatedAt string
	if err := row.Scan(&chat.ID, &chat.Title, &metaJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &chat.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal chat metadata: %w", err)
	}
	var err error
	if chat.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if chat.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &chat, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var callsJSON, createdAt string
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &callsJSON, &msg.ToolCallID, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(callsJSON), &msg.ToolCalls); err != nil {
		return nil, fmt.Errorf("unmarshal tool calls: %w", err)
	}
	var err error
	if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &msg, nil
}
