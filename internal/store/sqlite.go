package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is the durable backend behind the same Store interface. The
// in-memory backend is the reference behavior; this one exists so state can
// outlive a restart without touching any caller.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers; concurrent appends would
	// otherwise hit SQLITE_BUSY on separate pooled connections.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT NOT NULL,
        titled BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        attachments_json TEXT,
        type TEXT,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateConversation() (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		"INSERT INTO conversations (id, title, titled, created_at, updated_at) VALUES (?, ?, FALSE, ?, ?)",
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, updated_at FROM conversations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]Conversation, 0)
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) GetConversation(id string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(
		"SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) DeleteConversation(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	// Cascade inside the same transaction so no reader observes the
	// conversation gone but its messages present, or vice versa.
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListMessages(conversationID string) ([]Message, error) {
	if _, err := s.GetConversation(conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, attachments_json, type, timestamp
         FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, rowid ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var attachmentsJSON, msgType sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &attachmentsJSON, &msgType, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attachments for message %s: %w", msg.ID, err)
			}
		}
		if msgType.Valid {
			msg.Type = msgType.String
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) AppendMessage(conversationID string, nm NewMessage) (*Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	var titled bool
	err = tx.QueryRow("SELECT titled FROM conversations WHERE id = ?", conversationID).Scan(&titled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation for append: %w", err)
	}

	ts := time.Now()
	var last sql.NullTime
	if err := tx.QueryRow(
		"SELECT MAX(timestamp) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last message timestamp: %w", err)
	}
	if last.Valid && ts.Before(last.Time) {
		ts = last.Time
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           nm.Role,
		Content:        nm.Content,
		Attachments:    nm.Attachments,
		Type:           nm.Type,
		Timestamp:      ts,
	}

	var attachmentsJSON sql.NullString
	if len(nm.Attachments) > 0 {
		raw, err := json.Marshal(nm.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachmentsJSON = sql.NullString{String: string(raw), Valid: true}
	}
	msgType := sql.NullString{String: nm.Type, Valid: nm.Type != ""}

	_, err = tx.Exec(
		"INSERT INTO messages (id, conversation_id, role, content, attachments_json, type, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Content, attachmentsJSON, msgType, msg.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	if nm.Role == RoleUser && !titled {
		_, err = tx.Exec(
			"UPDATE conversations SET title = ?, titled = TRUE, updated_at = ? WHERE id = ?",
			TruncateTitle(nm.Content), ts, conversationID,
		)
	} else {
		_, err = tx.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?", ts, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation on append: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit append: %w", err)
	}
	return &msg, nil
}
