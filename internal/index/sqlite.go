// Package index stores embedded resume chunks partitioned by session id. It
// is the search-side artifact of document intake: extraction writes here,
// search reads here, and session cleanup deletes a whole partition.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

type Chunk struct {
	ID        int64
	SessionID string
	Filename  string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteIndex(dataSourceName string, logger *zap.Logger) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping index database: %w", err)
	}

	idx := &SQLiteIndex{db: db, logger: logger}
	if err = idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return idx, nil
}

func (i *SQLiteIndex) Close() error {
	return i.db.Close()
}

func (i *SQLiteIndex) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS session_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        filename TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT, -- JSON-encoded []float32
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_session_chunks_session ON session_chunks (session_id);
    `
	_, err := i.db.Exec(schema)
	return err
}

// Add writes one document's chunks into the session partition in a single
// transaction.
func (i *SQLiteIndex) Add(ctx context.Context, sessionID, filename string, chunks []Chunk) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO session_chunks (session_id, filename, content, embedding_json, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, filename, chunk.Content, string(embeddingJSON), now); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

// BySession returns all chunks in a session partition; an empty sessionID
// returns every chunk.
func (i *SQLiteIndex) BySession(ctx context.Context, sessionID string) ([]Chunk, error) {
	query := "SELECT id, session_id, filename, content, embedding_json, created_at FROM session_chunks"
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id ASC"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var embeddingJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.SessionID, &chunk.Filename, &chunk.Content, &embeddingJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				i.logger.Warn("failed to unmarshal chunk embedding, skipping it in similarity ranking",
					zap.Int64("chunk_id", chunk.ID), zap.Error(err))
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Filenames lists the distinct original filenames indexed for a session.
func (i *SQLiteIndex) Filenames(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		"SELECT DISTINCT filename FROM session_chunks WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session filenames: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename row: %w", err)
		}
		filenames = append(filenames, name)
	}
	return filenames, rows.Err()
}

// DeleteSession removes a session partition and reports how many chunks went
// with it.
func (i *SQLiteIndex) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	res, err := i.db.ExecContext(ctx, "DELETE FROM session_chunks WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session chunks: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

type SessionFile struct {
	Filename   string
	CreatedAt  time.Time
	ChunkCount int
}

// Sessions summarizes every partition: which files are indexed under which
// session and how many chunks each contributed.
func (i *SQLiteIndex) Sessions(ctx context.Context) (map[string][]SessionFile, int, error) {
	rows, err := i.db.QueryContext(ctx, `
        SELECT session_id, filename, MIN(created_at), COUNT(*)
        FROM session_chunks
        GROUP BY session_id, filename
        ORDER BY MIN(created_at) DESC`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query session summary: %w", err)
	}
	defer rows.Close()

	sessions := make(map[string][]SessionFile)
	total := 0
	for rows.Next() {
		var sessionID string
		var file SessionFile
		if err := rows.Scan(&sessionID, &file.Filename, &file.CreatedAt, &file.ChunkCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session summary row: %w", err)
		}
		sessions[sessionID] = append(sessions[sessionID], file)
		total += file.ChunkCount
	}
	return sessions, total, rows.Err()
}
