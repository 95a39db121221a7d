// Package stage defines the contracts between the conversation core and the
// external processing stages (extraction, generation, search, cleanup). The
// core depends only on these interfaces, so a stage can live in-process, in a
// subprocess, or behind an RPC boundary without the core noticing.
package stage

import (
	"context"
	"time"
)

// Turn is one prior exchange entry handed to the generation stage.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AttachmentInfo is the bookkeeping view of an attachment: the core never
// interprets attachment content, only its type and name.
type AttachmentInfo struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type ProcessRequest struct {
	Path      string // staged file path
	Filename  string // original filename
	SessionID string
}

type ProcessResult struct {
	ChunkCount  int       `json:"chunkCount"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Extractor turns a staged document into indexed, session-partitioned
// content.
type Extractor interface {
	ProcessDocument(ctx context.Context, req ProcessRequest) (ProcessResult, error)
}

type GenerationRequest struct {
	Message     string
	UserID      string
	SessionID   string
	Attachments []AttachmentInfo
	History     []Turn
}

// GenerationResult mirrors the generation stage's wire shape: a structured
// failure sets Success false and Error; a transport failure is a returned
// error instead.
type GenerationResult struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Generator interface {
	GenerateReply(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

type SearchHit struct {
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	Filename  string  `json:"filename,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
}

// Searcher ranks indexed content for a query. An empty sessionID searches
// across all sessions.
type Searcher interface {
	Search(ctx context.Context, query string, k int, sessionID string) ([]SearchHit, error)
}

type CleanupResult struct {
	SessionID    string   `json:"session_id"`
	IndexDeleted int      `json:"index_deleted"`
	FilesDeleted []string `json:"files_deleted"`
	Success      bool     `json:"success"`
	Errors       []string `json:"errors"`
}

// Cleaner removes everything a session left behind: indexed chunks and
// staged files.
type Cleaner interface {
	CleanupSession(ctx context.Context, sessionID string) (CleanupResult, error)
}

type FileEntry struct {
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
}

type SessionListing struct {
	TotalSessions  int                    `json:"total_sessions"`
	TotalDocuments int                    `json:"total_documents"`
	Sessions       map[string][]FileEntry `json:"sessions"`
}

type SessionChunk struct {
	Content   string    `json:"content"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionDump struct {
	SessionID   string         `json:"session_id"`
	Chunks      []SessionChunk `json:"chunks"`
	TotalChunks int            `json:"total_chunks"`
}

// SessionBrowser exposes the index's session inventory for inspection and
// manual cleanup.
type SessionBrowser interface {
	ListSessions(ctx context.Context) (SessionListing, error)
	SessionData(ctx context.Context, sessionID string) (SessionDump, error)
}
