// Package rag is the in-process implementation of the extraction, search,
// generation, and cleanup stages: it turns staged PDFs into an embedded,
// session-partitioned index and answers chat queries grounded in it.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/index"
	"github.com/resumechat/backend/internal/stage"
)

// LLM is the slice of the Gemini wrapper this service needs.
type LLM interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, history []stage.Turn, prompt string) (string, error)
}

// Index is the chunk store the service reads and writes.
type Index interface {
	Add(ctx context.Context, sessionID, filename string, chunks []index.Chunk) error
	BySession(ctx context.Context, sessionID string) ([]index.Chunk, error)
	Filenames(ctx context.Context, sessionID string) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	Sessions(ctx context.Context) (map[string][]index.SessionFile, int, error)
}

// Uploads is the staged-file store cleanup sweeps.
type Uploads interface {
	RemoveByOriginalName(originalName string) (string, bool)
}

type Options struct {
	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	SimilarityThreshold float64
}

type Service struct {
	llm     LLM
	index   Index
	uploads Uploads
	opts    Options
	logger  *zap.Logger

	loadDocument documentLoader // swapped in tests
}

func NewService(llm LLM, idx Index, uploads Uploads, opts Options, logger *zap.Logger) *Service {
	return &Service{
		llm:          llm,
		index:        idx,
		uploads:      uploads,
		opts:         opts,
		logger:       logger,
		loadDocument: loadPDF,
	}
}

// ProcessDocument extracts text from a staged PDF, chunks it, embeds every
// chunk, and writes the result into the session partition.
func (s *Service) ProcessDocument(ctx context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.opts.ChunkSize),
		textsplitter.WithChunkOverlap(s.opts.ChunkOverlap),
	)

	pieces, err := s.loadDocument(ctx, req.Path, splitter)
	if err != nil {
		return stage.ProcessResult{}, fmt.Errorf("failed to extract document text: %w", err)
	}
	if len(pieces) == 0 {
		return stage.ProcessResult{}, fmt.Errorf("document %q produced no text content", req.Filename)
	}

	chunks := make([]index.Chunk, 0, len(pieces))
	for _, content := range pieces {
		embedding, err := s.llm.Embed(ctx, content)
		if err != nil {
			return stage.ProcessResult{}, fmt.Errorf("failed to embed document chunk: %w", err)
		}
		chunks = append(chunks, index.Chunk{Content: content, Embedding: embedding})
	}

	if err := s.index.Add(ctx, req.SessionID, req.Filename, chunks); err != nil {
		return stage.ProcessResult{}, fmt.Errorf("failed to index document chunks: %w", err)
	}

	s.logger.Info("document indexed",
		zap.String("session_id", req.SessionID),
		zap.String("filename", req.Filename),
		zap.Int("chunks", len(chunks)))

	return stage.ProcessResult{ChunkCount: len(chunks), ProcessedAt: time.Now()}, nil
}

// Search embeds the query and ranks the session's chunks by cosine
// similarity, keeping at most k hits above the threshold.
func (s *Service) Search(ctx context.Context, query string, k int, sessionID string) ([]stage.SearchHit, error) {
	if k <= 0 {
		k = s.opts.TopK
	}

	queryEmbedding, err := s.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	chunks, err := s.index.BySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	hits := make([]stage.SearchHit, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		score, err := cosineSimilarity(queryEmbedding, chunk.Embedding)
		if err != nil {
			s.logger.Debug("skipping chunk in similarity ranking",
				zap.Int64("chunk_id", chunk.ID), zap.Error(err))
			continue
		}
		if score < s.opts.SimilarityThreshold {
			continue
		}
		hits = append(hits, stage.SearchHit{
			Content:   chunk.Content,
			Score:     score,
			Filename:  chunk.Filename,
			SessionID: chunk.SessionID,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// GenerateReply answers a chat message grounded in the session's indexed
// resume content. A failure to produce text is reported as a structured
// failure, mirroring the stage wire contract.
func (s *Service) GenerateReply(ctx context.Context, req stage.GenerationRequest) (stage.GenerationResult, error) {
	var contextText string
	if req.SessionID != "" {
		hits, err := s.Search(ctx, req.Message, s.opts.TopK, req.SessionID)
		if err != nil {
			// Retrieval trouble should not kill the reply; answer from
			// history alone.
			s.logger.Warn("context retrieval failed, generating without it",
				zap.String("session_id", req.SessionID), zap.Error(err))
		} else {
			var b strings.Builder
			for _, hit := range hits {
				b.WriteString(hit.Content)
				b.WriteString("\n\n")
			}
			contextText = strings.TrimSpace(b.String())
		}
	}

	prompt := s.buildPrompt(req, contextText)

	response, err := s.llm.Complete(ctx, req.History, prompt)
	if err != nil {
		return stage.GenerationResult{Success: false, Error: err.Error()}, nil
	}
	return stage.GenerationResult{Success: true, Response: response}, nil
}

func (s *Service) buildPrompt(req stage.GenerationRequest, contextText string) string {
	var b strings.Builder
	if contextText != "" {
		fmt.Fprintf(&b, "Relevant excerpts from the uploaded resume:\n\n--- CONTEXT START ---\n%s\n--- CONTEXT END ---\n\n", contextText)
	} else {
		b.WriteString("No resume excerpts matched this question; say so if the answer depends on the resume.\n\n")
	}
	if n := len(req.Attachments); n > 0 {
		fmt.Fprintf(&b, "The user attached %d item(s) to this message.\n\n", n)
	}
	fmt.Fprintf(&b, "Question: %s", req.Message)
	return b.String()
}

// CleanupSession removes the index partition and the staged files whose
// names end with the session's original filenames. Partial failures are
// collected rather than aborting the sweep.
func (s *Service) CleanupSession(ctx context.Context, sessionID string) (stage.CleanupResult, error) {
	result := stage.CleanupResult{
		SessionID:    sessionID,
		FilesDeleted: []string{},
		Errors:       []string{},
		Success:      true,
	}

	// Filenames come from the index, so files are swept before the
	// partition is dropped.
	filenames, err := s.index.Filenames(ctx, sessionID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	for _, filename := range filenames {
		if removed, ok := s.uploads.RemoveByOriginalName(filename); ok {
			result.FilesDeleted = append(result.FilesDeleted, removed)
		}
	}

	deleted, err := s.index.DeleteSession(ctx, sessionID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.IndexDeleted = deleted

	if len(result.Errors) > 0 {
		result.Success = false
		return result, fmt.Errorf("session cleanup incomplete: %s", strings.Join(result.Errors, "; "))
	}

	s.logger.Info("session cleaned up",
		zap.String("session_id", sessionID),
		zap.Int("index_deleted", result.IndexDeleted),
		zap.Int("files_deleted", len(result.FilesDeleted)))
	return result, nil
}

// ListSessions summarizes what the index currently holds.
func (s *Service) ListSessions(ctx context.Context) (stage.SessionListing, error) {
	sessions, total, err := s.index.Sessions(ctx)
	if err != nil {
		return stage.SessionListing{}, err
	}

	listing := stage.SessionListing{
		TotalSessions:  len(sessions),
		TotalDocuments: total,
		Sessions:       make(map[string][]stage.FileEntry, len(sessions)),
	}
	for sessionID, files := range sessions {
		entries := make([]stage.FileEntry, 0, len(files))
		for _, f := range files {
			entries = append(entries, stage.FileEntry{
				Filename:   f.Filename,
				CreatedAt:  f.CreatedAt,
				ChunkCount: f.ChunkCount,
			})
		}
		listing.Sessions[sessionID] = entries
	}
	return listing, nil
}

// SessionData dumps a session's indexed chunks for inspection.
func (s *Service) SessionData(ctx context.Context, sessionID string) (stage.SessionDump, error) {
	chunks, err := s.index.BySession(ctx, sessionID)
	if err != nil {
		return stage.SessionDump{}, err
	}

	dump := stage.SessionDump{SessionID: sessionID, Chunks: make([]stage.SessionChunk, 0, len(chunks))}
	for _, chunk := range chunks {
		dump.Chunks = append(dump.Chunks, stage.SessionChunk{
			Content:   chunk.Content,
			Filename:  chunk.Filename,
			CreatedAt: chunk.CreatedAt,
		})
	}
	dump.TotalChunks = len(dump.Chunks)
	return dump, nil
}
