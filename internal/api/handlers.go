package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/chat"
	"github.com/resumechat/backend/internal/intake"
	"github.com/resumechat/backend/internal/stage"
	"github.com/resumechat/backend/internal/storage"
	"github.com/resumechat/backend/internal/store"
)

type APIHandler struct {
	chatService *chat.Service
	pipeline    *intake.Pipeline
	searcher    stage.Searcher
	browser     stage.SessionBrowser
	cleaner     stage.Cleaner
	uploads     *storage.Local
	logger      *zap.Logger

	maxUploadBytes int64
	stageTimeout   time.Duration
}

func NewAPIHandler(
	chatService *chat.Service,
	pipeline *intake.Pipeline,
	searcher stage.Searcher,
	browser stage.SessionBrowser,
	cleaner stage.Cleaner,
	uploads *storage.Local,
	maxUploadBytes int64,
	stageTimeout time.Duration,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		chatService:    chatService,
		pipeline:       pipeline,
		searcher:       searcher,
		browser:        browser,
		cleaner:        cleaner,
		uploads:        uploads,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		stageTimeout:   stageTimeout,
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.CreateConversation()
	if err != nil {
		h.logger.Error("failed to create conversation", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}
	h.writeJSON(w, http.StatusCreated, conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chatService.ListConversations()
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	h.writeJSON(w, http.StatusOK, conversations)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.chatService.GetConversation(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to get conversation", zap.String("conversation_id", conversationID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.chatService.DeleteConversation(r.Context(), conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to delete conversation", zap.String("conversation_id", conversationID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	messages, err := h.chatService.ListMessages(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to list messages", zap.String("conversation_id", conversationID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	h.writeJSON(w, http.StatusOK, messages)
}

type PostMessageRequest struct {
	Content     string             `json:"content"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		h.writeError(w, http.StatusBadRequest, "Message content cannot be empty")
		return
	}

	// Generation degradation is handled inside PostMessage; an error here is
	// a missing conversation or a store fault, never a bad reply.
	reply, err := h.chatService.PostMessage(r.Context(), conversationID, req.Content, req.Attachments)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to post message", zap.String("conversation_id", conversationID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to post message")
		return
	}
	h.writeJSON(w, http.StatusCreated, reply)
}

type PostSystemMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

func (h *APIHandler) PostSystemMessageHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req PostSystemMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		h.writeError(w, http.StatusBadRequest, "Message content cannot be empty")
		return
	}
	switch req.Type {
	case "", store.SystemInfo, store.SystemSuccess, store.SystemError:
	default:
		h.writeError(w, http.StatusBadRequest, "Invalid system message type")
		return
	}

	msg, err := h.chatService.AppendSystemMessage(conversationID, req.Content, req.Type)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Error("failed to post system message", zap.String("conversation_id", conversationID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to post system message")
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	conversationID := r.FormValue("conversationId")
	if conversationID == "" {
		conversationID = r.FormValue("sessionId")
	}

	info, err := h.pipeline.Process(r.Context(), intake.Upload{
		Data:           data,
		Filename:       header.Filename,
		ContentType:    header.Header.Get("Content-Type"),
		ConversationID: conversationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrNoFile),
			errors.Is(err, intake.ErrUnsupportedMediaType),
			errors.Is(err, intake.ErrFileTooLarge):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Upload failed")
		}
		return
	}
	// Processing failure is carried in the payload's status/error fields;
	// the transport-level response still succeeds.
	h.writeJSON(w, http.StatusOK, info)
}

type SearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId,omitempty"`
	K         int    `json:"k,omitempty"`
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		h.writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.stageTimeout)
	defer cancel()

	results, err := h.searcher.Search(ctx, req.Query, req.K, req.SessionID)
	if err != nil {
		h.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"query":     req.Query,
		"sessionId": req.SessionID,
	})
}

func (h *APIHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.stageTimeout)
	defer cancel()

	listing, err := h.browser.ListSessions(ctx)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ctx, cancel := context.WithTimeout(r.Context(), h.stageTimeout)
	defer cancel()

	dump, err := h.browser.SessionData(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to get session data", zap.String("session_id", sessionID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to retrieve session data")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"data":      dump,
		"message":   "To delete this session, use DELETE method instead of GET",
	})
}

// DeleteSessionHandler is the standalone cleanup surface. Unlike the
// conversation-deletion path, cleanup IS the primary operation here, so its
// failure is a server error.
func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ctx, cancel := context.WithTimeout(r.Context(), h.stageTimeout)
	defer cancel()

	result, err := h.cleaner.CleanupSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("session cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Session cleanup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.uploads.Resolve(filename)
	if err != nil || !h.uploads.Exists(filename) {
		h.writeError(w, http.StatusNotFound, "File not found")
		return
	}
	http.ServeFile(w, r, path)
}
