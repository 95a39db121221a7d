// Package chat orchestrates conversation state around the external stages:
// it appends user messages, drives response generation, and coordinates
// session teardown on conversation deletion.
package chat

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/stage"
	"github.com/resumechat/backend/internal/store"
)

// FallbackReply is the fixed user-visible text substituted for any
// generation failure. Raw stage errors never reach the user.
const FallbackReply = "I'm sorry, I encountered an error while processing your request."

// historyLimit caps how many prior turns are handed to the generation stage.
const historyLimit = 5

type Service struct {
	store     store.Store
	generator stage.Generator
	cleaner   stage.Cleaner
	logger    *zap.Logger

	stageTimeout time.Duration
}

func NewService(st store.Store, generator stage.Generator, cleaner stage.Cleaner, stageTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:        st,
		generator:    generator,
		cleaner:      cleaner,
		logger:       logger,
		stageTimeout: stageTimeout,
	}
}

func (s *Service) CreateConversation() (*store.Conversation, error) {
	return s.store.CreateConversation()
}

func (s *Service) ListConversations() ([]store.Conversation, error) {
	return s.store.ListConversations()
}

func (s *Service) GetConversation(id string) (*store.Conversation, error) {
	return s.store.GetConversation(id)
}

func (s *Service) ListMessages(conversationID string) ([]store.Message, error) {
	return s.store.ListMessages(conversationID)
}

// PostMessage appends the user message, asks the generation stage for a
// grounded reply, and appends the result as an assistant message. The user
// message is stored before generation starts so it survives any generation
// outcome; generation failure degrades to FallbackReply rather than an
// error.
func (s *Service) PostMessage(ctx context.Context, conversationID, content string, attachments []store.Attachment) (*store.Message, error) {
	history, err := s.recentHistory(conversationID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.store.AppendMessage(conversationID, store.NewMessage{
		Role:        store.RoleUser,
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		return nil, err
	}

	attachmentInfos := make([]stage.AttachmentInfo, 0, len(attachments))
	for _, a := range attachments {
		attachmentInfos = append(attachmentInfos, stage.AttachmentInfo{Type: a.Type, Name: a.Name})
	}

	// The stage call runs outside any store lock and is bounded; a slow
	// generation backend must not block other conversations.
	callCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	replyText := FallbackReply
	result, err := s.generator.GenerateReply(callCtx, stage.GenerationRequest{
		Message:     content,
		UserID:      "user",
		SessionID:   conversationID,
		Attachments: attachmentInfos,
		History:     history,
	})
	switch {
	case err != nil:
		s.logger.Error("generation stage unreachable",
			zap.String("conversation_id", conversationID), zap.Error(err))
	case !result.Success:
		s.logger.Error("generation stage reported failure",
			zap.String("conversation_id", conversationID), zap.String("stage_error", result.Error))
	default:
		replyText = result.Response
	}

	assistantMsg, err := s.store.AppendMessage(conversationID, store.NewMessage{
		Role:    store.RoleAssistant,
		Content: replyText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message after %s: %w", userMsg.ID, err)
	}
	return assistantMsg, nil
}

// AppendSystemMessage records a pipeline-visible event in the conversation.
func (s *Service) AppendSystemMessage(conversationID, content, msgType string) (*store.Message, error) {
	if msgType == "" {
		msgType = store.SystemInfo
	}
	return s.store.AppendMessage(conversationID, store.NewMessage{
		Role:    store.RoleSystem,
		Content: content,
		Type:    msgType,
	})
}

// NotifyProcessing is the intake pipeline's in-process callback: it turns an
// upload outcome into a system message in the owning conversation.
func (s *Service) NotifyProcessing(conversationID, filename string, success bool, processingErr string) error {
	var content, msgType string
	if success {
		content = fmt.Sprintf("✅ **Resume processed successfully!**\n\nI've analyzed %q and extracted the content. You can now ask me questions about the resume.", filename)
		msgType = store.SystemSuccess
	} else {
		content = fmt.Sprintf("❌ **Resume processing failed**\n\nError processing %q: %s. Please try uploading again.", filename, processingErr)
		msgType = store.SystemError
	}
	_, err := s.AppendSystemMessage(conversationID, content, msgType)
	return err
}

// DeleteConversation removes the conversation and its messages, then makes a
// best-effort sweep of the session's external artifacts. Cleanup failure is
// logged and swallowed: the user-facing contract is the local deletion.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.store.DeleteConversation(conversationID); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()

	result, err := s.cleaner.CleanupSession(callCtx, conversationID)
	if err != nil {
		s.logger.Warn("session cleanup failed after conversation deletion",
			zap.String("session_id", conversationID), zap.Error(err))
		return nil
	}

	s.logger.Info("session cleanup completed",
		zap.String("session_id", conversationID),
		zap.Int("index_deleted", result.IndexDeleted),
		zap.Int("files_deleted", len(result.FilesDeleted)))
	return nil
}

// recentHistory returns the last few user/assistant turns; system messages
// are bookkeeping, not dialogue, and are excluded.
func (s *Service) recentHistory(conversationID string) ([]stage.Turn, error) {
	msgs, err := s.store.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}

	turns := make([]stage.Turn, 0, historyLimit)
	for i := len(msgs) - 1; i >= 0 && len(turns) < historyLimit; i-- {
		if msgs[i].Role == store.RoleSystem {
			continue
		}
		turns = append(turns, stage.Turn{Role: msgs[i].Role, Content: msgs[i].Content})
	}
	// Oldest first.
	for l, r := 0, len(turns)-1; l < r; l, r = l+1, r-1 {
		turns[l], turns[r] = turns[r], turns[l]
	}
	return turns, nil
}
