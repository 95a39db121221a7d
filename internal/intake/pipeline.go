// Package intake receives an uploaded resume, stages it, runs it through the
// extraction stage, and reports the outcome into the owning conversation.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/stage"
)

const acceptedMediaType = "application/pdf"

// Intake status values, visible to the client in the upload response.
const (
	StatusProcessed        = "processed"
	StatusProcessingFailed = "processing_failed"
)

var (
	ErrNoFile               = errors.New("no file uploaded")
	ErrUnsupportedMediaType = errors.New("only PDF files are allowed")
	ErrFileTooLarge         = errors.New("uploaded file exceeds the size limit")
)

// Staging is the storage collaborator slice the pipeline needs.
type Staging interface {
	Save(data []byte, originalName string) (storedName string, path string, err error)
}

// Notifier posts a system message into a conversation. It returns
// store.ErrNotFound-wrapped errors when the conversation is gone; the
// pipeline swallows those.
type Notifier interface {
	NotifyProcessing(conversationID, filename string, success bool, processingErr string) error
}

type Upload struct {
	Data           []byte
	Filename       string
	ContentType    string
	ConversationID string // empty for uploads not bound to a conversation
}

// FileInfo is the upload response payload. Status and Error communicate
// processing failure; the transport-level response still succeeds.
type FileInfo struct {
	Filename     string     `json:"filename"` // stored name
	OriginalName string     `json:"originalName"`
	Size         int64      `json:"size"`
	MimeType     string     `json:"mimetype"`
	SessionID    string     `json:"sessionId"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type Pipeline struct {
	staging   Staging
	extractor stage.Extractor
	notifier  Notifier
	logger    *zap.Logger

	maxBytes     int64
	stageTimeout time.Duration
	retries      int
}

func NewPipeline(staging Staging, extractor stage.Extractor, notifier Notifier, maxBytes int64, stageTimeout time.Duration, retries int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		staging:      staging,
		extractor:    extractor,
		notifier:     notifier,
		logger:       logger,
		maxBytes:     maxBytes,
		stageTimeout: stageTimeout,
		retries:      retries,
	}
}

// Process validates, stages, and indexes one uploaded document. Validation
// failures return an error before anything is written; extraction failures
// are reported in the returned FileInfo, never as an error.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*FileInfo, error) {
	if len(up.Data) == 0 || up.Filename == "" {
		return nil, ErrNoFile
	}
	if up.ContentType != acceptedMediaType {
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedMediaType, up.ContentType)
	}
	if p.maxBytes > 0 && int64(len(up.Data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(up.Data))
	}

	// The conversation id is the session id; an unbound upload gets a fresh
	// session of its own.
	sessionID := up.ConversationID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	storedName, path, err := p.staging.Save(up.Data, up.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	info := &FileInfo{
		Filename:     storedName,
		OriginalName: up.Filename,
		Size:         int64(len(up.Data)),
		MimeType:     up.ContentType,
		SessionID:    sessionID,
		URL:          "/uploads/" + storedName,
	}

	p.logger.Info("processing resume",
		zap.String("filename", up.Filename),
		zap.String("session_id", sessionID))

	result, err := p.extract(ctx, stage.ProcessRequest{
		Path:      path,
		Filename:  up.Filename,
		SessionID: sessionID,
	})
	if err != nil {
		// The staged file is kept for inspection and retry.
		p.logger.Error("resume processing failed",
			zap.String("filename", up.Filename),
			zap.String("session_id", sessionID),
			zap.Error(err))
		info.Status = StatusProcessingFailed
		info.Error = err.Error()
		p.notify(up.ConversationID, up.Filename, false, err.Error())
		return info, nil
	}

	info.Status = StatusProcessed
	info.ProcessedAt = &result.ProcessedAt
	p.logger.Info("resume processing completed",
		zap.String("filename", up.Filename),
		zap.String("session_id", sessionID),
		zap.Int("chunks", result.ChunkCount))
	p.notify(up.ConversationID, up.Filename, true, "")
	return info, nil
}

func (p *Pipeline) extract(ctx context.Context, req stage.ProcessRequest) (stage.ProcessResult, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		result, err := p.extractor.ProcessDocument(callCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < p.retries {
			p.logger.Warn("extraction attempt failed, retrying",
				zap.Int("attempt", attempt+1), zap.Error(err))
		}
	}
	return stage.ProcessResult{}, lastErr
}

// notify posts the outcome into the owning conversation. Uploads without a
// conversation stay silent, and a notification failure never fails the
// upload.
func (p *Pipeline) notify(conversationID, filename string, success bool, processingErr string) {
	if conversationID == "" {
		return
	}
	if err := p.notifier.NotifyProcessing(conversationID, filename, success, processingErr); err != nil {
		p.logger.Warn("failed to notify conversation of processing outcome",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}
