package intake

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/stage"
)

type fakeStaging struct {
	saved   int
	saveErr error
}

func (f *fakeStaging) Save(data []byte, originalName string) (string, string, error) {
	if f.saveErr != nil {
		return "", "", f.saveErr
	}
	f.saved++
	return "1700000000000-123456789-" + originalName, "/uploads/1700000000000-123456789-" + originalName, nil
}

type fakeExtractor struct {
	calls   int
	failFor int // fail this many leading calls
}

func (f *fakeExtractor) ProcessDocument(_ context.Context, _ stage.ProcessRequest) (stage.ProcessResult, error) {
	f.calls++
	if f.calls <= f.failFor {
		return stage.ProcessResult{}, fmt.Errorf("extraction stage unavailable")
	}
	return stage.ProcessResult{ChunkCount: 3, ProcessedAt: time.Now()}, nil
}

type notification struct {
	conversationID string
	filename       string
	success        bool
	processingErr  string
}

type fakeNotifier struct {
	notifications []notification
	err           error
}

func (f *fakeNotifier) NotifyProcessing(conversationID, filename string, success bool, processingErr string) error {
	f.notifications = append(f.notifications, notification{conversationID, filename, success, processingErr})
	return f.err
}

func newTestPipeline(staging *fakeStaging, extractor *fakeExtractor, notifier *fakeNotifier, retries int) *Pipeline {
	return NewPipeline(staging, extractor, notifier, 10*1024*1024, time.Minute, retries, zap.NewNop())
}

func pdfUpload(conversationID string) Upload {
	return Upload{
		Data:           []byte("%PDF-1.4 fake resume"),
		Filename:       "resume.pdf",
		ContentType:    "application/pdf",
		ConversationID: conversationID,
	}
}

func TestProcessSuccess(t *testing.T) {
	staging := &fakeStaging{}
	extractor := &fakeExtractor{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(staging, extractor, notifier, 0)

	info, err := p.Process(context.Background(), pdfUpload("conv-1"))
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, info.Status)
	assert.Equal(t, "conv-1", info.SessionID, "conversation id doubles as session id")
	assert.Equal(t, "resume.pdf", info.OriginalName)
	assert.Equal(t, "/uploads/"+info.Filename, info.URL)
	assert.NotNil(t, info.ProcessedAt)
	assert.Empty(t, info.Error)

	require.Len(t, notifier.notifications, 1)
	assert.True(t, notifier.notifications[0].success)
	assert.Equal(t, "conv-1", notifier.notifications[0].conversationID)
}

func TestProcessWithoutConversationGetsFreshSession(t *testing.T) {
	p := newTestPipeline(&fakeStaging{}, &fakeExtractor{}, &fakeNotifier{}, 0)

	info, err := p.Process(context.Background(), pdfUpload(""))
	require.NoError(t, err)
	assert.NotEmpty(t, info.SessionID)
}

func TestProcessValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Upload)
		wantErr error
	}{
		{"empty payload", func(u *Upload) { u.Data = nil }, ErrNoFile},
		{"missing filename", func(u *Upload) { u.Filename = "" }, ErrNoFile},
		{"wrong media type", func(u *Upload) { u.ContentType = "text/plain" }, ErrUnsupportedMediaType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			staging := &fakeStaging{}
			extractor := &fakeExtractor{}
			p := newTestPipeline(staging, extractor, &fakeNotifier{}, 0)

			up := pdfUpload("conv-1")
			tc.mutate(&up)

			_, err := p.Process(context.Background(), up)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, staging.saved, "nothing may be staged before validation passes")
			assert.Zero(t, extractor.calls, "no external call may happen before validation passes")
		})
	}
}

func TestProcessRejectsOversizedPayload(t *testing.T) {
	staging := &fakeStaging{}
	p := NewPipeline(staging, &fakeExtractor{}, &fakeNotifier{}, 8, time.Minute, 0, zap.NewNop())

	_, err := p.Process(context.Background(), pdfUpload("conv-1"))
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, staging.saved)
}

func TestProcessExtractionFailureStillSucceeds(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newTestPipeline(&fakeStaging{}, &fakeExtractor{failFor: 100}, notifier, 0)

	info, err := p.Process(context.Background(), pdfUpload("conv-1"))
	require.NoError(t, err, "processing failure is reported in the payload, not as an error")

	assert.Equal(t, StatusProcessingFailed, info.Status)
	assert.Contains(t, info.Error, "extraction stage unavailable")
	assert.Nil(t, info.ProcessedAt)

	require.Len(t, notifier.notifications, 1)
	assert.False(t, notifier.notifications[0].success)
	assert.Contains(t, notifier.notifications[0].processingErr, "extraction stage unavailable")
}

func TestProcessRetries(t *testing.T) {
	extractor := &fakeExtractor{failFor: 2}
	p := newTestPipeline(&fakeStaging{}, extractor, &fakeNotifier{}, 2)

	info, err := p.Process(context.Background(), pdfUpload("conv-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, info.Status)
	assert.Equal(t, 3, extractor.calls)
}

func TestNotifierFailureIsSwallowed(t *testing.T) {
	notifier := &fakeNotifier{err: fmt.Errorf("conversation disappeared")}
	p := newTestPipeline(&fakeStaging{}, &fakeExtractor{}, notifier, 0)

	info, err := p.Process(context.Background(), pdfUpload("conv-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, info.Status)
}

func TestUnboundUploadDoesNotNotify(t *testing.T) {
	notifier := &fakeNotifier{}
	p := newTestPipeline(&fakeStaging{}, &fakeExtractor{}, notifier, 0)

	_, err := p.Process(context.Background(), pdfUpload(""))
	require.NoError(t, err)
	assert.Empty(t, notifier.notifications)
}
