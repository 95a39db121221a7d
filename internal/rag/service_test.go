package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/resumechat/backend/internal/index"
	"github.com/resumechat/backend/internal/stage"
)

type fakeLLM struct {
	embeddings  map[string][]float32
	embedErr    error
	completion  string
	completeErr error
}

func (f *fakeLLM) Embed(_ context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if v, ok := f.embeddings[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeLLM) Complete(_ context.Context, _ []stage.Turn, _ string) (string, error) {
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completion, nil
}

type fakeUploads struct {
	removed []string
}

func (f *fakeUploads) RemoveByOriginalName(name string) (string, bool) {
	f.removed = append(f.removed, name)
	return "1234-5678-" + name, true
}

func newTestService(t *testing.T, llm *fakeLLM) (*Service, *index.SQLiteIndex, *fakeUploads) {
	t.Helper()
	idx, err := index.NewSQLiteIndex(filepath.Join(t.TempDir(), "rag_test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	uploads := &fakeUploads{}
	svc := NewService(llm, idx, uploads, Options{
		ChunkSize:           500,
		ChunkOverlap:        50,
		TopK:                2,
		SimilarityThreshold: 0.3,
	}, zap.NewNop())
	return svc, idx, uploads
}

func TestCosineSimilarity(t *testing.T) {
	got, err := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-9)

	_, err = cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)

	_, err = cosineSimilarity(nil, []float32{1})
	assert.Error(t, err)
}

func TestSearchRanksAndFilters(t *testing.T) {
	llm := &fakeLLM{embeddings: map[string][]float32{"query": {1, 0}}}
	svc, idx, _ := newTestService(t, llm)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []index.Chunk{
		{Content: "exact match", Embedding: []float32{1, 0}},
		{Content: "close match", Embedding: []float32{0.9, 0.1}},
		{Content: "weak match", Embedding: []float32{0.5, 0.86}},
		{Content: "orthogonal", Embedding: []float32{0, 1}},
	}))
	// Another session's chunks must not leak in.
	require.NoError(t, idx.Add(ctx, "s2", "other.pdf", []index.Chunk{
		{Content: "other session", Embedding: []float32{1, 0}},
	}))

	hits, err := svc.Search(ctx, "query", 2, "s1")
	require.NoError(t, err)
	require.Len(t, hits, 2, "top-k must cap the result set")
	assert.Equal(t, "exact match", hits[0].Content)
	assert.Equal(t, "close match", hits[1].Content)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	for _, h := range hits {
		assert.Equal(t, "s1", h.SessionID)
	}
}

func TestSearchEmbedFailure(t *testing.T) {
	llm := &fakeLLM{embedErr: fmt.Errorf("embedding backend down")}
	svc, _, _ := newTestService(t, llm)

	_, err := svc.Search(context.Background(), "query", 3, "s1")
	assert.Error(t, err)
}

func TestProcessDocumentIndexesChunks(t *testing.T) {
	llm := &fakeLLM{}
	svc, idx, _ := newTestService(t, llm)
	svc.loadDocument = func(_ context.Context, _ string, _ textsplitter.TextSplitter) ([]string, error) {
		return []string{"experience section", "education section"}, nil
	}

	res, err := svc.ProcessDocument(context.Background(), stage.ProcessRequest{
		Path: "/tmp/ignored.pdf", Filename: "resume.pdf", SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunkCount)
	assert.False(t, res.ProcessedAt.IsZero())

	chunks, err := idx.BySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "resume.pdf", chunks[0].Filename)
	assert.NotEmpty(t, chunks[0].Embedding)
}

func TestProcessDocumentFailures(t *testing.T) {
	t.Run("extraction failure", func(t *testing.T) {
		svc, _, _ := newTestService(t, &fakeLLM{})
		svc.loadDocument = func(_ context.Context, _ string, _ textsplitter.TextSplitter) ([]string, error) {
			return nil, fmt.Errorf("corrupt PDF")
		}
		_, err := svc.ProcessDocument(context.Background(), stage.ProcessRequest{Filename: "x.pdf", SessionID: "s1"})
		assert.ErrorContains(t, err, "corrupt PDF")
	})

	t.Run("empty document", func(t *testing.T) {
		svc, _, _ := newTestService(t, &fakeLLM{})
		svc.loadDocument = func(_ context.Context, _ string, _ textsplitter.TextSplitter) ([]string, error) {
			return nil, nil
		}
		_, err := svc.ProcessDocument(context.Background(), stage.ProcessRequest{Filename: "x.pdf", SessionID: "s1"})
		assert.ErrorContains(t, err, "no text content")
	})

	t.Run("embedding failure", func(t *testing.T) {
		svc, idx, _ := newTestService(t, &fakeLLM{embedErr: fmt.Errorf("quota exceeded")})
		svc.loadDocument = func(_ context.Context, _ string, _ textsplitter.TextSplitter) ([]string, error) {
			return []string{"some text"}, nil
		}
		_, err := svc.ProcessDocument(context.Background(), stage.ProcessRequest{Filename: "x.pdf", SessionID: "s1"})
		assert.Error(t, err)

		chunks, err := idx.BySession(context.Background(), "s1")
		require.NoError(t, err)
		assert.Empty(t, chunks, "nothing may be indexed when embedding fails")
	})
}

func TestGenerateReply(t *testing.T) {
	t.Run("success uses completion verbatim", func(t *testing.T) {
		llm := &fakeLLM{completion: "The candidate has ten years of Go experience."}
		svc, idx, _ := newTestService(t, llm)
		require.NoError(t, idx.Add(context.Background(), "s1", "resume.pdf", []index.Chunk{
			{Content: "ten years of Go", Embedding: []float32{1, 0}},
		}))

		res, err := svc.GenerateReply(context.Background(), stage.GenerationRequest{
			Message: "query", SessionID: "s1",
		})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "The candidate has ten years of Go experience.", res.Response)
	})

	t.Run("completion failure becomes structured failure", func(t *testing.T) {
		llm := &fakeLLM{completeErr: fmt.Errorf("model overloaded")}
		svc, _, _ := newTestService(t, llm)

		res, err := svc.GenerateReply(context.Background(), stage.GenerationRequest{
			Message: "query", SessionID: "s1",
		})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "model overloaded")
	})
}

func TestCleanupSession(t *testing.T) {
	svc, idx, uploads := newTestService(t, &fakeLLM{})
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []index.Chunk{{Content: "a"}, {Content: "b"}}))
	require.NoError(t, idx.Add(ctx, "s2", "keep.pdf", []index.Chunk{{Content: "c"}}))

	res, err := svc.CleanupSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "s1", res.SessionID)
	assert.Equal(t, 2, res.IndexDeleted)
	assert.Equal(t, []string{"1234-5678-resume.pdf"}, res.FilesDeleted)
	assert.Equal(t, []string{"resume.pdf"}, uploads.removed)

	remaining, err := idx.BySession(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].SessionID)
}

func TestSessionBrowsing(t *testing.T) {
	svc, idx, _ := newTestService(t, &fakeLLM{})
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []index.Chunk{{Content: "a"}, {Content: "b"}}))

	listing, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.TotalSessions)
	assert.Equal(t, 2, listing.TotalDocuments)

	dump, err := svc.SessionData(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, dump.TotalChunks)
	assert.Equal(t, "resume.pdf", dump.Chunks[0].Filename)
}
