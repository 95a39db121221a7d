package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index_test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddAndQueryBySession(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := []Chunk{
		{Content: "ten years of Go experience", Embedding: []float32{0.1, 0.2}},
		{Content: "studied at Example University", Embedding: []float32{0.3, 0.4}},
	}
	require.NoError(t, idx.Add(ctx, "session-a", "resume.pdf", chunks))
	require.NoError(t, idx.Add(ctx, "session-b", "other.pdf", chunks[:1]))

	got, err := idx.BySession(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ten years of Go experience", got[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, got[0].Embedding)
	assert.Equal(t, "resume.pdf", got[0].Filename)

	all, err := idx.BySession(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFilenames(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []Chunk{{Content: "a"}, {Content: "b"}}))
	require.NoError(t, idx.Add(ctx, "s1", "cover.pdf", []Chunk{{Content: "c"}}))

	names, err := idx.Filenames(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"resume.pdf", "cover.pdf"}, names)
}

func TestDeleteSession(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []Chunk{{Content: "a"}, {Content: "b"}}))
	require.NoError(t, idx.Add(ctx, "s2", "other.pdf", []Chunk{{Content: "c"}}))

	deleted, err := idx.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := idx.BySession(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "s2", remaining[0].SessionID)

	deleted, err = idx.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestSessionsSummary(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "s1", "resume.pdf", []Chunk{{Content: "a"}, {Content: "b"}}))
	require.NoError(t, idx.Add(ctx, "s2", "other.pdf", []Chunk{{Content: "c"}}))

	sessions, total, err := idx.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sessions, 2)
	require.Len(t, sessions["s1"], 1)
	assert.Equal(t, "resume.pdf", sessions["s1"][0].Filename)
	assert.Equal(t, 2, sessions["s1"][0].ChunkCount)
}
