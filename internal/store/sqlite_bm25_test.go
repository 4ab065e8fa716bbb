package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteLexicalIndex_IndexAndSearch_Basic(t *testing.T) {
	// Given: empty in-memory index
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// When: indexing passages
	entries := []*IndexEntry{
		{ID: "p1", Content: "reciprocal rank fusion combines ranked lists"},
		{ID: "p2", Content: "sliding window splitting produces overlapping passages"},
		{ID: "p3", Content: "vector similarity search uses embeddings"},
	}
	err = idx.Index(context.Background(), entries)
	require.NoError(t, err)

	// Then: search finds matching passages, best first
	results, err := idx.Search(context.Background(), "rank fusion", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "p1", results[0].PassageID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSQLiteLexicalIndex_ReindexReplacesEntry(t *testing.T) {
	// Given: an indexed passage
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "p1", Content: "original wording"}}))

	// When: re-indexing the same ID with new content
	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "p1", Content: "replacement wording"}}))

	// Then: old content no longer matches, new content does
	results, err := idx.Search(ctx, "original", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "replacement", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// And: no duplicate IDs are tracked
	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestSQLiteLexicalIndex_SearchChineseUnigrams(t *testing.T) {
	// Given: unsegmented Chinese content
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*IndexEntry{
		{ID: "p1", Content: "检索系统将文档切分为段落"},
		{ID: "p2", Content: "embedding batches are order preserving"},
	}))

	// When: querying with a Chinese substring
	results, err := idx.Search(ctx, "文档", 10)
	require.NoError(t, err)

	// Then: the Chinese passage is found
	require.NotEmpty(t, results)
	assert.Equal(t, "p1", results[0].PassageID)
}

func TestSQLiteLexicalIndex_EmptyQueryReturnsNoResults(t *testing.T) {
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteLexicalIndex_DeleteRemovesEntries(t *testing.T) {
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*IndexEntry{
		{ID: "p1", Content: "alpha passage"},
		{ID: "p2", Content: "beta passage"},
	}))

	require.NoError(t, idx.Delete(ctx, []string{"p1"}))

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids)
}

func TestSQLiteLexicalIndex_ClearEmptiesIndex(t *testing.T) {
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*IndexEntry{
		{ID: "p1", Content: "alpha"},
		{ID: "p2", Content: "beta"},
	}))

	require.NoError(t, idx.Clear(ctx))

	assert.Equal(t, 0, idx.Stats().EntryCount)
}

func TestSQLiteLexicalIndex_PersistsAcrossReopen(t *testing.T) {
	// Given: a disk-backed index with one passage
	path := filepath.Join(t.TempDir(), "lexical.db")
	idx, err := NewSQLiteLexicalIndex(path, DefaultBM25Config())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*IndexEntry{{ID: "p1", Content: "durable passage content"}}))
	require.NoError(t, idx.Close())

	// When: reopening at the same path
	idx2, err := NewSQLiteLexicalIndex(path, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	// Then: the passage is still searchable
	results, err := idx2.Search(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].PassageID)
}

func TestSQLiteLexicalIndex_ClosedIndexRejectsOperations(t *testing.T) {
	idx, err := NewSQLiteLexicalIndex("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	err = idx.Index(context.Background(), []*IndexEntry{{ID: "p1", Content: "x"}})
	assert.Error(t, err)

	_, err = idx.Search(context.Background(), "x", 10)
	assert.Error(t, err)

	// Close is idempotent.
	assert.NoError(t, idx.Close())
}
