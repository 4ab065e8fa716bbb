package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbmcp/internal/embed"
	kberrors "github.com/kbforge/kbmcp/internal/errors"
	"github.com/kbforge/kbmcp/internal/store"
)

// fakeLexical returns canned results or a canned error.
type fakeLexical struct {
	results []*store.LexicalResult
	err     error
	stats   *store.LexicalStats
}

func (f *fakeLexical) Index(ctx context.Context, entries []*store.IndexEntry) error { return nil }

func (f *fakeLexical) Search(ctx context.Context, query string, limit int) ([]*store.LexicalResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeLexical) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeLexical) Clear(ctx context.Context) error                { return nil }
func (f *fakeLexical) AllIDs() ([]string, error)                      { return nil, nil }
func (f *fakeLexical) Close() error                                   { return nil }

func (f *fakeLexical) Stats() *store.LexicalStats {
	if f.stats != nil {
		return f.stats
	}
	return &store.LexicalStats{}
}

// fakeVector ignores the query vector and returns canned results.
type fakeVector struct {
	results []*store.VectorResult
	err     error
	count   int
}

func (f *fakeVector) Add(ctx context.Context, ids []string, vectors [][]float32) error { return nil }

func (f *fakeVector) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeVector) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVector) Clear(ctx context.Context) error                { return nil }
func (f *fakeVector) AllIDs() []string                               { return nil }
func (f *fakeVector) Contains(id string) bool                        { return false }
func (f *fakeVector) Count() int                                     { return f.count }
func (f *fakeVector) Save(path string) error                         { return nil }
func (f *fakeVector) Load(path string) error                         { return nil }
func (f *fakeVector) Close() error                                   { return nil }

// fakeMetadata serves passages from an in-memory map. Unknown IDs are
// silently omitted, matching the store contract.
type fakeMetadata struct {
	passages map[string]*store.Passage
	err      error
}

func (f *fakeMetadata) GetPassages(ctx context.Context, ids []string) ([]*store.Passage, error) {
	if f.err != nil {
		return nil, f.err
	}
	found := make([]*store.Passage, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.passages[id]; ok {
			found = append(found, p)
		}
	}
	return found, nil
}

func (f *fakeMetadata) SaveDocument(ctx context.Context, doc *store.Document) error { return nil }
func (f *fakeMetadata) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	return nil, nil
}
func (f *fakeMetadata) ListDocuments(ctx context.Context, limit, offset int) ([]*store.Document, error) {
	return nil, nil
}
func (f *fakeMetadata) DeleteDocuments(ctx context.Context, ids []string) error       { return nil }
func (f *fakeMetadata) SavePassages(ctx context.Context, passages []*store.Passage) error {
	return nil
}
func (f *fakeMetadata) GetPassage(ctx context.Context, id string) (*store.Passage, error) {
	return nil, nil
}
func (f *fakeMetadata) GetPassagesByDocument(ctx context.Context, documentID string) ([]*store.Passage, error) {
	return nil, nil
}
func (f *fakeMetadata) PassageIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	return nil, nil
}
func (f *fakeMetadata) GetState(ctx context.Context, key string) (string, error) { return "", nil }
func (f *fakeMetadata) SetState(ctx context.Context, key, value string) error    { return nil }
func (f *fakeMetadata) Counts(ctx context.Context) (int, int, error)             { return 0, 0, nil }
func (f *fakeMetadata) Clear(ctx context.Context) error                          { return nil }
func (f *fakeMetadata) Close() error                                             { return nil }

func storedPassage(docID, id, content string, start, end int) *store.Passage {
	return &store.Passage{
		ID:         id,
		DocumentID: docID,
		Content:    content,
		Start:      start,
		End:        end,
		CreatedAt:  time.Now(),
	}
}

func newTestEngine(t *testing.T, lex *fakeLexical, vec *fakeVector, meta *fakeMetadata, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngine(lex, vec, embed.NewStaticEmbedder(), meta, DefaultConfig(), opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_NilDependencies(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{}
	meta := &fakeMetadata{}
	embedder := embed.NewStaticEmbedder()

	tests := []struct {
		name     string
		lexical  store.LexicalIndex
		vector   store.VectorStore
		embedder embed.Embedder
		metadata store.MetadataStore
	}{
		{"nil lexical", nil, vec, embedder, meta},
		{"nil vector", lex, nil, embedder, meta},
		{"nil embedder", lex, vec, nil, meta},
		{"nil metadata", lex, vec, embedder, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.lexical, tt.vector, tt.embedder, tt.metadata, DefaultConfig())
			assert.ErrorIs(t, err, ErrNilDependency)
		})
	}
}

func TestEngine_HybridSearchMergesSpans(t *testing.T) {
	// Given two overlapping passages of one document, where both
	// sources rank p1 first
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "012345", 0, 6),
		"p2": storedPassage("doc1", "p2", "456789", 4, 10),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 8.0},
		{PassageID: "p2", Score: 3.0},
	}}
	vec := &fakeVector{results: []*store.VectorResult{
		{ID: "p1", Score: 0.9},
		{ID: "p2", Score: 0.7},
	}}
	engine := newTestEngine(t, lex, vec, meta)

	// When searching
	result, err := engine.Search(context.Background(), "numbers", Options{})

	// Then the passages fuse and merge into a single reconstructed span
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.FailedSources)
	require.Len(t, result.Spans, 1)

	span := result.Spans[0]
	assert.Equal(t, "doc1", span.DocumentID)
	assert.Equal(t, "0123456789", span.Content)
	assert.Equal(t, 0, span.Start)
	assert.Equal(t, 10, span.End)
	// p1 ranks first in both sources, so with k=1 its fused score is
	// 1/2 + 1/2 and the merged span carries it.
	assert.InDelta(t, 1.0, span.Score, 1e-9)
}

func TestEngine_DegradedModeOnLexicalFailure(t *testing.T) {
	// Given a lexical index that is down
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "vector only", 0, 11),
	}}
	lex := &fakeLexical{err: errors.New("fts table locked")}
	vec := &fakeVector{results: []*store.VectorResult{
		{ID: "p1", Score: 0.8},
	}}
	engine := newTestEngine(t, lex, vec, meta)

	// When searching
	result, err := engine.Search(context.Background(), "query", Options{})

	// Then the query succeeds on vector hits alone and reports the
	// failed source
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{SourceLexical}, result.FailedSources)
	require.Len(t, result.Spans, 1)
	assert.Equal(t, "vector only", result.Spans[0].Content)
}

func TestEngine_DegradedModeOnVectorFailure(t *testing.T) {
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "lexical only", 0, 12),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 5.0},
	}}
	vec := &fakeVector{err: errors.New("index not loaded")}
	engine := newTestEngine(t, lex, vec, meta)

	result, err := engine.Search(context.Background(), "query", Options{})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{SourceVector}, result.FailedSources)
	require.Len(t, result.Spans, 1)
	assert.Equal(t, "lexical only", result.Spans[0].Content)
}

func TestEngine_AllSourcesFailed(t *testing.T) {
	// Given both retrieval sources failing
	lex := &fakeLexical{err: errors.New("lexical down")}
	vec := &fakeVector{err: errors.New("vector down")}
	engine := newTestEngine(t, lex, vec, &fakeMetadata{})

	// When searching
	_, err := engine.Search(context.Background(), "query", Options{})

	// Then the query fails with the combined error
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeAllSourcesUnavailable, kberrors.GetCode(err))
	assert.Contains(t, err.Error(), "all retrieval sources failed")
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	engine := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeMetadata{})

	for _, query := range []string{"", "   ", "\n\t"} {
		_, err := engine.Search(context.Background(), query, Options{})
		require.Error(t, err)
		assert.Equal(t, kberrors.ErrCodeQueryEmpty, kberrors.GetCode(err))
	}
}

func TestEngine_NegativeLimitRejected(t *testing.T) {
	engine := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeMetadata{})

	_, err := engine.Search(context.Background(), "query", Options{Limit: -1})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeInvalidParameter, kberrors.GetCode(err))
}

func TestEngine_NoHitsReturnsEmptyResult(t *testing.T) {
	engine := newTestEngine(t, &fakeLexical{}, &fakeVector{}, &fakeMetadata{})

	result, err := engine.Search(context.Background(), "nothing indexed", Options{})

	require.NoError(t, err)
	assert.Empty(t, result.Spans)
	assert.False(t, result.Degraded)
}

func TestEngine_LimitTruncatesSpans(t *testing.T) {
	// Given hits across three separate documents
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "alpha", 0, 5),
		"p2": storedPassage("doc2", "p2", "bravo", 0, 5),
		"p3": storedPassage("doc3", "p3", "charlie", 0, 7),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 9.0},
		{PassageID: "p2", Score: 5.0},
		{PassageID: "p3", Score: 2.0},
	}}
	engine := newTestEngine(t, lex, &fakeVector{}, meta)

	// When limiting to one result
	result, err := engine.Search(context.Background(), "query", Options{Limit: 1})

	// Then only the best span survives
	require.NoError(t, err)
	require.Len(t, result.Spans, 1)
	assert.Equal(t, "alpha", result.Spans[0].Content)
}

func TestEngine_LimitCappedAtMax(t *testing.T) {
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "alpha", 0, 5),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 1.0},
	}}
	engine := newTestEngine(t, lex, &fakeVector{}, meta)

	result, err := engine.Search(context.Background(), "query", Options{Limit: 100000})

	require.NoError(t, err)
	assert.Len(t, result.Spans, 1)
}

func TestEngine_OrphanedIDsDropped(t *testing.T) {
	// Given an index entry whose passage was deleted from metadata
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"live": storedPassage("doc1", "live", "still here", 0, 10),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "ghost", Score: 9.0},
		{PassageID: "live", Score: 4.0},
	}}
	engine := newTestEngine(t, lex, &fakeVector{}, meta)

	// When searching
	result, err := engine.Search(context.Background(), "query", Options{})

	// Then the orphan is silently dropped
	require.NoError(t, err)
	require.Len(t, result.Spans, 1)
	assert.Equal(t, "still here", result.Spans[0].Content)
}

func TestEngine_MetadataFailureFailsQuery(t *testing.T) {
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 1.0},
	}}
	meta := &fakeMetadata{err: errors.New("database is locked")}
	engine := newTestEngine(t, lex, &fakeVector{}, meta)

	_, err := engine.Search(context.Background(), "query", Options{})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeSearchFailed, kberrors.GetCode(err))
}

func TestEngine_WeightedFusionOption(t *testing.T) {
	meta := &fakeMetadata{passages: map[string]*store.Passage{
		"p1": storedPassage("doc1", "p1", "alpha", 0, 5),
		"p2": storedPassage("doc2", "p2", "bravo", 0, 5),
	}}
	lex := &fakeLexical{results: []*store.LexicalResult{
		{PassageID: "p1", Score: 9.0},
		{PassageID: "p2", Score: 5.0},
	}}
	vec := &fakeVector{results: []*store.VectorResult{
		{ID: "p1", Score: 0.9},
	}}
	engine := newTestEngine(t, lex, vec, meta, WithWeightedFusion())

	result, err := engine.Search(context.Background(), "query", Options{})

	// p1 leads both sources and both source sets, so weighting cannot
	// change the winner.
	require.NoError(t, err)
	require.NotEmpty(t, result.Spans)
	assert.Equal(t, "alpha", result.Spans[0].Content)
}

func TestEngine_Stats(t *testing.T) {
	lex := &fakeLexical{stats: &store.LexicalStats{EntryCount: 42, TermCount: 310}}
	vec := &fakeVector{count: 42}
	engine := newTestEngine(t, lex, vec, &fakeMetadata{})

	stats := engine.Stats()

	require.NotNil(t, stats)
	assert.Equal(t, 42, stats.LexicalStats.EntryCount)
	assert.Equal(t, 42, stats.VectorCount)
}
