package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	// When embedding the same text twice
	v1, err := e.Embed(context.Background(), "knowledge base retrieval")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "knowledge base retrieval")
	require.NoError(t, err)

	// Then the vectors are identical
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	// When embedding non-empty text
	v, err := e.Embed(context.Background(), "混合检索融合多个召回源")
	require.NoError(t, err)

	// Then the vector has unit magnitude and the configured dimension
	assert.Len(t, v, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-5)
}

func TestStaticEmbedder_EmptyTextZeroVector(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	// When embedding empty and whitespace-only text
	for _, text := range []string{"", "   ", "\n\t"} {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)

		// Then the result is a zero vector of full dimension
		assert.Len(t, v, StaticDimensions)
		assert.Zero(t, vectorMagnitude(v))
	}
}

func TestStaticEmbedder_DistinctTexts(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	// When embedding unrelated texts
	v1, err := e.Embed(context.Background(), "database indexing strategies")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "今天天气很好")
	require.NoError(t, err)

	// Then the vectors differ
	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_SharedTokensOverlap(t *testing.T) {
	// Given embeddings for texts that share Chinese characters
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "中文检索系统")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "中文检索引擎")
	require.NoError(t, err)

	// When computing their dot product
	var dot float64
	for i := range v1 {
		dot += float64(v1[i]) * float64(v2[i])
	}

	// Then overlap from the shared characters makes it positive
	assert.Greater(t, dot, 0.0)
}

func TestStaticTokenize_HanUnigrams(t *testing.T) {
	// Given mixed Chinese and English text
	tokens := staticTokenize("BM25算法 ranking")

	// Then Han characters are single tokens and Latin runs stay whole
	assert.Equal(t, []string{"bm25", "算", "法", "ranking"}, tokens)
}

func TestStaticEmbedder_Batch(t *testing.T) {
	// Given a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	// When embedding a batch with an empty entry
	vectors, err := e.EmbedBatch(context.Background(), []string{"first passage", "", "second passage"})
	require.NoError(t, err)

	// Then each entry gets a vector, empty text a zero vector
	require.Len(t, vectors, 3)
	assert.Positive(t, vectorMagnitude(vectors[0]))
	assert.Zero(t, vectorMagnitude(vectors[1]))
	assert.Positive(t, vectorMagnitude(vectors[2]))
}

func TestStaticEmbedder_Closed(t *testing.T) {
	// Given a closed embedder
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	// When embedding after close
	_, err := e.Embed(context.Background(), "text")

	// Then the operation fails and availability reports false
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_Metadata(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}
