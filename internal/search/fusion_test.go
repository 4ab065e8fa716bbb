package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbmcp/internal/store"
)

func passage(docID, id string) *store.Passage {
	return &store.Passage{ID: id, DocumentID: docID, Content: id}
}

func hit(docID, id string, score float64) *Hit {
	return &Hit{Passage: passage(docID, id), RawScore: score}
}

func TestFusion_EmptyInput(t *testing.T) {
	// Given no source results at all
	f := NewFusion(1)

	// When fusing
	results := f.Fuse(map[string][]*Hit{})

	// Then the output is empty, not an error
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestFusion_BothSourcesAgreeOnTopPassage(t *testing.T) {
	// Given passage P at rank 1 in both sources and Q only in bm25 at
	// rank 2, with k=1
	f := NewFusion(1)
	bySource := map[string][]*Hit{
		SourceLexical: {
			hit("doc1", "P", 2.0),
			hit("doc1", "Q", 1.0),
		},
		SourceVector: {
			hit("doc1", "P", 0.9),
		},
	}

	// When fusing
	results := f.Fuse(bySource)

	// Then P scores 1/(1+1) + 1/(1+1) = 1.0 and ranks above Q, whose
	// missing vec rank is len(vec)+1 = 2
	require.Len(t, results, 2)
	assert.Equal(t, "P", results[0].Passage.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "Q", results[1].Passage.ID)
	assert.InDelta(t, 1.0/3+1.0/3, results[1].Score, 1e-9)
}

func TestFusion_ContributingSources(t *testing.T) {
	// Given a passage found by both sources and one found by one
	f := NewFusion(1)
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {hit("doc1", "both", 2.0), hit("doc1", "lexonly", 1.0)},
		SourceVector:  {hit("doc1", "both", 0.9)},
	})

	require.Len(t, results, 2)
	assert.Equal(t, []string{SourceLexical, SourceVector}, results[0].Sources)
	assert.Equal(t, []string{SourceLexical}, results[1].Sources)
}

func TestFusion_OrderingFollowsSourceRank(t *testing.T) {
	// Given passages appearing only in one source, ranked by raw score
	f := NewFusion(1)
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {
			hit("doc1", "low", 0.2),
			hit("doc1", "high", 0.9),
			hit("doc1", "mid", 0.5),
		},
	})

	// Then fusion preserves the within-source order
	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].Passage.ID)
	assert.Equal(t, "mid", results[1].Passage.ID)
	assert.Equal(t, "low", results[2].Passage.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestFusion_MonotonicityInK(t *testing.T) {
	// Given a single-source scenario
	build := func() map[string][]*Hit {
		return map[string][]*Hit{
			SourceLexical: {
				hit("doc1", "first", 3.0),
				hit("doc1", "second", 2.0),
				hit("doc1", "third", 1.0),
			},
		}
	}

	// When fusing with increasing k
	for _, k := range []int{1, 2, 10, 60} {
		results := NewFusion(k).Fuse(build())

		// Then the top passage never changes
		require.NotEmpty(t, results, "k=%d", k)
		assert.Equal(t, "first", results[0].Passage.ID, "k=%d", k)
	}
}

func TestFusion_AllEqualScoresNormalizeToOne(t *testing.T) {
	// Given a source whose hits all share one raw score
	hits := []*Hit{
		hit("doc1", "a", 0.5),
		hit("doc1", "b", 0.5),
		hit("doc1", "c", 0.5),
	}

	// When ranking and normalizing
	rankAndNormalize(hits)

	// Then every hit normalizes to 1.0 and ties keep incoming order
	for i, h := range hits {
		assert.Equal(t, i+1, h.Rank)
		assert.Equal(t, 1.0, h.NormScore)
	}
	assert.Equal(t, "a", hits[0].Passage.ID)
	assert.Equal(t, "b", hits[1].Passage.ID)
	assert.Equal(t, "c", hits[2].Passage.ID)
}

func TestFusion_MinMaxNormalization(t *testing.T) {
	// Given hits with distinct raw scores
	hits := []*Hit{
		hit("doc1", "top", 10.0),
		hit("doc1", "mid", 6.0),
		hit("doc1", "bottom", 2.0),
	}

	// When ranking and normalizing
	rankAndNormalize(hits)

	// Then scores scale linearly into [0,1]
	assert.Equal(t, 1.0, hits[0].NormScore)
	assert.InDelta(t, 0.5, hits[1].NormScore, 1e-9)
	assert.Equal(t, 0.0, hits[2].NormScore)
}

func TestFusion_PassageIdentityScopedToDocument(t *testing.T) {
	// Given the same passage id appearing under two documents
	f := NewFusion(1)
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {
			hit("doc1", "shared", 2.0),
			hit("doc2", "shared", 1.0),
		},
	})

	// Then they fuse as two distinct results
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].Passage.DocumentID, results[1].Passage.DocumentID)
}

func TestFusion_TiesKeepInsertionOrder(t *testing.T) {
	// Given two sources whose second-ranked passages differ but earn
	// identical fused scores
	f := NewFusion(1)
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {
			hit("doc1", "x", 2.0),
			hit("doc1", "y", 1.0),
		},
		SourceVector: {
			hit("doc1", "x", 0.9),
			hit("doc1", "z", 0.8),
		},
	})

	// Then y (seen first, from the alphabetically earlier source)
	// precedes z at the same score
	require.Len(t, results, 3)
	assert.Equal(t, "x", results[0].Passage.ID)
	assert.Equal(t, results[1].Score, results[2].Score)
	assert.Equal(t, "y", results[1].Passage.ID)
	assert.Equal(t, "z", results[2].Passage.ID)
}

func TestFusion_DefaultKOnInvalidInput(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewFusion(0).k)
	assert.Equal(t, DefaultRRFConstant, NewFusion(-5).k)
	assert.Equal(t, 60, NewFusion(60).k)
}

func TestFusion_WeightedVariantKeepsSameSourceOrder(t *testing.T) {
	// Given the weighted variant and passages from one source
	f := NewFusion(1, WithScoreWeighting())
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {
			hit("doc1", "high", 0.9),
			hit("doc1", "low", 0.1),
		},
	})

	// Then ranking within the source is unchanged
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].Passage.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestFusion_WeightedVariantScore(t *testing.T) {
	// Given two sources both returning the same lone passage
	f := NewFusion(1, WithScoreWeighting())
	results := f.Fuse(map[string][]*Hit{
		SourceLexical: {hit("doc1", "P", 5.0)},
		SourceVector:  {hit("doc1", "P", 0.9)},
	})

	// Then each term is coverage * norm / (k + rank) with coverage 1
	// and norm 1.0 (single-hit lists normalize to 1.0)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5+0.5, results[0].Score, 1e-9)
}

func TestFusion_LargeInputDeterministic(t *testing.T) {
	// Given a larger fixture fused twice
	build := func() map[string][]*Hit {
		bySource := map[string][]*Hit{}
		for s, source := range []string{SourceLexical, SourceVector} {
			for i := 0; i < 50; i++ {
				doc := fmt.Sprintf("doc%d", i%7)
				id := fmt.Sprintf("p%d", (i*13+s)%40)
				bySource[source] = append(bySource[source], hit(doc, id, float64((i*31)%17)))
			}
		}
		return bySource
	}
	f := NewFusion(1)

	// When fusing the same input twice
	first := f.Fuse(build())
	second := f.Fuse(build())

	// Then the output order is identical
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Passage.ID, second[i].Passage.ID, "index %d", i)
		assert.Equal(t, first[i].Passage.DocumentID, second[i].Passage.DocumentID, "index %d", i)
		assert.Equal(t, first[i].Score, second[i].Score, "index %d", i)
	}
}
