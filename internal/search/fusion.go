package search

import (
	"sort"

	"github.com/kbforge/kbmcp/internal/store"
)

// DefaultRRFConstant is the RRF smoothing parameter k. The deployments
// this engine replaces run with k=1, which sharpens the contribution of
// top ranks; larger k flattens the curve.
const DefaultRRFConstant = 1

// Fusion combines ranked result lists from multiple retrieval sources
// using Reciprocal Rank Fusion.
//
// Algorithm: fused_score(p) = Σ_sources 1 / (k + rank_in_source(p))
//
// A passage absent from a source is treated as ranked one past that
// source's last hit (the "missing means worst possible" convention).
// Raw scores from a vector index and a lexical index live on different
// scales, so fusion is rank-based; raw scores only matter for the
// within-source ordering and the per-source min-max normalization.
type Fusion struct {
	k        int
	weighted bool
}

// FusionOption configures the fusion engine.
type FusionOption func(*Fusion)

// WithScoreWeighting folds per-source normalized scores and a source
// coverage factor into each RRF term. Off by default; pure rank-based
// RRF is the normative behavior. The weighting never reorders two
// passages that appear in exactly the same sources.
func WithScoreWeighting() FusionOption {
	return func(f *Fusion) {
		f.weighted = true
	}
}

// NewFusion creates a fusion engine with the given k.
// If k <= 0, DefaultRRFConstant is used.
func NewFusion(k int, opts ...FusionOption) *Fusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	f := &Fusion{k: k}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// fusedGroup aggregates one passage's appearances across sources.
type fusedGroup struct {
	passage *store.Passage
	ranks   map[string]int
	norms   map[string]float64
	sources []string
}

// Fuse combines per-source hit lists into one ranked list.
//
// Each source's hits are sorted by RawScore descending (stable, so ties
// keep their incoming order), assigned 1-based ranks, and min-max
// normalized; when a source's hits all share one score, every
// normalized score is 1.0. Hits are then grouped by passage identity
// (passage id scoped to its document) and each group's fused score sums
// the per-source RRF terms.
//
// The output is sorted by fused score descending; ties keep the order
// in which groups were first seen. Empty input yields an empty slice.
// Fuse assigns Rank and NormScore on the hits it is given.
func (f *Fusion) Fuse(bySource map[string][]*Hit) []*FusedResult {
	if len(bySource) == 0 {
		return []*FusedResult{}
	}

	// Deterministic source iteration order.
	sources := make([]string, 0, len(bySource))
	for name := range bySource {
		sources = append(sources, name)
	}
	sort.Strings(sources)

	// Rank and normalize within each source.
	for _, name := range sources {
		rankAndNormalize(bySource[name])
	}

	// Group across sources by passage identity, preserving first-seen order.
	var groups []*fusedGroup
	index := make(map[groupKey]*fusedGroup)
	for _, name := range sources {
		for _, hit := range bySource[name] {
			key := groupKey{document: hit.Passage.DocumentID, passage: hit.Passage.ID}
			g, ok := index[key]
			if !ok {
				g = &fusedGroup{
					passage: hit.Passage,
					ranks:   make(map[string]int, len(sources)),
					norms:   make(map[string]float64, len(sources)),
				}
				index[key] = g
				groups = append(groups, g)
			}
			g.ranks[name] = hit.Rank
			g.norms[name] = hit.NormScore
			g.sources = append(g.sources, name)
		}
	}

	// Score each group.
	results := make([]*FusedResult, len(groups))
	for i, g := range groups {
		var score float64
		for _, name := range sources {
			rank, ok := g.ranks[name]
			if !ok {
				rank = len(bySource[name]) + 1
			}
			term := 1.0 / float64(f.k+rank)
			if f.weighted {
				coverage := float64(len(g.sources)) / float64(len(sources))
				term = coverage * g.norms[name] * term
			}
			score += term
		}
		results[i] = &FusedResult{
			Passage: g.passage,
			Score:   score,
			Sources: g.sources,
		}
	}

	// Stable: equal scores keep first-seen order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

type groupKey struct {
	document string
	passage  string
}

// rankAndNormalize sorts one source's hits by raw score descending,
// assigns 1-based ranks, and min-max normalizes the scores. All hits
// sharing one score normalize to 1.0.
func rankAndNormalize(hits []*Hit) {
	if len(hits) == 0 {
		return
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RawScore > hits[j].RawScore
	})

	maxScore := hits[0].RawScore
	minScore := hits[len(hits)-1].RawScore
	scoreRange := maxScore - minScore

	for i, h := range hits {
		h.Rank = i + 1
		if scoreRange > 0 {
			h.NormScore = (h.RawScore - minScore) / scoreRange
		} else {
			h.NormScore = 1.0
		}
	}
}
