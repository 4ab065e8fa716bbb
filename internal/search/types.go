// Package search implements the hybrid query pipeline: lexical and
// vector retrieval run concurrently, their ranked lists are combined
// with Reciprocal Rank Fusion, and overlapping passages from the same
// document are stitched into coherent spans.
package search

import (
	"time"

	"github.com/kbforge/kbmcp/internal/store"
)

// Retrieval source names. Fusion and degraded-mode reporting identify
// sources by these strings.
const (
	SourceLexical = "bm25"
	SourceVector  = "vec"
)

// Hit is a single result from one retrieval source, before fusion.
// Rank and NormScore are assigned by the fusion engine; callers only
// provide the passage and the source's raw score.
type Hit struct {
	Passage  *store.Passage
	Source   string
	RawScore float64

	// Rank is the 1-based position within the source after sorting by
	// RawScore descending. Zero until fusion assigns it.
	Rank int

	// NormScore is the min-max normalized score within the source.
	NormScore float64
}

// FusedResult is a single passage after RRF fusion across sources.
type FusedResult struct {
	Passage *store.Passage

	// Score is the combined RRF score, non-negative.
	Score float64

	// Sources lists the source names that returned this passage,
	// sorted alphabetically.
	Sources []string
}

// MergedSpan is a coalesced run of overlapping or adjacent passages
// from one document. Offsets are half-open rune offsets.
type MergedSpan struct {
	DocumentID string
	Content    string
	Start      int
	End        int

	// Score is the maximum fused score among absorbed passages.
	Score float64
}

// Options configures a single search query.
type Options struct {
	// Limit is the maximum number of spans to return
	// (default: Config.DefaultLimit, capped at Config.MaxLimit).
	Limit int
}

// Result is the response to one search query.
type Result struct {
	Spans []*MergedSpan

	// Degraded is true when at least one retrieval source failed and
	// the result covers only the surviving sources.
	Degraded bool

	// FailedSources names the sources that failed, sorted.
	FailedSources []string
}

// Stats provides statistics about the search engine's indexes.
type Stats struct {
	LexicalStats *store.LexicalStats
	VectorCount  int
}

// Config configures the search engine.
type Config struct {
	// DefaultLimit is the default number of spans returned (default: 10).
	DefaultLimit int

	// MaxLimit is the maximum allowed limit (default: 100).
	MaxLimit int

	// RRFConstant is the fusion smoothing constant k (default: 1).
	RRFConstant int

	// SearchTimeout bounds one query including both source calls
	// (default: 5s).
	SearchTimeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:  10,
		MaxLimit:      100,
		RRFConstant:   DefaultRRFConstant,
		SearchTimeout: 5 * time.Second,
	}
}
