package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kbforge/kbmcp/internal/embed"
	kberrors "github.com/kbforge/kbmcp/internal/errors"
	"github.com/kbforge/kbmcp/internal/store"
)

// ErrNilDependency is returned when a required engine dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs hybrid queries: lexical and vector retrieval in parallel,
// RRF fusion, then overlap merging. The engine holds no per-query
// state, so one instance serves concurrent queries.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorStore
	embedder embed.Embedder
	metadata store.MetadataStore
	config   Config
	fusion   *Fusion
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithWeightedFusion enables the score-weighted RRF variant.
// Pure rank-based RRF is the default.
func WithWeightedFusion() EngineOption {
	return func(e *Engine) {
		e.fusion = NewFusion(e.config.RRFConstant, WithScoreWeighting())
	}
}

// NewEngine creates a hybrid search engine.
// Returns an error if any required dependency is nil.
func NewEngine(
	lexical store.LexicalIndex,
	vector store.VectorStore,
	embedder embed.Embedder,
	metadata store.MetadataStore,
	config Config,
	opts ...EngineOption,
) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}

	e := &Engine{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		config:   config,
		fusion:   NewFusion(config.RRFConstant),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes one hybrid query. Both retrieval sources run
// concurrently; if one fails the query proceeds in degraded mode over
// the surviving source's hits, and the result carries an advisory flag.
// Only when every source fails does the query fail.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	if opts.Limit < 0 {
		return nil, kberrors.New(kberrors.ErrCodeInvalidParameter,
			fmt.Sprintf("limit must not be negative, got %d", opts.Limit), nil)
	}
	opts = e.applyDefaults(opts)

	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	// Fetch more than the final limit: merging collapses neighbors and
	// fusion reorders across sources.
	fetchLimit := opts.Limit * 2

	lexResults, vecResults, failed, err := e.parallelSearch(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}

	bySource, err := e.buildHits(ctx, lexResults, vecResults, failed)
	if err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(bySource)
	spans := MergeOverlapping(fused)
	if len(spans) > opts.Limit {
		spans = spans[:opts.Limit]
	}

	result := &Result{
		Spans:         spans,
		Degraded:      len(failed) > 0,
		FailedSources: failed,
	}
	if result.Degraded {
		slog.Warn("search degraded, one retrieval source failed",
			slog.Any("failed_sources", failed),
			slog.Int("spans", len(spans)))
	}
	return result, nil
}

// applyDefaults fills in default option values.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Limit == 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts
}

// parallelSearch runs the lexical and vector retrievals concurrently
// and joins before fusion. A single source failure is recorded, not
// fatal; when all sources fail the query fails.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) (
	lexResults []*store.LexicalResult,
	vecResults []*store.VectorResult,
	failed []string,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var lexErr, vecErr error

	g.Go(func() error {
		var searchErr error
		lexResults, searchErr = e.lexical.Search(gctx, query, limit)
		if searchErr != nil {
			lexErr = searchErr
		}
		return nil
	})

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		var searchErr error
		vecResults, searchErr = e.vector.Search(gctx, embedding, limit)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		// Context cancelled or timed out.
		return nil, nil, nil, waitErr
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, nil, kberrors.New(kberrors.ErrCodeAllSourcesUnavailable,
			"all retrieval sources failed", errors.Join(lexErr, vecErr))
	}
	if lexErr != nil {
		slog.Warn("lexical search failed, proceeding with vector hits only",
			slog.String("error", lexErr.Error()))
		failed = append(failed, SourceLexical)
	}
	if vecErr != nil {
		slog.Warn("vector search failed, proceeding with lexical hits only",
			slog.String("error", vecErr.Error()))
		failed = append(failed, SourceVector)
	}
	sort.Strings(failed)

	return lexResults, vecResults, failed, nil
}

// buildHits enriches raw source results with passage records and shapes
// them for fusion. A failed source is omitted entirely so its missing
// penalty does not distort scores. Results whose passage is no longer
// in the metadata store are dropped as index orphans.
func (e *Engine) buildHits(
	ctx context.Context,
	lexResults []*store.LexicalResult,
	vecResults []*store.VectorResult,
	failed []string,
) (map[string][]*Hit, error) {
	ids := make([]string, 0, len(lexResults)+len(vecResults))
	seen := make(map[string]struct{}, len(lexResults)+len(vecResults))
	for _, r := range lexResults {
		if _, ok := seen[r.PassageID]; !ok {
			seen[r.PassageID] = struct{}{}
			ids = append(ids, r.PassageID)
		}
	}
	for _, r := range vecResults {
		if _, ok := seen[r.ID]; !ok {
			seen[r.ID] = struct{}{}
			ids = append(ids, r.ID)
		}
	}

	passages := make(map[string]*store.Passage, len(ids))
	if len(ids) > 0 {
		stored, err := e.metadata.GetPassages(ctx, ids)
		if err != nil {
			return nil, kberrors.New(kberrors.ErrCodeSearchFailed, "failed to load passages for search results", err)
		}
		for _, p := range stored {
			passages[p.ID] = p
		}
	}

	failedSet := make(map[string]struct{}, len(failed))
	for _, name := range failed {
		failedSet[name] = struct{}{}
	}

	bySource := make(map[string][]*Hit, 2)
	if _, lexFailed := failedSet[SourceLexical]; !lexFailed {
		hits := make([]*Hit, 0, len(lexResults))
		for _, r := range lexResults {
			p, ok := passages[r.PassageID]
			if !ok {
				continue
			}
			hits = append(hits, &Hit{Passage: p, Source: SourceLexical, RawScore: r.Score})
		}
		bySource[SourceLexical] = hits
	}
	if _, vecFailed := failedSet[SourceVector]; !vecFailed {
		hits := make([]*Hit, 0, len(vecResults))
		for _, r := range vecResults {
			p, ok := passages[r.ID]
			if !ok {
				continue
			}
			hits = append(hits, &Hit{Passage: p, Source: SourceVector, RawScore: float64(r.Score)})
		}
		bySource[SourceVector] = hits
	}

	return bySource, nil
}

// Stats reports index statistics.
func (e *Engine) Stats() *Stats {
	return &Stats{
		LexicalStats: e.lexical.Stats(),
		VectorCount:  e.vector.Count(),
	}
}
