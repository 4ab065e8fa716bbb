package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/output"
	"github.com/kbforge/kbmcp/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	dataDir  string
	embedder string
	limit    int
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base with hybrid retrieval.

Combines BM25 (keyword) and semantic (embedding) retrieval with
Reciprocal Rank Fusion, then merges overlapping passages into
contiguous spans.

Examples:
  kbmcp search "rate limiter configuration"
  kbmcp search "error handling" --limit 5
  kbmcp search "setup instructions" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Override the index data directory")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedding provider: ollama, static")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of spans (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	kb, err := openKnowledgeBase(ctx, kbOptions{
		dataDir:          opts.dataDir,
		embedderOverride: opts.embedder,
	})
	if err != nil {
		return err
	}
	defer kb.Close()

	engine, err := newEngine(kb)
	if err != nil {
		return err
	}

	result, err := engine.Search(ctx, query, search.Options{Limit: opts.limit})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		return printSearchJSON(cmd, result)
	}
	return printSearchText(out, query, result)
}

func printSearchText(out *output.Writer, query string, result *search.Result) error {
	if result.Degraded {
		out.Warningf("Degraded: source %s unavailable, results may be incomplete",
			strings.Join(result.FailedSources, ", "))
	}

	if len(result.Spans) == 0 {
		out.Dim(fmt.Sprintf("No results found for %q", query))
		return nil
	}

	plural := "results"
	if len(result.Spans) == 1 {
		plural = "result"
	}
	out.Header(fmt.Sprintf("Found %d %s for %q:", len(result.Spans), plural, query))
	out.Newline()

	for i, span := range result.Spans {
		out.Span(i+1, span.DocumentID, span.Start, span.End, span.Score, span.Content)
		out.Newline()
	}
	return nil
}

func printSearchJSON(cmd *cobra.Command, result *search.Result) error {
	type jsonSpan struct {
		DocumentID string  `json:"document_id"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Score      float64 `json:"score"`
		Content    string  `json:"content"`
	}

	payload := struct {
		Spans         []jsonSpan `json:"spans"`
		Degraded      bool       `json:"degraded,omitempty"`
		FailedSources []string   `json:"failed_sources,omitempty"`
	}{
		Spans:         make([]jsonSpan, 0, len(result.Spans)),
		Degraded:      result.Degraded,
		FailedSources: result.FailedSources,
	}
	for _, span := range result.Spans {
		payload.Spans = append(payload.Spans, jsonSpan{
			DocumentID: span.DocumentID,
			Start:      span.Start,
			End:        span.End,
			Score:      span.Score,
			Content:    span.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
