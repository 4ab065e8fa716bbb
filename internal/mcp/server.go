package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kbforge/kbmcp/internal/config"
	"github.com/kbforge/kbmcp/internal/embed"
	"github.com/kbforge/kbmcp/internal/ingest"
	"github.com/kbforge/kbmcp/internal/search"
	"github.com/kbforge/kbmcp/pkg/version"
)

// Server is the kbmcp MCP server. It bridges AI clients with the
// hybrid retrieval engine and the ingestion pipeline.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	pipeline *ingest.Pipeline
	embedder embed.Embedder
	config   *config.Config
	logger   *slog.Logger
}

// IngestInput defines the input schema for the kb_ingest tool.
type IngestInput struct {
	Text       string `json:"text" jsonschema:"the document text to ingest"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"document identifier, generated when omitted; reusing an id replaces the document"`
	Title      string `json:"title,omitempty" jsonschema:"display title for the document"`
	Strategy   string `json:"strategy,omitempty" jsonschema:"split strategy: punctuation (default) or window"`
}

// IngestOutput defines the output schema for the kb_ingest tool.
type IngestOutput struct {
	DocumentID string `json:"document_id" jsonschema:"identifier of the ingested document"`
	Passages   int    `json:"passages" jsonschema:"number of indexed passages"`
	Strategy   string `json:"strategy" jsonschema:"split strategy that was applied"`
}

// SearchInput defines the input schema for the kb_search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query to execute"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of result spans, default 10"`
}

// SpanOutput is one merged result span.
type SpanOutput struct {
	DocumentID string  `json:"document_id" jsonschema:"document the span belongs to"`
	Content    string  `json:"content" jsonschema:"reconstructed span text"`
	Start      int     `json:"start" jsonschema:"start rune offset in the document"`
	End        int     `json:"end" jsonschema:"end rune offset in the document"`
	Score      float64 `json:"score" jsonschema:"fused relevance score"`
}

// SearchOutput defines the output schema for the kb_search tool.
type SearchOutput struct {
	Spans         []SpanOutput `json:"spans" jsonschema:"result spans ordered by relevance"`
	Degraded      bool         `json:"degraded,omitempty" jsonschema:"true when a retrieval source failed and results are partial"`
	FailedSources []string     `json:"failed_sources,omitempty" jsonschema:"names of the failed retrieval sources"`
}

// DeleteInput defines the input schema for the kb_delete tool.
type DeleteInput struct {
	DocumentIDs []string `json:"document_ids" jsonschema:"identifiers of the documents to delete"`
}

// DeleteOutput defines the output schema for the kb_delete tool.
type DeleteOutput struct {
	Deleted int `json:"deleted" jsonschema:"number of documents removed"`
}

// ClearInput defines the input schema for the kb_clear tool.
type ClearInput struct{}

// ClearOutput defines the output schema for the kb_clear tool.
type ClearOutput struct {
	Cleared bool `json:"cleared" jsonschema:"true when the knowledge base was emptied"`
}

// StatusInput defines the input schema for the kb_status tool.
type StatusInput struct{}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider" jsonschema:"active embedding provider"`
	Model      string `json:"model" jsonschema:"active embedding model"`
	Dimensions int    `json:"dimensions" jsonschema:"embedding vector dimension"`
	Status     string `json:"status" jsonschema:"ready or unavailable"`
}

// StatusOutput defines the output schema for the kb_status tool.
type StatusOutput struct {
	Documents      int           `json:"documents" jsonschema:"number of stored documents"`
	Passages       int           `json:"passages" jsonschema:"number of stored passages"`
	LexicalEntries int           `json:"lexical_entries" jsonschema:"entries in the lexical index"`
	Vectors        int           `json:"vectors" jsonschema:"vectors in the vector store"`
	Embeddings     EmbeddingInfo `json:"embeddings" jsonschema:"active embedder details"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(engine *search.Engine, pipeline *ingest.Pipeline, embedder embed.Embedder, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if pipeline == nil {
		return nil, errors.New("ingest pipeline is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		pipeline: pipeline,
		embedder: embedder, // May be nil, reported as unavailable
		config:   cfg,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "kbmcp",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_search",
		Description: "Search the knowledge base. Runs keyword and semantic retrieval in parallel, fuses the rankings, and returns merged document spans ordered by relevance.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_ingest",
		Description: "Add a document to the knowledge base. The text is split into overlapping passages, embedded, and indexed for both keyword and semantic search.",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_delete",
		Description: "Remove documents and their passages from the knowledge base.",
	}, s.handleDelete)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_clear",
		Description: "Empty the knowledge base: all documents, passages, and index entries.",
	}, s.handleClear)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_status",
		Description: "Report knowledge base statistics and the active embedder. Use to verify the index is ready before searching.",
	}, s.handleStatus)

	s.logger.Info("MCP tools registered", slog.Int("count", 5))
}

// handleSearch is the MCP handler for the kb_search tool.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if input.Limit < 0 {
		return nil, SearchOutput{}, NewInvalidParamsError(
			fmt.Sprintf("limit must not be negative, got %d", input.Limit))
	}

	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(input.Limit, s.config.Search.DefaultLimit, 1, s.config.Search.MaxLimit)

	s.logger.Info("kb_search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("limit", limit))

	result, err := s.engine.Search(ctx, input.Query, search.Options{Limit: limit})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("kb_search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("kb_search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("spans", len(result.Spans)),
		slog.Bool("degraded", result.Degraded))

	output := SearchOutput{
		Spans:         make([]SpanOutput, 0, len(result.Spans)),
		Degraded:      result.Degraded,
		FailedSources: result.FailedSources,
	}
	for _, span := range result.Spans {
		output.Spans = append(output.Spans, SpanOutput{
			DocumentID: span.DocumentID,
			Content:    span.Content,
			Start:      span.Start,
			End:        span.End,
			Score:      span.Score,
		})
	}
	return nil, output, nil
}

// handleIngest is the MCP handler for the kb_ingest tool.
func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, IngestOutput{}, NewInvalidParamsError("text parameter is required and must be a non-empty string")
	}

	start := time.Now()
	requestID := generateRequestID()

	receipt, err := s.pipeline.Ingest(ctx, ingest.Request{
		DocumentID: input.DocumentID,
		Title:      input.Title,
		Text:       input.Text,
		Strategy:   input.Strategy,
		Params:     s.config.SplitParams(),
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("kb_ingest failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, IngestOutput{}, MapError(err)
	}

	s.logger.Info("kb_ingest completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("document_id", receipt.DocumentID),
		slog.Int("passages", receipt.PassageCount))

	return nil, IngestOutput{
		DocumentID: receipt.DocumentID,
		Passages:   receipt.PassageCount,
		Strategy:   receipt.Strategy,
	}, nil
}

// handleDelete is the MCP handler for the kb_delete tool.
func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInput) (
	*mcp.CallToolResult,
	DeleteOutput,
	error,
) {
	if len(input.DocumentIDs) == 0 {
		return nil, DeleteOutput{}, NewInvalidParamsError("document_ids parameter must list at least one document")
	}

	if err := s.pipeline.Delete(ctx, input.DocumentIDs); err != nil {
		s.logger.Error("kb_delete failed", slog.String("error", err.Error()))
		return nil, DeleteOutput{}, MapError(err)
	}

	s.logger.Info("kb_delete completed", slog.Int("documents", len(input.DocumentIDs)))
	return nil, DeleteOutput{Deleted: len(input.DocumentIDs)}, nil
}

// handleClear is the MCP handler for the kb_clear tool.
func (s *Server) handleClear(ctx context.Context, _ *mcp.CallToolRequest, _ ClearInput) (
	*mcp.CallToolResult,
	ClearOutput,
	error,
) {
	if err := s.pipeline.Clear(ctx); err != nil {
		s.logger.Error("kb_clear failed", slog.String("error", err.Error()))
		return nil, ClearOutput{}, MapError(err)
	}

	s.logger.Info("kb_clear completed")
	return nil, ClearOutput{Cleared: true}, nil
}

// handleStatus is the MCP handler for the kb_status tool.
func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	docs, passages, err := s.pipeline.Counts(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}

	output := &StatusOutput{
		Documents: docs,
		Passages:  passages,
	}

	if stats := s.engine.Stats(); stats != nil {
		if stats.LexicalStats != nil {
			output.LexicalEntries = stats.LexicalStats.EntryCount
		}
		output.Vectors = stats.VectorCount
	}

	output.Embeddings = s.embeddingInfo(ctx)
	return nil, output, nil
}

// embeddingInfo reports the active embedder state for capability
// signaling. Clients can lower their semantic expectations when the
// static fallback is active.
func (s *Server) embeddingInfo(ctx context.Context) EmbeddingInfo {
	if s.embedder == nil {
		return EmbeddingInfo{Provider: "none", Model: "none", Status: "unavailable"}
	}

	info := EmbeddingInfo{
		Model:      s.embedder.ModelName(),
		Dimensions: s.embedder.Dimensions(),
	}
	if info.Model == "static" || info.Dimensions == embed.StaticDimensions {
		info.Provider = "static"
	} else {
		info.Provider = "ollama"
	}
	if s.embedder.Available(ctx) {
		info.Status = "ready"
	} else {
		info.Status = "unavailable"
	}
	return info
}

// Serve runs the server over the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
