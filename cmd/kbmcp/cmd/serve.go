package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/ingest"
	"github.com/kbforge/kbmcp/internal/logging"
	"github.com/kbforge/kbmcp/internal/mcp"
	"github.com/kbforge/kbmcp/internal/search"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	dataDir  string
	embedder string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the Model Context Protocol server over stdio.

Exposes the knowledge base tools (kb_search, kb_ingest, kb_delete,
kb_clear, kb_status) to MCP clients such as Claude Code and Cursor.

Stdout carries the protocol stream, so all diagnostics go to the log
file. Use 'kbmcp status' from another shell for a health check.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Override the index data directory")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedding provider: ollama, static")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	// Stdout is reserved for JSON-RPC. Route logs to the file only.
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
		slog.SetDefault(logger)
	}

	kb, err := openKnowledgeBase(ctx, kbOptions{
		dataDir:          opts.dataDir,
		embedderOverride: opts.embedder,
	})
	if err != nil {
		slog.Error("failed to open knowledge base", slog.String("error", err.Error()))
		return err
	}
	defer kb.Close()

	engine, err := newEngine(kb)
	if err != nil {
		return err
	}
	pipeline := ingest.NewPipeline(kb.lexical, kb.vector, kb.embedder, kb.metadata)

	server, err := mcp.NewServer(engine, pipeline, kb.embedder, kb.cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("kbmcp serving",
		slog.String("transport", kb.cfg.Server.Transport),
		slog.String("data_dir", kb.dataDir),
		slog.String("embedder", kb.embedder.ModelName()))

	serveErr := server.Serve(ctx, kb.cfg.Server.Transport)

	// Documents ingested over MCP live only in memory until the HNSW
	// graph is written back.
	if err := kb.saveVectors(); err != nil {
		slog.Warn("failed to persist vectors on shutdown", slog.String("error", err.Error()))
	}

	return serveErr
}

// newEngine constructs the hybrid search engine from the loaded config.
func newEngine(kb *knowledgeBase) (*search.Engine, error) {
	engineCfg := search.DefaultConfig()
	if kb.cfg.Search.DefaultLimit > 0 {
		engineCfg.DefaultLimit = kb.cfg.Search.DefaultLimit
	}
	if kb.cfg.Search.MaxLimit > 0 {
		engineCfg.MaxLimit = kb.cfg.Search.MaxLimit
	}
	if kb.cfg.Search.RRFConstant > 0 {
		engineCfg.RRFConstant = kb.cfg.Search.RRFConstant
	}

	var opts []search.EngineOption
	if kb.cfg.Search.Weighted {
		opts = append(opts, search.WithWeightedFusion())
	}
	return search.NewEngine(kb.lexical, kb.vector, kb.embedder, kb.metadata, engineCfg, opts...)
}
