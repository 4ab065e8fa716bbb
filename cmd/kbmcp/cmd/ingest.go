package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/ingest"
	"github.com/kbforge/kbmcp/internal/output"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	dataDir    string
	embedder   string
	strategy   string
	documentID string
	title      string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Add documents to the knowledge base",
		Long: `Split the given text files into passages, embed them, and add them
to the lexical and vector indexes.

Each file becomes one document whose ID defaults to its cleaned path,
so ingesting the same file again replaces the previous version.

Examples:
  kbmcp ingest README.md
  kbmcp ingest docs/*.md --strategy window
  kbmcp ingest notes.txt --id meeting-notes --title "Meeting notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Override the index data directory")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedding provider: ollama, static")
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Split strategy: punctuation, window")
	cmd.Flags().StringVar(&opts.documentID, "id", "", "Document ID (single file only, defaults to file path)")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Document title (single file only, defaults to file name)")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, files []string, opts ingestOptions) error {
	if len(files) > 1 && (opts.documentID != "" || opts.title != "") {
		return fmt.Errorf("--id and --title apply to a single file only")
	}

	out := output.New(cmd.OutOrStdout())

	kb, err := openKnowledgeBase(ctx, kbOptions{
		dataDir:          opts.dataDir,
		embedderOverride: opts.embedder,
		exclusive:        true,
	})
	if err != nil {
		return err
	}
	defer kb.Close()

	strategy := opts.strategy
	if strategy == "" {
		strategy = kb.cfg.Split.Strategy
	}

	pipeline := ingest.NewPipeline(kb.lexical, kb.vector, kb.embedder, kb.metadata)

	totalPassages := 0
	for i, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		documentID := opts.documentID
		if documentID == "" {
			documentID = filepath.ToSlash(filepath.Clean(file))
		}
		title := opts.title
		if title == "" {
			title = filepath.Base(file)
		}

		receipt, err := pipeline.Ingest(ctx, ingest.Request{
			DocumentID: documentID,
			Title:      title,
			Path:       file,
			Text:       string(data),
			Strategy:   strategy,
			Params:     kb.cfg.SplitParams(),
		})
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", file, err)
		}
		totalPassages += receipt.PassageCount

		if len(files) > 1 {
			out.Progress(i+1, len(files), trimPath(file))
		}
	}

	if err := kb.saveVectors(); err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	docs := "documents"
	if len(files) == 1 {
		docs = "document"
	}
	out.Successf("Ingested %d %s (%d passages)", len(files), docs, totalPassages)
	return nil
}

// trimPath shortens long paths for the progress line.
func trimPath(path string) string {
	const max = 40
	if len(path) <= max {
		return path
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 2 {
		return path
	}
	return ".../" + parts[len(parts)-1]
}
