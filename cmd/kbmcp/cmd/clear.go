package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/ingest"
	"github.com/kbforge/kbmcp/internal/output"
)

func newClearCmd() *cobra.Command {
	var dataDir string
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all documents from the knowledge base",
		Long: `Remove every document, passage, and vector from the knowledge base.

The index files stay in place but become empty. This cannot be undone,
so the --force flag is required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("clear removes all indexed documents; pass --force to confirm")
			}
			return runClear(cmd.Context(), cmd, dataDir)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the index data directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm removal of all documents")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command, dataDir string) error {
	out := output.New(cmd.OutOrStdout())

	kb, err := openKnowledgeBase(ctx, kbOptions{
		dataDir:          dataDir,
		embedderOverride: "static",
		exclusive:        true,
		anyDimensions:    true,
	})
	if err != nil {
		return err
	}
	defer kb.Close()

	pipeline := ingest.NewPipeline(kb.lexical, kb.vector, kb.embedder, kb.metadata)
	if err := pipeline.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear knowledge base: %w", err)
	}

	if err := kb.saveVectors(); err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	out.Success("Knowledge base cleared")
	return nil
}
