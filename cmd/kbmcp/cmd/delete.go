package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/ingest"
	"github.com/kbforge/kbmcp/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "delete <document-id>...",
		Short: "Remove documents from the knowledge base",
		Long: `Remove the named documents and their passages from all indexes.

Document IDs are the values shown by 'kbmcp search' and 'kbmcp status',
typically the file path used at ingest time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, args, dataDir)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the index data directory")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, documentIDs []string, dataDir string) error {
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
	if err := pipeline.Delete(ctx, documentIDs); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	if err := kb.saveVectors(); err != nil {
		return fmt.Errorf("failed to persist vectors: %w", err)
	}

	docs := "documents"
	if len(documentIDs) == 1 {
		docs = "document"
	}
	out.Successf("Deleted %d %s", len(documentIDs), docs)
	return nil
}
