// Package cmd provides the CLI commands for kbmcp.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kbforge/kbmcp/internal/logging"
	"github.com/kbforge/kbmcp/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kbmcp CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbmcp",
		Short: "Local knowledge base MCP server with hybrid retrieval",
		Long: `kbmcp maintains a local knowledge base of text documents and serves
it to AI assistants over the Model Context Protocol.

Documents are split into overlapping passages, indexed for both
keyword (BM25) and semantic (embedding) retrieval, and queried with
Reciprocal Rank Fusion. Overlapping hits are merged into contiguous
spans so clients see each region of a document exactly once.

Run 'kbmcp serve' in a project directory to start the MCP server,
or use 'kbmcp ingest' and 'kbmcp search' directly from the shell.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			// Bare invocation starts the MCP server, matching how MCP
			// clients launch configured servers.
			return runServe(cmd.Context(), serveOptions{})
		},
	}

	cmd.SetVersionTemplate("kbmcp version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kbmcp/logs/")
	cmd.PersistentPreRunE = startDebugLogging
	cmd.PersistentPostRunE = stopDebugLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDebugLogging routes slog to the debug log file when --debug is set.
func startDebugLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopDebugLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
