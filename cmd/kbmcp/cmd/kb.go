package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kbforge/kbmcp/internal/config"
	"github.com/kbforge/kbmcp/internal/embed"
	"github.com/kbforge/kbmcp/internal/store"
)

// knowledgeBase bundles the open stores and embedder for one data
// directory. Commands open it, do their work, and Close it.
type knowledgeBase struct {
	cfg      *config.Config
	dataDir  string
	lexical  store.LexicalIndex
	vector   *store.HNSWStore
	metadata store.MetadataStore
	embedder embed.Embedder
	lock     *store.IndexLock

	vectorPath string

	// embedderFallback is true when the configured embedder could not
	// be reached and the static one stands in.
	embedderFallback bool
}

// kbOptions adjusts how the knowledge base is opened.
type kbOptions struct {
	// dataDir overrides cfg.Index.DataDir when non-empty.
	dataDir string
	// embedderOverride forces a provider ("ollama" or "static").
	embedderOverride string
	// exclusive takes the index lock. Mutating commands set this so
	// concurrent writers cannot interleave index updates.
	exclusive bool
	// anyDimensions opens the vector store at the on-disk dimension
	// instead of requiring it to match the embedder. Commands that
	// never embed (delete, clear, status) set this.
	anyDimensions bool
	// fallbackStatic substitutes the static embedder when the
	// configured one is unreachable, instead of failing.
	fallbackStatic bool
}

// openKnowledgeBase loads configuration and opens all stores.
func openKnowledgeBase(ctx context.Context, opts kbOptions) (*knowledgeBase, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	dataDir := cfg.Index.DataDir
	if opts.dataDir != "" {
		dataDir = opts.dataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	kb := &knowledgeBase{
		cfg:        cfg,
		dataDir:    dataDir,
		vectorPath: filepath.Join(dataDir, "vectors.hnsw"),
	}

	if opts.exclusive {
		kb.lock = store.NewIndexLock(dataDir)
		acquired, err := kb.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire index lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("index in %s is locked by another process", dataDir)
		}
	}

	closeOnErr := func() {
		kb.Close()
	}

	kb.metadata, err = store.NewSQLiteMetadataStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	lexicalBase := filepath.Join(dataDir, "lexical")
	backend := cfg.Index.LexicalBackend
	if detected := store.DetectLexicalBackend(lexicalBase); detected != "" {
		backend = string(detected)
	}
	kb.lexical, err = store.NewLexicalIndex(lexicalBase, store.DefaultBM25Config(), backend)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("failed to open lexical index: %w", err)
	}

	kb.embedder, err = newEmbedderFromConfig(ctx, cfg, opts.embedderOverride)
	if err != nil {
		if !opts.fallbackStatic {
			closeOnErr()
			return nil, err
		}
		slog.Warn("configured embedder unreachable, using static fallback",
			slog.String("error", err.Error()))
		kb.embedder = embed.NewStaticEmbedder()
		kb.embedderFallback = true
	}

	dimensions := kb.embedder.Dimensions()
	if existing, err := store.ReadHNSWStoreDimensions(kb.vectorPath); err == nil && existing > 0 && existing != dimensions {
		if opts.anyDimensions {
			dimensions = existing
		} else {
			closeOnErr()
			return nil, fmt.Errorf(
				"index was built with %d-dimensional embeddings but the active embedder produces %d.\nRun 'kbmcp clear --force' and re-ingest, or switch back to the original embedder",
				existing, dimensions)
		}
	}

	kb.vector, err = store.NewHNSWStore(store.DefaultVectorStoreConfig(dimensions))
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if _, err := os.Stat(kb.vectorPath); err == nil {
		if loadErr := kb.vector.Load(kb.vectorPath); loadErr != nil {
			slog.Warn("failed to load vectors, starting empty",
				slog.String("path", kb.vectorPath),
				slog.String("error", loadErr.Error()))
		}
	}

	return kb, nil
}

// newEmbedderFromConfig builds the embedder the config names, with an
// optional provider override from a CLI flag.
func newEmbedderFromConfig(ctx context.Context, cfg *config.Config, override string) (embed.Embedder, error) {
	providerName := cfg.Embeddings.Provider
	if override != "" {
		if !embed.IsValidProvider(override) {
			return nil, fmt.Errorf("unknown embedder %q (valid options: %s, %s)",
				override, embed.ProviderOllama, embed.ProviderStatic)
		}
		providerName = override
	}
	return embed.NewEmbedder(ctx, embed.ParseProvider(providerName), cfg.Embeddings.Model)
}

// saveVectors persists the HNSW graph to disk.
func (kb *knowledgeBase) saveVectors() error {
	if kb.vector == nil {
		return nil
	}
	return kb.vector.Save(kb.vectorPath)
}

// Close releases all open resources. Safe on a partially opened base.
func (kb *knowledgeBase) Close() {
	if kb.embedder != nil {
		_ = kb.embedder.Close()
	}
	if kb.vector != nil {
		_ = kb.vector.Close()
	}
	if kb.lexical != nil {
		_ = kb.lexical.Close()
	}
	if kb.metadata != nil {
		_ = kb.metadata.Close()
	}
	if kb.lock != nil {
		_ = kb.lock.Unlock()
	}
}
