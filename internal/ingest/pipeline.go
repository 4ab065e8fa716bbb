// Package ingest turns raw documents into indexed passages: split,
// content-address, embed, then write to the lexical index, the vector
// store, and the metadata store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbforge/kbmcp/internal/embed"
	kberrors "github.com/kbforge/kbmcp/internal/errors"
	"github.com/kbforge/kbmcp/internal/split"
	"github.com/kbforge/kbmcp/internal/store"
)

// EmbedBatchSize is how many passages are embedded per request during
// ingestion. Smaller than the embedder's own maximum so a failed batch
// wastes little work.
const EmbedBatchSize = 50

// Request describes one document to ingest.
type Request struct {
	// DocumentID identifies the document; a UUID is generated when empty.
	// Re-ingesting an existing ID replaces the document's passages.
	DocumentID string

	// Title is the display title, may be empty.
	Title string

	// Path is the source path or URI, may be empty.
	Path string

	// Text is the full document content.
	Text string

	// Strategy selects the split strategy, default punctuation.
	Strategy string

	// Params carries strategy-specific splitting parameters.
	Params split.Params
}

// Receipt summarizes a completed ingestion.
type Receipt struct {
	DocumentID   string
	PassageCount int
	Strategy     string
}

// Pipeline coordinates document ingestion and deletion across the
// three stores. Writes are serialized; reads through the search path
// are unaffected.
type Pipeline struct {
	lexical  store.LexicalIndex
	vector   store.VectorStore
	embedder embed.Embedder
	metadata store.MetadataStore

	mu sync.Mutex
}

// NewPipeline creates an ingestion pipeline over the given stores.
func NewPipeline(
	lexical store.LexicalIndex,
	vector store.VectorStore,
	embedder embed.Embedder,
	metadata store.MetadataStore,
) *Pipeline {
	return &Pipeline{
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
	}
}

// Ingest splits, embeds, and indexes one document. All embeddings are
// generated before any index write, so an embedding failure leaves the
// stores untouched. Re-ingesting unchanged content is an upsert: the
// content-addressed passage IDs land on their existing rows.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Receipt, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, kberrors.New(kberrors.ErrCodeInvalidParameter, "document text is empty", nil)
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = split.StrategyPunctuation
	}
	splitter, err := split.New(strategy, req.Params)
	if err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	passages := splitter.Split(req.Text)
	stored := toStorePassages(docID, passages)

	texts := make([]string, len(stored))
	for i, sp := range stored {
		texts[i] = sp.Content
	}

	start := time.Now()
	embeddings, err := p.embedBatches(ctx, texts)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("failed to embed document %s", docID), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Replacing a document removes passages its new split no longer
	// produces. Orphan remnants in the indexes are tolerated.
	if req.DocumentID != "" {
		if err := p.removePassages(ctx, docID); err != nil {
			return nil, err
		}
	}

	entries := make([]*store.IndexEntry, len(stored))
	ids := make([]string, len(stored))
	for i, sp := range stored {
		entries[i] = &store.IndexEntry{ID: sp.ID, Content: sp.Content}
		ids[i] = sp.ID
	}

	if err := p.lexical.Index(ctx, entries); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIngestFailed, "failed to update lexical index", err)
	}
	if err := p.vector.Add(ctx, ids, embeddings); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIngestFailed, "failed to update vector store", err)
	}

	now := time.Now()
	doc := &store.Document{
		ID:        docID,
		Title:     req.Title,
		Path:      req.Path,
		Content:   req.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.metadata.SaveDocument(ctx, doc); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIngestFailed, "failed to save document", err)
	}
	if err := p.metadata.SavePassages(ctx, stored); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIngestFailed, "failed to save passages", err)
	}

	if err := p.storeEmbeddingInfo(ctx); err != nil {
		slog.Warn("failed to record index embedding info", slog.String("error", err.Error()))
	}

	slog.Info("document ingested",
		slog.String("document_id", docID),
		slog.String("strategy", strategy),
		slog.Int("passages", len(stored)),
		slog.Duration("elapsed", time.Since(start)))

	return &Receipt{
		DocumentID:   docID,
		PassageCount: len(stored),
		Strategy:     strategy,
	}, nil
}

// Delete removes documents and their passages from all stores. Index
// deletes are best effort; the metadata store is the source of truth,
// and orphan index entries are filtered out at query time.
func (p *Pipeline) Delete(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, docID := range documentIDs {
		if err := p.removePassages(ctx, docID); err != nil {
			return err
		}
	}
	if err := p.metadata.DeleteDocuments(ctx, documentIDs); err != nil {
		return kberrors.New(kberrors.ErrCodeIngestFailed, "failed to delete documents", err)
	}
	return nil
}

// Clear empties all three stores.
func (p *Pipeline) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.lexical.Clear(ctx); err != nil {
		return kberrors.New(kberrors.ErrCodeIngestFailed, "failed to clear lexical index", err)
	}
	if err := p.vector.Clear(ctx); err != nil {
		return kberrors.New(kberrors.ErrCodeIngestFailed, "failed to clear vector store", err)
	}
	if err := p.metadata.Clear(ctx); err != nil {
		return kberrors.New(kberrors.ErrCodeIngestFailed, "failed to clear metadata", err)
	}
	return nil
}

// Counts reports document and passage totals.
func (p *Pipeline) Counts(ctx context.Context) (documents, passages int, err error) {
	return p.metadata.Counts(ctx)
}

// removePassages drops a document's passages from both indexes, best
// effort, then from metadata.
func (p *Pipeline) removePassages(ctx context.Context, docID string) error {
	ids, err := p.metadata.PassageIDsByDocument(ctx, docID)
	if err != nil {
		return kberrors.New(kberrors.ErrCodeIngestFailed,
			fmt.Sprintf("failed to list passages of document %s", docID), err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := p.lexical.Delete(ctx, ids); err != nil {
		slog.Warn("lexical delete failed, orphans remain until compaction",
			slog.String("document_id", docID),
			slog.String("error", err.Error()))
	}
	if err := p.vector.Delete(ctx, ids); err != nil {
		slog.Warn("vector delete failed, orphans remain until compaction",
			slog.String("document_id", docID),
			slog.String("error", err.Error()))
	}
	return nil
}

// embedBatches embeds all texts in EmbedBatchSize groups, failing on
// the first batch error.
func (p *Pipeline) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += EmbedBatchSize {
		end := start + EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(embeddings))
	}
	return embeddings, nil
}

// storeEmbeddingInfo records the embedder's dimension and model so a
// later embedder change can be detected as a dimension mismatch.
func (p *Pipeline) storeEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", p.embedder.Dimensions())
	if err := p.metadata.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return err
	}
	return p.metadata.SetState(ctx, store.StateKeyIndexModel, p.embedder.ModelName())
}

// toStorePassages converts split output to store records, collapsing
// passages that hash to the same content ID. Multi-granularity splits
// of short documents can emit the same span more than once.
func toStorePassages(docID string, passages []split.Passage) []*store.Passage {
	now := time.Now()
	out := make([]*store.Passage, 0, len(passages))
	seen := make(map[string]struct{}, len(passages))
	for _, p := range passages {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, &store.Passage{
			ID:         p.ID,
			DocumentID: docID,
			Content:    p.Content,
			Start:      p.Start,
			End:        p.End,
			CreatedAt:  now,
		})
	}
	return out
}
