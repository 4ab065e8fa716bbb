// Package store provides the persistence layer: lexical BM25 indexes
// (SQLite FTS5 or Bleve), an HNSW vector store, and SQLite metadata.
package store

import (
	"context"
	"fmt"
	"time"
)

// State keys for the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeySchemaVersion stores the metadata schema version.
	StateKeySchemaVersion = "schema_version"
)

// CurrentSchemaVersion is the current metadata schema version.
const CurrentSchemaVersion = 1

// Document represents an ingested source document.
type Document struct {
	ID        string            // Caller-supplied or generated UUID
	Title     string            // Display title
	Path      string            // Source path or URI, may be empty
	Content   string            // Full original text
	Metadata  map[string]string // Custom metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Passage represents a stored retrievable unit of a document.
// Offsets are half-open rune offsets into the document content.
type Passage struct {
	ID         string // Content-addressed (SHA-256 of content)
	DocumentID string // Parent document ID
	Content    string
	Start      int
	End        int
	CreatedAt  time.Time
}

// IndexEntry is the input unit for the lexical index.
type IndexEntry struct {
	ID      string // Passage ID
	Content string // Passage text
}

// LexicalResult represents a single lexical (BM25) search result.
type LexicalResult struct {
	PassageID    string
	Score        float64
	MatchedTerms []string
}

// LexicalStats provides statistics about the lexical index.
type LexicalStats struct {
	EntryCount   int
	TermCount    int
	AvgDocLength float64
}

// LexicalIndex provides keyword search over passages using BM25 scoring.
type LexicalIndex interface {
	// Index adds entries to the index. Re-indexing an existing ID replaces it.
	Index(ctx context.Context, entries []*IndexEntry) error

	// Search returns entries matching query, scored by BM25, best first.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Delete removes entries from the index.
	Delete(ctx context.Context, ids []string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// AllIDs returns all entry IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	Close() error
}

// BM25Config configures the lexical index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64

	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains high-frequency English words excluded from
// the lexical index.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "if", "in", "into", "is", "it", "no", "not", "of",
	"on", "or", "such", "that", "the", "their", "then", "there",
	"these", "they", "this", "to", "was", "will", "with",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Passage ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides similarity search using the HNSW algorithm.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Clear removes all vectors.
	Clear(ctx context.Context) error

	// AllIDs returns all vector IDs in the store.
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists documents and passages in SQLite.
// It is the source of truth for what the knowledge base contains.
type MetadataStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error)
	DeleteDocuments(ctx context.Context, ids []string) error // Cascades to passages

	// Passage operations
	SavePassages(ctx context.Context, passages []*Passage) error
	GetPassage(ctx context.Context, id string) (*Passage, error)
	GetPassages(ctx context.Context, ids []string) ([]*Passage, error)
	GetPassagesByDocument(ctx context.Context, documentID string) ([]*Passage, error)
	PassageIDsByDocument(ctx context.Context, documentID string) ([]string, error)

	// State operations (key-value store for runtime state)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Counts reports document and passage totals.
	Counts(ctx context.Context) (documents, passages int, err error)

	// Clear removes all documents, passages, and state.
	Clear(ctx context.Context) error

	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (re-ingest with the current embedding model)", e.Expected, e.Got)
}
