// Package embed generates vector embeddings for passages and queries.
// The Ollama embedder is the default provider; a hash-based static
// embedder serves as an offline fallback.
package embed

import (
	"context"
	"math"
	"time"
)

// Batch and retry limits shared by all providers.
const (
	// MinBatchSize is the smallest batch a provider accepts
	MinBatchSize = 1

	// MaxBatchSize caps batch size to bound request memory
	MaxBatchSize = 256

	// DefaultBatchSize is used when the caller does not set one
	DefaultBatchSize = 32

	// DefaultWarmTimeout applies once the model is resident in memory
	DefaultWarmTimeout = 60 * time.Second

	// DefaultColdTimeout covers the first request, which may pull the
	// model off disk
	DefaultColdTimeout = 180 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps an idle model
	// loaded. After this much inactivity the next request pays the
	// cold-start cost again.
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries bounds retry attempts per request
	DefaultMaxRetries = 3
)

// bge-m3 constants (default model)
const (
	// DefaultDimensions is the embedding dimension for bge-m3
	DefaultDimensions = 1024
)

// Static embedder constants
const (
	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// Embed produces the vector for one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch produces vectors for several texts in one call
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector length this embedder produces
	Dimensions() int

	// ModelName identifies the underlying model
	ModelName() string

	// Available reports whether the provider can serve requests now
	Available(ctx context.Context) bool

	// Close releases provider resources
	Close() error
}

// normalizeVector scales v to unit length. A zero vector is returned
// unchanged since it has no direction to preserve.
func normalizeVector(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	mag := math.Sqrt(sq)
	if mag == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
