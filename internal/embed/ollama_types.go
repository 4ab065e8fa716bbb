package embed

import "time"

// Endpoint and pool defaults for the Ollama provider.
const (
	// DefaultOllamaHost is where a local Ollama daemon listens
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the recommended embedding model for mixed
	// Chinese/English knowledge bases. bge-m3 handles both scripts well
	// and supports long passages (8192 token context).
	DefaultOllamaModel = "bge-m3"

	// OllamaConnectTimeout for the initial health check
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize for the connection pool
	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order if the primary model is
// unavailable. All are multilingual or at least usable for the English
// half of a mixed-language knowledge base.
var FallbackOllamaModels = []string{
	"embeddinggemma",    // 308M params, multilingual, MRL support
	"nomic-embed-text",  // widely installed general text model
	"mxbai-embed-large", // English-only last resort
}

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the daemon endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: bge-m3)
	Model string

	// FallbackModels are candidates when Model is not installed
	FallbackModels []string

	// Dimensions overrides probing the model (0 means probe)
	Dimensions int

	// BatchSize bounds texts per /api/embed call (default: 32)
	BatchSize int

	// ConnectTimeout bounds the startup health check (default: 5s)
	ConnectTimeout time.Duration

	// MaxRetries bounds retries of transient failures (default: 3)
	MaxRetries int

	// PoolSize sets idle HTTP connections kept open (default: 4)
	PoolSize int

	// SkipHealthCheck bypasses the startup availability probe (tests)
	SkipHealthCheck bool

	// ProgressFunc is called after each batch with (completed, total) counts
	ProgressFunc func(completed, total int)
}

// DefaultOllamaConfig returns the stock configuration
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		Dimensions:     0, // probe the model
		BatchSize:      DefaultBatchSize,
		ConnectTimeout: OllamaConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       OllamaPoolSize,
	}
}

// OllamaEmbedRequest is the /api/embed request body
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // a string, or []string for batches
}

// OllamaEmbedResponse is the /api/embed response body
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the /api/tags response body
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes one installed model
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
