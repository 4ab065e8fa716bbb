package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	kberrors "github.com/kbforge/kbmcp/internal/errors"
)

// OllamaEmbedder generates embeddings through Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
	// warmSince is the time of the last successful call. A model that
	// served a request recently answers within the warm timeout; one
	// that was unloaded needs the cold timeout to reload.
	warmSince time.Time
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to Ollama, resolves an embedding model,
// and detects its dimensionality unless the config pins one.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = withOllamaDefaults(cfg)

	transport := newPoolTransport(cfg.PoolSize, true)
	e := &OllamaEmbedder{
		// The client carries no Timeout of its own; every request gets
		// a context deadline in embedWithRetry instead.
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		// Cold model loads can take the better part of a minute.
		checkCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
		defer cancel()

		model, err := e.resolveModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, kberrors.New(kberrors.ErrCodeSourceUnavailable,
				"failed to connect to Ollama or find an embedding model", err).
				WithDetail("host", cfg.Host).
				WithSuggestion("start Ollama with 'ollama serve' or switch to the static provider")
		}
		e.modelName = model

		if e.dims == 0 {
			probe, err := e.postEmbed(checkCtx, []string{"dimension probe"})
			if err != nil || len(probe) == 0 || len(probe[0]) == 0 {
				transport.CloseIdleConnections()
				return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
					"failed to detect embedding dimensions", err).
					WithDetail("model", e.modelName)
			}
			e.dims = len(probe[0])
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}
	return e, nil
}

func withOllamaDefaults(cfg OllamaConfig) OllamaConfig {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	} else if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	return cfg
}

// newPoolTransport builds the pooled transport. The short idle timeout
// drops connections soon after a CLI invocation finishes.
func newPoolTransport(poolSize int, keepAlives bool) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   !keepAlives,
	}
}

// installedModels queries /api/tags for the models Ollama has pulled.
func (e *OllamaEmbedder) installedModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var list OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return list.Models, nil
}

// resolveModel picks the configured model if installed, otherwise the
// first installed fallback. Matching ignores case and accepts a bare
// name against a tagged one ("nomic-embed-text" matches ":latest").
func (e *OllamaEmbedder) resolveModel(ctx context.Context) (string, error) {
	models, err := e.installedModels(ctx)
	if err != nil {
		return "", err
	}

	lookup := func(want string) (string, bool) {
		want = strings.ToLower(want)
		wantBase, _, _ := strings.Cut(want, ":")
		for _, m := range models {
			have := strings.ToLower(m.Name)
			haveBase, _, _ := strings.Cut(have, ":")
			if have == want || haveBase == wantBase {
				return m.Name, true
			}
		}
		return "", false
	}

	if name, ok := lookup(e.config.Model); ok {
		return name, nil
	}
	for _, fallback := range e.config.FallbackModels {
		if name, ok := lookup(fallback); ok {
			slog.Warn("primary embedding model not installed, using fallback",
				slog.String("primary", e.config.Model),
				slog.String("fallback", name))
			return name, nil
		}
	}
	return "", fmt.Errorf("no embedding model available (tried %s and %v)",
		e.config.Model, e.config.FallbackModels)
}

// Embed generates the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	// Whitespace-only text maps to the zero vector, no API call.
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	vectors, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "no embedding returned", nil)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts in request-sized batches.
// Output order matches input order; blank texts get zero vectors
// without being sent to the API.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		chunk := pending[start:end]
		payload := make([]string, len(chunk))
		for i, idx := range chunk {
			payload[i] = texts[idx]
		}

		vectors, err := e.embedWithRetry(ctx, payload)
		if err != nil {
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to embed batch", err).
				WithDetail("batch_size", fmt.Sprintf("%d", len(payload)))
		}
		if len(vectors) != len(payload) {
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding count mismatch: sent %d texts, got %d vectors", len(payload), len(vectors)), nil)
		}
		for i, vec := range vectors {
			results[chunk[i]] = vec
		}

		if e.config.ProgressFunc != nil {
			e.config.ProgressFunc(end, len(pending))
		}
	}
	return results, nil
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// requestTimeout picks the warm or cold timeout from recent activity.
func (e *OllamaEmbedder) requestTimeout() time.Duration {
	e.mu.RLock()
	last := e.warmSince
	e.mu.RUnlock()

	if last.IsZero() || time.Since(last) > ModelUnloadThreshold {
		return DefaultColdTimeout
	}
	return DefaultWarmTimeout
}

func (e *OllamaEmbedder) markWarm() {
	e.mu.Lock()
	e.warmSince = time.Now()
	e.mu.Unlock()
}

// embedWithRetry wraps postEmbed in exponential backoff. Every attempt
// runs under its own warm/cold deadline derived from the parent ctx.
func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := kberrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	attempt := 0
	return kberrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		attempt++
		timeout := e.requestTimeout()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		slog.Debug("embedding attempt",
			slog.Int("attempt", attempt),
			slog.Duration("timeout", timeout),
			slog.Int("texts", len(texts)))

		vectors, err := e.postEmbed(attemptCtx, texts)
		if err != nil {
			return nil, err
		}
		e.markWarm()
		return vectors, nil
	})
}

// postEmbed performs one /api/embed request. The HTTP round trip runs
// in its own goroutine: a cancelled context returns immediately and
// force-closes connections so the pending read fails fast.
func (e *OllamaEmbedder) postEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	// The API accepts a plain string or an array.
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	type outcome struct {
		vectors [][]float32
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			done <- outcome{err: fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(msg))}
			return
		}

		var parsed OllamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			done <- outcome{err: fmt.Errorf("failed to decode response: %w", err)}
			return
		}

		vectors := make([][]float32, len(parsed.Embeddings))
		for i, raw := range parsed.Embeddings {
			vec := make([]float32, len(raw))
			for j, v := range raw {
				vec[j] = float32(v)
			}
			vectors[i] = normalizeVector(vec)
		}
		done <- outcome{vectors: vectors}
	}()

	select {
	case <-ctx.Done():
		e.ForceCloseConnections()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, ctx.Err()
	case out := <-done:
		return out.vectors, out.err
	}
}

// Dimensions returns the embedding dimensionality.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the resolved model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether Ollama is reachable and has the model.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}

	models, err := e.installedModels(ctx)
	if err != nil {
		return false
	}
	want := strings.ToLower(e.modelName)
	for _, m := range models {
		have := strings.ToLower(m.Name)
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
	}
	return false
}

// SetProgressFunc registers a callback invoked after each embedding
// batch with (completed, total) counts.
func (e *OllamaEmbedder) SetProgressFunc(fn func(completed, total int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.ProgressFunc = fn
}

// Close marks the embedder closed and drops idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}
	return nil
}

// ForceCloseConnections swaps in a fresh keep-alive-free transport so
// in-flight reads fail fast during cancellation or shutdown.
func (e *OllamaEmbedder) ForceCloseConnections() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transport == nil {
		return
	}
	e.transport.CloseIdleConnections()
	e.transport = newPoolTransport(e.config.PoolSize, false)
	e.client.Transport = e.transport
}
