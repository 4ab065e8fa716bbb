// Package config loads kbmcp configuration from YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kbforge/kbmcp/internal/split"
)

// Config is the complete kbmcp configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Split      SplitConfig      `yaml:"split" json:"split"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// IndexConfig configures index storage.
type IndexConfig struct {
	// DataDir is the directory holding the index files.
	// Defaults to .kbmcp under the working directory.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LexicalBackend selects the lexical index backend.
	// Options: "sqlite" (default, concurrent access) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
}

// SplitConfig configures the default splitting strategy.
type SplitConfig struct {
	// Strategy is the default split strategy: "punctuation" or "window".
	Strategy string `yaml:"strategy" json:"strategy"`

	// TargetLengths configures the punctuation strategy granularities.
	TargetLengths []int `yaml:"target_lengths" json:"target_lengths"`

	// WindowSize and Stride configure the window strategy, in runes.
	WindowSize int `yaml:"window_size" json:"window_size"`
	Stride     int `yaml:"stride" json:"stride"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k).
	// Higher values reduce the impact of rank differences.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// Weighted enables the score-weighted RRF variant.
	Weighted bool `yaml:"weighted" json:"weighted"`

	// DefaultLimit is the result count when the caller gives none.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the caller-requested result count.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static". Empty selects ollama with
	// a static fallback hint in the error message.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint. Empty uses the default
	// http://localhost:11434.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			DataDir:        ".kbmcp",
			LexicalBackend: "sqlite",
		},
		Split: SplitConfig{
			Strategy:      split.StrategyPunctuation,
			TargetLengths: split.DefaultTargetLengths,
			WindowSize:    split.DefaultWindowSize,
			Stride:        split.DefaultStride,
		},
		Search: SearchConfig{
			RRFConstant:  1,
			Weighted:     false,
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty lets the factory decide, ollama first
			Model:      "",
			Dimensions: 0, // Auto-detect from embedder
			BatchSize:  32,
			OllamaHost: "",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path of the user configuration file,
// following the XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbmcp", "config.yaml")
}

// Load builds the effective configuration for dir, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/kbmcp/config.yaml)
//  3. Project config (kbmcp.yaml or kbmcp.yml in dir)
//  4. Environment variables (KBMCP_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads kbmcp.yaml or kbmcp.yml from dir when present.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{"kbmcp.yaml", "kbmcp.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply.
	return nil
}

// loadYAML merges one YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.LexicalBackend != "" {
		c.Index.LexicalBackend = other.Index.LexicalBackend
	}

	if other.Split.Strategy != "" {
		c.Split.Strategy = other.Split.Strategy
	}
	if len(other.Split.TargetLengths) > 0 {
		c.Split.TargetLengths = other.Split.TargetLengths
	}
	if other.Split.WindowSize != 0 {
		c.Split.WindowSize = other.Split.WindowSize
	}
	if other.Split.Stride != 0 {
		c.Split.Stride = other.Split.Stride
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.Weighted {
		c.Search.Weighted = true
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KBMCP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBMCP_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("KBMCP_LEXICAL_BACKEND"); v != "" {
		c.Index.LexicalBackend = v
	}
	if v := os.Getenv("KBMCP_SPLIT_STRATEGY"); v != "" {
		c.Split.Strategy = v
	}
	if v := os.Getenv("KBMCP_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("KBMCP_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KBMCP_OLLAMA_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KBMCP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KBMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KBMCP_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Index.LexicalBackend) {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("index.lexical_backend must be 'sqlite' or 'bleve', got %s", c.Index.LexicalBackend)
	}

	switch c.Split.Strategy {
	case split.StrategyPunctuation, split.StrategyWindow:
	default:
		return fmt.Errorf("split.strategy must be %q or %q, got %s",
			split.StrategyPunctuation, split.StrategyWindow, c.Split.Strategy)
	}
	for _, l := range c.Split.TargetLengths {
		if l <= 0 {
			return fmt.Errorf("split.target_lengths entries must be positive, got %d", l)
		}
	}
	if c.Split.WindowSize <= 0 {
		return fmt.Errorf("split.window_size must be positive, got %d", c.Split.WindowSize)
	}
	if c.Split.Stride <= 0 {
		return fmt.Errorf("split.stride must be positive, got %d", c.Split.Stride)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be at least default_limit, got %d < %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}

	if c.Embeddings.Provider != "" { // Empty defers to the factory
		switch strings.ToLower(c.Embeddings.Provider) {
		case "ollama", "static":
		default:
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty, got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SplitParams converts the split section to splitter parameters.
func (c *Config) SplitParams() split.Params {
	return split.Params{
		TargetLengths: c.Split.TargetLengths,
		WindowSize:    c.Split.WindowSize,
		Stride:        c.Split.Stride,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
