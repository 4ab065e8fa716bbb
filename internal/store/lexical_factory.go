package store

import (
	"fmt"
	"os"
)

// LexicalBackend represents the lexical index backend type.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 (default).
	// WAL mode allows concurrent multi-process access.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2.
	// BoltDB holds an exclusive file lock, single process only.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex using the named backend.
// basePath is the path without extension; the extension is added per
// backend (.db for SQLite, .bleve for Bleve). An empty basePath creates
// an in-memory index.
func NewLexicalIndex(basePath string, config BM25Config, backend string) (LexicalIndex, error) {
	switch backend {
	case string(LexicalBackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteLexicalIndex(path, config)

	case string(LexicalBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectLexicalBackend detects which backend an existing index uses.
// Returns an empty string if no index exists at basePath.
func DetectLexicalBackend(basePath string) LexicalBackend {
	if fileExists(basePath + ".db") {
		return LexicalBackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return LexicalBackendBleve
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
