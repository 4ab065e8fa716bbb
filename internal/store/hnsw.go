package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore on coder/hnsw (pure Go, no CGO).
// Cosine distance over normalized vectors. Deletion is lazy: graph
// nodes are orphaned rather than unlinked, and orphans are filtered
// out of search results.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// byID and byKey map passage IDs to graph keys and back. A key
	// present in the graph but absent from byKey is an orphan.
	byID    map[string]uint64
	byKey   map[uint64]string
	nextKey uint64

	closed bool
}

// hnswSidecar is the gob-encoded companion file holding the ID
// mappings and config the graph export format does not carry.
type hnswSidecar struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

var _ VectorStore = (*HNSWStore)(nil)

func newCosineGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// NewHNSWStore creates an empty HNSW vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	return &HNSWStore{
		graph:  newCosineGraph(cfg),
		config: cfg,
		byID:   make(map[string]uint64),
		byKey:  make(map[uint64]string),
	}, nil
}

// Add inserts vectors under their IDs. Re-adding an existing ID
// orphans its previous node and inserts a fresh one; unlinking the old
// node would risk breaking the graph when the last node goes.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if oldKey, ok := s.byID[id]; ok {
			delete(s.byKey, oldKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := append([]float32(nil), vectors[i]...)
		normalizeVectorInPlace(vec)
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.byID[id] = key
		s.byKey[key] = id
	}
	return nil
}

// Search returns up to k nearest live vectors to the query.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := append([]float32(nil), query...)
	normalizeVectorInPlace(q)

	results := make([]*VectorResult, 0, k)
	for _, node := range s.graph.Search(q, k) {
		id, live := s.byKey[node.Key]
		if !live {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: d,
			Score:    distanceToScore(d),
		})
	}
	return results, nil
}

// Delete drops the ID mappings; the graph nodes become orphans.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, ok := s.byID[id]; ok {
			delete(s.byKey, key)
			delete(s.byID, id)
		}
	}
	return nil
}

// Clear rebuilds an empty graph, discarding orphans as well.
func (s *HNSWStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	s.graph = newCosineGraph(s.config)
	s.byID = make(map[string]uint64)
	s.byKey = make(map[uint64]string)
	s.nextKey = 0
	return nil
}

// AllIDs returns the IDs of all live vectors.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether a live vector exists under the ID.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.byID[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.byID)
}

// HNSWStats reports live and orphaned node counts.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns store statistics.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	return HNSWStats{
		ValidIDs:   len(s.byID),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.byID),
	}
}

// atomicFile writes via a temp file in the same directory and renames
// into place, so readers never observe a partial file.
func atomicFile(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Save persists the graph and its sidecar atomically. The sidecar goes
// second: a crash between the two leaves a loadable pair from the
// previous save plus a newer graph that Load will remap on next Save.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := atomicFile(path, func(f *os.File) error {
		if err := s.graph.Export(f); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	sidecar := hnswSidecar{IDMap: s.byID, NextKey: s.nextKey, Config: s.config}
	return atomicFile(path+".meta", func(f *os.File) error {
		if err := gob.NewEncoder(f).Encode(sidecar); err != nil {
			return fmt.Errorf("failed to encode sidecar: %w", err)
		}
		return nil
	})
}

// Load restores the graph and ID mappings from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	sidecar, err := readSidecar(path + ".meta")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.byID = sidecar.IDMap
	s.nextKey = sidecar.NextKey
	s.config = sidecar.Config
	s.byKey = make(map[uint64]string, len(s.byID))
	for id, key := range s.byID {
		s.byKey[key] = id
	}
	return nil
}

func readSidecar(path string) (*hnswSidecar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hnsw sidecar: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sidecar hnswSidecar
	if err := gob.NewDecoder(f).Decode(&sidecar); err != nil {
		return nil, fmt.Errorf("failed to decode hnsw sidecar: %w", err)
	}
	return &sidecar, nil
}

// Close releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWStoreDimensions reads the dimensionality a persisted store
// was built with. Returns 0 when no store exists at the path.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	sidecar, err := readSidecar(vectorPath + ".meta")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return sidecar.Config.Dimensions, nil
}

// normalizeVectorInPlace scales a vector to unit length in place. The
// zero vector stays zero.
func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts cosine distance (0-2) to similarity (0-1).
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
