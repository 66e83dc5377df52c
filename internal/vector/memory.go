package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryStore is an exact cosine scan over an in-process map. It backs mock
// mode and tests; the interface contract matches the Qdrant adapter.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]Chunk
}

func NewMemory(dimensions int) Store {
	return &memoryStore{dimension: dimensions, chunks: make(map[string]Chunk)}
}

func (s *memoryStore) Upsert(_ context.Context, c Chunk) error {
	if err := checkDimension(s.dimension, len(c.Embedding)); err != nil {
		return err
	}
	emb := make([]float32, len(c.Embedding))
	copy(emb, c.Embedding)
	c.Embedding = emb
	s.mu.Lock()
	s.chunks[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Search(_ context.Context, vec []float32, k int, filter map[string]string) ([]Hit, error) {
	if err := checkDimension(s.dimension, len(vec)); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	hits := make([]Hit, 0, len(s.chunks))
	for _, c := range s.chunks {
		if src, ok := filter["source"]; ok && c.Source != src {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Similarity: Cosine(vec, c.Embedding)})
	}
	s.mu.RUnlock()
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *memoryStore) Dimension() int { return s.dimension }

func (s *memoryStore) Close() error { return nil }

// Cosine returns the cosine similarity of two equal-length vectors. Zero
// vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
