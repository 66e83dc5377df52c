// Package vector abstracts the semantic chunk store. The production
// implementation is Qdrant (approximate NN over cosine similarity); an
// in-memory exact-scan implementation backs mock mode and tests.
package vector

import (
	"context"
	"time"

	"github.com/ivanintech/concierge/internal/faults"
)

// Chunk is one retrievable unit of semantic memory. Chunks are never
// mutated in place; supersede by inserting a new chunk id.
type Chunk struct {
	ID        string
	Source    string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Hit is a chunk with its similarity to the query vector.
type Hit struct {
	Chunk      Chunk
	Similarity float64
}

type Store interface {
	Upsert(ctx context.Context, c Chunk) error
	// Search returns up to k hits ordered by descending similarity.
	// Vectors whose dimension differs from the store's are rejected.
	Search(ctx context.Context, vec []float32, k int, filter map[string]string) ([]Hit, error)
	Dimension() int
	Close() error
}

func checkDimension(want, got int) error {
	if got != want {
		return faults.Newf(faults.Application, "vector dimension %d does not match store dimension %d", got, want)
	}
	return nil
}
