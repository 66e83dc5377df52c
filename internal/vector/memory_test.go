package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearchOrdering(t *testing.T) {
	s := NewMemory(3)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Chunk{ID: "x", Source: "a", Text: "x", Embedding: []float32{1, 0, 0}}))
	require.NoError(t, s.Upsert(ctx, Chunk{ID: "y", Source: "b", Text: "y", Embedding: []float32{0.9, 0.1, 0}}))
	require.NoError(t, s.Upsert(ctx, Chunk{ID: "z", Source: "c", Text: "z", Embedding: []float32{0, 0, 1}}))

	hits, err := s.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "y", hits[1].Chunk.ID)
}

func TestMemoryStoreRejectsWrongDimension(t *testing.T) {
	s := NewMemory(3)
	ctx := context.Background()

	err := s.Upsert(ctx, Chunk{ID: "bad", Embedding: []float32{1, 2}})
	assert.Error(t, err)

	_, err = s.Search(ctx, []float32{1, 2}, 5, nil)
	assert.Error(t, err)
}

func TestMemoryStoreSourceFilter(t *testing.T) {
	s := NewMemory(2)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, Chunk{ID: "m1", Source: "mail", Embedding: []float32{1, 0}}))
	require.NoError(t, s.Upsert(ctx, Chunk{ID: "c1", Source: "calendar", Embedding: []float32{1, 0}}))

	hits, err := s.Search(ctx, []float32{1, 0}, 10, map[string]string{"source": "mail"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].Chunk.ID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
}
