package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Deterministic is a local bag-of-words embedder: tokens hash into
// dimension buckets and the vector is L2-normalised. Identical text maps
// to an identical vector, so exact-text retrieval ranks first. Used in
// mock mode and tests where no embedding endpoint exists.
type Deterministic struct {
	Dim int
}

func (d Deterministic) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = d.embedOne(text)
	}
	return out, nil
}

func (d Deterministic) embedOne(text string) []float32 {
	dim := d.Dim
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?¿¡\"'()")
		if tok == "" {
			continue
		}
		h := xxhash.Sum64String(tok)
		vec[h%uint64(dim)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
