package embedding

import "context"

// Direct adapts an Embedder to single-text lookups without caching; used
// when cache_enabled is off.
type Direct struct {
	Inner Embedder
}

func (d Direct) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := d.Inner.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
