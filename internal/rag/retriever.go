// Package rag implements retrieval-augmented context assembly: embed the
// query, run a similarity search, collapse near-duplicate chunks, and
// build a citation-tracked context block.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/vector"
)

// QueryEmbedder is the single-text embedding surface the retriever needs;
// the embedding cache satisfies it.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type Retriever struct {
	embedder QueryEmbedder
	store    vector.Store
}

func NewRetriever(embedder QueryEmbedder, store vector.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Options bound a retrieval. Source, when non-empty, restricts the search
// to chunks with that exact source label.
type Options struct {
	TopK          int
	MinSimilarity float64
	Source        string
}

// Retrieve returns at most TopK chunks ordered by descending similarity.
// Finding nothing is a success: the caller gets an empty slice, never an
// error, so the orchestrator can proceed without context.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]vector.Hit, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filter map[string]string
	if opts.Source != "" {
		filter = map[string]string{"source": opts.Source}
	}
	// Over-fetch so the dedup pass still has TopK survivors to choose from.
	hits, err := r.store.Search(ctx, vec, opts.TopK*4, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	kept := make([]vector.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= opts.MinSimilarity {
			kept = append(kept, h)
		}
	}
	kept = collapseBySource(kept)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Similarity > kept[j].Similarity })
	if len(kept) > opts.TopK {
		kept = kept[:opts.TopK]
	}
	log.Debug().Int("hits", len(kept)).Int("top_k", opts.TopK).Float64("min_similarity", opts.MinSimilarity).Msg("rag_retrieve")
	return kept, nil
}

// collapseBySource keeps only the highest-similarity chunk per source
// prefix (the part before '#'). Chunked documents share a prefix, so this
// approximates maximal marginal relevance without a second embedding pass.
func collapseBySource(hits []vector.Hit) []vector.Hit {
	best := make(map[string]int, len(hits))
	out := make([]vector.Hit, 0, len(hits))
	for _, h := range hits {
		key := sourcePrefix(h.Chunk.Source)
		if idx, ok := best[key]; ok {
			if h.Similarity > out[idx].Similarity {
				out[idx] = h
			}
			continue
		}
		best[key] = len(out)
		out = append(out, h)
	}
	return out
}

func sourcePrefix(source string) string {
	if idx := strings.Index(source, "#"); idx >= 0 {
		return source[:idx]
	}
	return source
}

// AssembleContext concatenates chunk texts, each prefixed with its chunk
// id, and returns the citation list in order of first appearance.
func AssembleContext(hits []vector.Hit) (string, []string) {
	if len(hits) == 0 {
		return "", nil
	}
	var sb strings.Builder
	seen := make(map[string]bool, len(hits))
	citations := make([]string, 0, len(hits))
	for _, h := range hits {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s", h.Chunk.ID, h.Chunk.Text)
		if !seen[h.Chunk.ID] {
			seen[h.Chunk.ID] = true
			citations = append(citations, h.Chunk.ID)
		}
	}
	return sb.String(), citations
}
