package server

import (
	"encoding/json"
	"sort"

	"github.com/renderinc/reddit-stash/internal/embeddings"
	"github.com/renderinc/reddit-stash/internal/remote"
)

type scored struct {
	chunk *Chunk
	score float64
}

// rank orders chunks by cosine similarity to query, skipping exclude (0 skips
// nothing) and chunks whose vectors do not match the query's dimension
func rank(query []float32, chunks []*Chunk, exclude int64, k int) []scored {
	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		if c.PostID == exclude || len(c.Embedding) != len(query) {
			continue
		}
		results = append(results, scored{chunk: c, score: float64(embeddings.CosineSimilarity(query, c.Embedding))})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunk.PostID < results[j].chunk.PostID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

func toHits(ranked []scored, includeText bool) []remote.Hit {
	hits := make([]remote.Hit, 0, len(ranked))
	for _, r := range ranked {
		score := r.score
		hit := remote.Hit{
			PostID:   remote.NewPostID(r.chunk.PostID),
			Score:    &score,
			Metadata: map[string]any{},
		}
		if includeText {
			text := r.chunk.Text
			hit.Text = &text
		}
		if r.chunk.Metadata != "" {
			// metadata is written by chunkMetadata, a bad row just loses it
			_ = json.Unmarshal([]byte(r.chunk.Metadata), &hit.Metadata)
		}
		hits = append(hits, hit)
	}
	return hits
}
