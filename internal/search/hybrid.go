package search

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// FusedHit is a post ranked by the combined keyword and semantic score
type FusedHit struct {
	PostID   int64
	Title    string
	Score    float64
	Keyword  bool // found by the local index
	Semantic bool // found by the remote index
}

// Fuse merges local keyword hits with remote semantic results.
// keywordWeight is in [0,1]; the semantic side gets the remainder. Scores are
// min-max normalized per side before weighting. Remote hits without a score
// are ranked by position.
func Fuse(keyword []*LocalHit, semantic []Result, limit int, keywordWeight float64) ([]*FusedHit, error) {
	if keywordWeight < 0 || keywordWeight > 1 {
		return nil, errors.Newf("keyword weight must be between 0 and 1, got %v", keywordWeight)
	}
	semanticWeight := 1.0 - keywordWeight

	keywordRaw := make(map[int64]float64, len(keyword))
	for _, h := range keyword {
		keywordRaw[h.PostID] = h.Score
	}

	semanticRaw := make(map[int64]float64, len(semantic))
	for rank, r := range semantic {
		score := 1.0 / float64(rank+1)
		if r.Score != nil {
			score = *r.Score
		}
		if _, seen := semanticRaw[r.PostID]; !seen {
			semanticRaw[r.PostID] = score
		}
	}

	keywordScores := normalizeScores(keywordRaw)
	semanticScores := normalizeScores(semanticRaw)

	scoreMap := make(map[int64]*FusedHit)
	for _, h := range keyword {
		if _, dup := scoreMap[h.PostID]; dup {
			continue
		}
		scoreMap[h.PostID] = &FusedHit{
			PostID:  h.PostID,
			Title:   h.Title,
			Score:   keywordScores[h.PostID] * keywordWeight,
			Keyword: true,
		}
	}

	for id, norm := range semanticScores {
		if existing, found := scoreMap[id]; found {
			existing.Score += norm * semanticWeight
			existing.Semantic = true
			continue
		}
		scoreMap[id] = &FusedHit{PostID: id, Score: norm * semanticWeight, Semantic: true}
	}

	combined := make([]*FusedHit, 0, len(scoreMap))
	for _, hit := range scoreMap {
		combined = append(combined, hit)
	}

	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		return combined[i].PostID < combined[j].PostID
	})

	if limit > 0 && len(combined) > limit {
		combined = combined[:limit]
	}

	return combined, nil
}

// normalizeScores maps scores to the 0-1 range. Equal scores all become 1.
func normalizeScores(scores map[int64]float64) map[int64]float64 {
	normalized := make(map[int64]float64, len(scores))
	if len(scores) == 0 {
		return normalized
	}

	first := true
	var minScore, maxScore float64
	for _, s := range scores {
		if first {
			minScore, maxScore = s, s
			first = false
			continue
		}
		minScore = min(minScore, s)
		maxScore = max(maxScore, s)
	}

	scoreRange := maxScore - minScore
	for id, s := range scores {
		if scoreRange == 0 {
			normalized[id] = 1.0
		} else {
			normalized[id] = (s - minScore) / scoreRange
		}
	}

	return normalized
}
