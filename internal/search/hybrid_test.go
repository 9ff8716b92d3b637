package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func score(f float64) *float64 { return &f }

func TestFuse(t *testing.T) {
	keyword := []*LocalHit{
		{PostID: 1, Title: "one", Score: 4},
		{PostID: 2, Title: "two", Score: 2},
	}
	semantic := []Result{
		{PostID: 2, Score: score(0.9)},
		{PostID: 3, Score: score(0.5)},
	}

	fused, err := Fuse(keyword, semantic, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, fused, 3)

	// 1: keyword 1.0*0.5; 2: keyword 0 + semantic 1.0*0.5; 3: semantic 0
	assert.Equal(t, int64(1), fused[0].PostID)
	assert.InDelta(t, 0.5, fused[0].Score, 1e-9)
	assert.Equal(t, int64(2), fused[1].PostID)
	assert.InDelta(t, 0.5, fused[1].Score, 1e-9)
	assert.True(t, fused[1].Keyword)
	assert.True(t, fused[1].Semantic)
	assert.Equal(t, int64(3), fused[2].PostID)
	assert.InDelta(t, 0, fused[2].Score, 1e-9)
}

func TestFuse_RankWhenNoScore(t *testing.T) {
	fused, err := Fuse(nil, []Result{{PostID: 7}, {PostID: 8}, {PostID: 9}}, 2, 0)
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, int64(7), fused[0].PostID)
	assert.Equal(t, int64(8), fused[1].PostID)
}

func TestFuse_InvalidWeight(t *testing.T) {
	_, err := Fuse(nil, nil, 10, 1.5)
	assert.Error(t, err)
}

func TestNormalizeScores(t *testing.T) {
	assert.Empty(t, normalizeScores(nil))
	assert.Equal(t, map[int64]float64{1: 1, 2: 1}, normalizeScores(map[int64]float64{1: 3, 2: 3}))
	assert.Equal(t, map[int64]float64{1: 0, 2: 0.5, 3: 1}, normalizeScores(map[int64]float64{1: 2, 2: 3, 3: 4}))
}
