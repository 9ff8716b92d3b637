package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/reddit-stash/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestProject_Golden(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rating := 5

	p := &storage.Post{
		ID:              7,
		RedditID:        "t3_1abcde",
		URL:             "https://www.reddit.com/r/golang/comments/1abcde/generics/",
		Title:           "Generics",
		BodyText:        strPtr("original body"),
		Author:          "gopher",
		Subreddit:       "golang",
		RedditCreatedAt: &created,
		AddedAt:         time.Date(2024, 3, 1, 10, 0, 0, 250_000_000, time.UTC),
		UpdatedAt:       time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600)),
		CustomTitle:     strPtr("My generics notes"),
		Notes:           strPtr("read later"),
		Rating:          &rating,
		IsRead:          true,
		ExtraFields:     strPtr(`{"flair":"discussion"}`),
	}

	data, err := json.MarshalIndent(Project(p), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "projection", data)
}

func TestProject_BodyNeverNull(t *testing.T) {
	p := &storage.Post{ID: 1, Title: "t"}

	data, err := json.Marshal(Project(p))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "", wire["bodyText"])
	assert.Nil(t, wire["redditCreatedAt"])
	assert.Contains(t, wire, "redditCreatedAt")
	assert.Equal(t, false, wire["isDeleted"])
	assert.NotContains(t, wire, "customBody")
}

func TestProject_CustomBodyWins(t *testing.T) {
	p := &storage.Post{BodyText: strPtr("scraped"), CustomBody: strPtr("")}
	assert.Equal(t, "", Project(p).BodyText)

	p.IsDeleted = true
	assert.True(t, Project(p).IsDeleted)
}
