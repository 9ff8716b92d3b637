package server

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkStore(t *testing.T) {
	store, err := OpenChunkStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	coll := "chunks_default_reddit_posts"

	_, err = store.All(ctx, coll)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))

	hash, err := store.Hash(ctx, coll, 1)
	require.NoError(t, err)
	assert.Empty(t, hash)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, coll, &Chunk{
		PostID: 1, ContentHash: "h1", Text: "hello", Metadata: `{"title":"t"}`, Embedding: []float32{1, 2}, UpdatedAt: at,
	}))
	require.NoError(t, store.Upsert(ctx, coll, &Chunk{
		PostID: 1, ContentHash: "h2", Text: "hello again", Metadata: `{}`, Embedding: []float32{3, 4}, UpdatedAt: at,
	}))

	c, err := store.Get(ctx, coll, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "h2", c.ContentHash)
	assert.Equal(t, []float32{3, 4}, c.Embedding)
	assert.True(t, at.Equal(c.UpdatedAt))

	require.NoError(t, store.TouchMetadata(ctx, coll, 1, `{"title":"new"}`, at.Add(time.Hour)))
	c, err = store.Get(ctx, coll, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"new"}`, c.Metadata)
	assert.Equal(t, "h2", c.ContentHash)

	missing, err := store.Get(ctx, coll, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{coll}, names)

	require.NoError(t, store.Delete(ctx, coll, 1))
	all, err := store.All(ctx, coll)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, store.Delete(ctx, "chunks_never_made", 1))
}

func TestValidCollection(t *testing.T) {
	assert.True(t, validCollection("chunks_nomic_embed_text_reddit_posts"))
	assert.False(t, validCollection("posts"))
	assert.False(t, validCollection("chunks_x; DROP TABLE posts"))
	assert.False(t, validCollection("chunks_Upper"))

	store, err := OpenChunkStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	assert.Error(t, store.Upsert(context.Background(), "bad name", &Chunk{PostID: 1}))
}
