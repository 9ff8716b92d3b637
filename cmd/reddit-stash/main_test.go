package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/reddit-stash/internal/embeddings"
	"github.com/renderinc/reddit-stash/internal/server"
)

// letterEmbedder maps text to letter frequencies, enough for a stable ranking
type letterEmbedder struct{}

func (letterEmbedder) vector(text string) []float32 {
	vec := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			vec[r-'a']++
		}
	}
	return vec
}

func (e letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (letterEmbedder) Health(ctx context.Context) error { return nil }

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(t, err, buf.String())
	return buf.String()
}

func TestCLI_EndToEnd(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	store, err := server.OpenChunkStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	srv := httptest.NewServer(server.New(server.NewService(store, map[string]embeddings.Embedder{
		"default": letterEmbedder{},
	}), nil).Handler())
	defer srv.Close()

	body := "Type parameters landed in Go 1.18 and changed how generic code is written"

	out := execute(t, "--data-dir", dir, "add", "--url", "https://reddit.com/r/golang/1", "--title", "Go generics", "--body", body, "--subreddit", "golang")
	assert.Contains(t, out, "Added post 1")

	out = execute(t, "--data-dir", dir, "add", "--url", "https://reddit.com/r/golang/2", "--title", "Generics again", "--body", body, "--subreddit", "golang")
	assert.Contains(t, out, "Added post 2")
	assert.Contains(t, out, "Possible duplicates")

	execute(t, "--data-dir", dir, "settings", "set", "sync_server_url", srv.URL)
	out = execute(t, "--data-dir", dir, "settings", "get", "sync_server_url")
	assert.Equal(t, srv.URL+"\n", out)

	out = execute(t, "--data-dir", dir, "sync")
	assert.Contains(t, out, "Synced 2 of 2 posts")

	out = execute(t, "--data-dir", dir, "sync")
	assert.Contains(t, out, "Nothing to sync")

	out = execute(t, "--data-dir", dir, "edit", "1", "--notes", "read later")
	assert.Contains(t, out, "Updated post 1")
	assert.Contains(t, out, "Synced 1 of 1 posts")

	out = execute(t, "--data-dir", dir, "sync")
	assert.Contains(t, out, "Nothing to sync")

	out = execute(t, "--data-dir", dir, "search", "generic", "code")
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "[2]")

	out = execute(t, "--data-dir", dir, "search", "--local", "generics")
	assert.Contains(t, out, "Go generics")

	execute(t, "--data-dir", dir, "delete", "2")
	out = execute(t, "--data-dir", dir, "sync")
	assert.Contains(t, out, "Synced 1 of 1 posts")

	out = execute(t, "--data-dir", dir, "stats")
	assert.Contains(t, out, "Posts:          1")
	assert.Contains(t, out, "Pending sync:   0")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-1", "abc", "1.5"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "*****6789", maskSecret("ai_api_key", "sk-456789"))
	assert.Equal(t, "abc", maskSecret("ai_api_key", "abc"))
	assert.Equal(t, "http://x", maskSecret("sync_server_url", "http://x"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview(" a\n b\tc ", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}
