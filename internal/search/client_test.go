package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

type fakeBackend struct {
	search  *remote.SearchRequest
	similar *remote.SimilarRequest
	resp    *remote.SearchResponse
	err     error
}

func (f *fakeBackend) Search(ctx context.Context, req *remote.SearchRequest) (*remote.SearchResponse, error) {
	f.search = req
	return f.resp, f.err
}

func (f *fakeBackend) Similar(ctx context.Context, req *remote.SimilarRequest) (*remote.SearchResponse, error) {
	f.similar = req
	return f.resp, f.err
}

func newTestClient(settings mapSettings, backend *fakeBackend) *Client {
	return NewClient(settings, WithBackendFactory(func(string) Backend { return backend }))
}

func configured() mapSettings {
	return mapSettings{
		storage.SettingSyncServerURL:     "localhost:8000",
		storage.SettingSyncTableName:     "Reddit Posts",
		storage.SettingSemanticProfile:   "bge",
		storage.SettingSimilarityProfile: "minilm",
	}
}

func decodeHits(t *testing.T, raw string) *remote.SearchResponse {
	t.Helper()
	var resp remote.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	return &resp
}

func TestSearch_Validation(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(configured(), backend)

	_, err := c.Search(context.Background(), SearchParams{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = c.Similar(context.Background(), SimilarParams{PostID: 0})
	assert.ErrorIs(t, err, ErrInvalidPostID)

	_, err = c.Similar(context.Background(), SimilarParams{PostID: -4})
	assert.ErrorIs(t, err, ErrInvalidPostID)

	assert.Nil(t, backend.search)
	assert.Nil(t, backend.similar)
}

func TestSearch_NotConfigured(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(mapSettings{}, backend)

	_, err := c.Search(context.Background(), SearchParams{Query: "golang"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotEmpty(t, errors.GetAllHints(err))
	assert.Nil(t, backend.search)
}

func TestSearch(t *testing.T) {
	backend := &fakeBackend{resp: decodeHits(t, `{
		"query": "generics",
		"k": 5,
		"results": [
			{"post_id": 3, "text": "type params", "metadata": {"title": "Generics"}},
			{"post_id": "4", "metadata": {}},
			{"post_id": "abc", "metadata": {}},
			{"post_id": null, "metadata": {}},
			{"post_id": 5.5, "metadata": {}},
			{"post_id": 6}
		]
	}`)}
	c := newTestClient(configured(), backend)

	results, err := c.Search(context.Background(), SearchParams{Query: "  generics ", K: 5, IncludeText: true})
	require.NoError(t, err)

	require.NotNil(t, backend.search)
	assert.Equal(t, "generics", backend.search.Query)
	assert.Equal(t, 5, backend.search.K)
	assert.Equal(t, "bge", backend.search.EmbeddingProfile)
	assert.Equal(t, "Reddit Posts", backend.search.TableName)
	assert.True(t, backend.search.IncludeText)
	assert.Equal(t, "chunks_bge_reddit_posts", backend.search.Collection)

	require.Len(t, results, 3)
	assert.Equal(t, int64(3), results[0].PostID)
	assert.Equal(t, "type params", results[0].Text)
	assert.Equal(t, "Generics", results[0].Metadata["title"])
	assert.Equal(t, int64(4), results[1].PostID)
	assert.Equal(t, "", results[1].Text)
	assert.Equal(t, int64(6), results[2].PostID)
	assert.NotNil(t, results[2].Metadata)
}

func TestSearch_DefaultK(t *testing.T) {
	backend := &fakeBackend{resp: &remote.SearchResponse{}}
	c := newTestClient(configured(), backend)

	_, err := c.Search(context.Background(), SearchParams{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, DefaultK, backend.search.K)
}

func TestSimilar(t *testing.T) {
	backend := &fakeBackend{resp: decodeHits(t, `{"post_id": 1, "k": 3, "results": [{"post_id": 2, "metadata": {}}]}`)}
	c := newTestClient(configured(), backend)

	results, err := c.Similar(context.Background(), SimilarParams{PostID: 1, K: 3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].PostID)

	require.NotNil(t, backend.similar)
	assert.Equal(t, int64(1), backend.similar.PostID)
	assert.Equal(t, "minilm", backend.similar.EmbeddingProfile)
	assert.False(t, backend.similar.IncludeText)
	assert.Equal(t, "chunks_minilm_reddit_posts", backend.similar.Collection)
}

func TestSearch_TransportErrors(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	c := newTestClient(configured(), backend)

	_, err := c.Search(context.Background(), SearchParams{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, "search request failed: connection refused", err.Error())

	_, err = c.Similar(context.Background(), SimilarParams{PostID: 1})
	require.Error(t, err)
	assert.Equal(t, "similar request failed: connection refused", err.Error())
}

func TestSearch_HTTPDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"collection chunks_bge_reddit_posts not found"}`))
	}))
	defer srv.Close()

	settings := configured()
	settings[storage.SettingSyncServerURL] = srv.URL
	c := NewClient(settings)

	_, err := c.Search(context.Background(), SearchParams{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, "search request failed: collection chunks_bge_reddit_posts not found", err.Error())

	var httpErr *remote.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
}
