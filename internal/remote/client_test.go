package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Sync(t *testing.T) {
	var got SyncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sync", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"post_id":1,"success":true,"status":"synced","updated_at":"2024-03-01T12:00:00"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.Sync(context.Background(), &SyncRequest{
		Posts:             []Post{{ID: 1, Title: "t"}},
		TableName:         "reddit_posts",
		EmbeddingProfiles: []string{"default"},
		ForceEmbed:        true,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	id, ok := resp.Results[0].PostID.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.True(t, resp.Results[0].Success)
	assert.Equal(t, "2024-03-01T12:00:00", *resp.Results[0].UpdatedAt)

	assert.Equal(t, "reddit_posts", got.TableName)
	assert.True(t, got.ForceEmbed)
	assert.Equal(t, []string{"default"}, got.EmbeddingProfiles)
}

func TestClient_SyncEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Sync(context.Background(), &SyncRequest{Posts: []Post{{ID: 1}}})
	assert.ErrorIs(t, err, ErrEmptyResults)
}

func TestClient_HTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", http.StatusBadRequest, `{"detail":"table_name is required"}`, "table_name is required"},
		{"no detail", http.StatusInternalServerError, `oops`, "Internal Server Error"},
		{"null detail", http.StatusNotFound, `{"detail":null}`, "Not Found"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["q"]}]}`, `[{"loc":["q"]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Search(context.Background(), &SearchRequest{Query: "q"})
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.Status)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do request")
}

func TestClient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Similar(context.Background(), &SimilarRequest{PostID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestPostID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{`42`, 42, true},
		{`"42"`, 42, true},
		{`" 7 "`, 7, true},
		{`42.0`, 42, true},
		{`1e3`, 1000, true},
		{`42.5`, 0, false},
		{`"abc"`, 0, false},
		{`null`, 0, false},
		{`true`, 0, false},
		{`{}`, 0, false},
		{`"NaN"`, 0, false},
		{`"Infinity"`, 0, false},
	}

	for _, tt := range tests {
		var hit Hit
		require.NoError(t, json.Unmarshal([]byte(`{"post_id":`+tt.raw+`,"metadata":{}}`), &hit), tt.raw)

		id, ok := hit.PostID.Int64()
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, id, tt.raw)
	}

	var missing Hit
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":{}}`), &missing))
	_, ok := missing.PostID.Int64()
	assert.False(t, ok)
}

func TestPostID_Encode(t *testing.T) {
	data, err := json.Marshal(SearchResponse{K: 5, Results: []Hit{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":5,"results":[]}`, string(data))

	data, err = json.Marshal(SearchResponse{PostID: NewPostID(9), K: 5, Results: []Hit{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"post_id":9,"k":5,"results":[]}`, string(data))
}
