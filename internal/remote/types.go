package remote

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Post is the wire shape of a post on /sync. Optional user fields are
// omitted when unset; body text is never null.
type Post struct {
	ID              int64   `json:"id"`
	RedditID        string  `json:"redditId"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	BodyText        string  `json:"bodyText"`
	Author          string  `json:"author"`
	Subreddit       string  `json:"subreddit"`
	RedditCreatedAt *string `json:"redditCreatedAt"`
	AddedAt         string  `json:"addedAt"`
	UpdatedAt       string  `json:"updatedAt"`
	CustomTitle     *string `json:"customTitle,omitempty"`
	CustomBody      *string `json:"customBody,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	Rating          *int    `json:"rating,omitempty"`
	IsRead          bool    `json:"isRead"`
	IsFavorite      bool    `json:"isFavorite"`
	IsDeleted       bool    `json:"isDeleted"`
	ExtraFields     *string `json:"extraFields,omitempty"`
	BodyMinHash     *string `json:"bodyMinHash,omitempty"`
	Summary         *string `json:"summary,omitempty"`
}

// SyncRequest is the body of POST /sync
type SyncRequest struct {
	Posts             []Post   `json:"posts"`
	TableName         string   `json:"table_name"`
	EmbeddingProfiles []string `json:"embedding_profiles"`
	ForceEmbed        bool     `json:"force_embed"`
}

// SyncResult is the server's verdict for one submitted post
type SyncResult struct {
	PostID    PostID  `json:"post_id"`
	Status    string  `json:"status"`
	Success   bool    `json:"success"`
	UpdatedAt *string `json:"updated_at,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// SyncResponse is the body returned by POST /sync
type SyncResponse struct {
	Results []SyncResult `json:"results"`
}

// SearchRequest is the body of POST /search
type SearchRequest struct {
	Query            string `json:"q"`
	K                int    `json:"k"`
	EmbeddingProfile string `json:"embedding_profile"`
	TableName        string `json:"table_name"`
	IncludeText      bool   `json:"include_text"`
	Collection       string `json:"collection,omitempty"` // CollectionName(EmbeddingProfile, TableName)
}

// SimilarRequest is the body of POST /similar
type SimilarRequest struct {
	PostID           int64  `json:"post_id"`
	K                int    `json:"k"`
	EmbeddingProfile string `json:"embedding_profile"`
	TableName        string `json:"table_name"`
	IncludeText      bool   `json:"include_text"`
	Collection       string `json:"collection,omitempty"`
}

// Hit is one ranked result from /search or /similar
type Hit struct {
	PostID   PostID         `json:"post_id"`
	Text     *string        `json:"text,omitempty"`
	Score    *float64       `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// SearchResponse is returned by both /search and /similar. Query is set
// for /search, PostID for /similar.
type SearchResponse struct {
	Query   string `json:"query,omitempty"`
	PostID  PostID `json:"post_id,omitzero"`
	K       int    `json:"k"`
	Results []Hit  `json:"results"`
}

// PostID holds a post id as sent by the server, which may be a JSON number
// or a numeric string. Unusable values decode without error and report
// !ok from Int64 so one bad entry never fails a whole response.
type PostID struct {
	raw json.RawMessage
}

// NewPostID wraps a numeric id for encoding
func NewPostID(id int64) PostID {
	return PostID{raw: json.RawMessage(strconv.FormatInt(id, 10))}
}

// UnmarshalJSON keeps the raw token for lazy parsing
func (p *PostID) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0], data...)
	return nil
}

// MarshalJSON writes the raw token back, or null when empty
func (p PostID) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

// IsZero lets omitzero drop an unset id
func (p PostID) IsZero() bool {
	return len(p.raw) == 0
}

// Int64 returns the id when it is a finite integral number
func (p PostID) Int64() (int64, bool) {
	raw := bytes.TrimSpace(p.raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	}

	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, true
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// String returns the raw token for logging
func (p PostID) String() string {
	return string(p.raw)
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
}

// errorBody is the error envelope for non-2xx responses
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}
