package search

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/remote"
)

// DefaultK is the number of results requested when none is given
const DefaultK = 10

var (
	ErrEmptyQuery    = errors.New("search query must not be empty")
	ErrInvalidPostID = errors.New("post id must be a positive number")
	ErrNotConfigured = errors.New("sync server is not configured")
)

// Backend answers /search and /similar
type Backend interface {
	Search(ctx context.Context, req *remote.SearchRequest) (*remote.SearchResponse, error)
	Similar(ctx context.Context, req *remote.SimilarRequest) (*remote.SearchResponse, error)
}

// SearchParams is a semantic query
type SearchParams struct {
	Query       string
	K           int
	IncludeText bool
}

// SimilarParams asks for posts near an already-synced post
type SimilarParams struct {
	PostID int64
	K      int
}

// Result is one remote hit. Text is empty unless requested.
type Result struct {
	PostID   int64
	Text     string
	Score    *float64
	Metadata map[string]any
}

// Client queries the remote index. It never touches local state; what it can
// find is bounded by what the reconciler has pushed.
type Client struct {
	settings   remote.SettingsReader
	newBackend func(serverURL string) Backend
	logger     *zap.SugaredLogger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBackendFactory replaces the HTTP backend
func WithBackendFactory(f func(serverURL string) Backend) ClientOption {
	return func(c *Client) {
		if f != nil {
			c.newBackend = f
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a search client reading server, table and profiles from settings
func NewClient(settings remote.SettingsReader, opts ...ClientOption) *Client {
	c := &Client{
		settings: settings,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newBackend == nil {
		logger := c.logger
		c.newBackend = func(serverURL string) Backend {
			return remote.NewClient(serverURL, remote.WithLogger(logger))
		}
	}
	return c
}

// Search runs a semantic query using the semantic embedding profile
func (c *Client) Search(ctx context.Context, params SearchParams) ([]Result, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	settings, err := c.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	req := &remote.SearchRequest{
		Query:            query,
		K:                normalizeK(params.K),
		EmbeddingProfile: settings.SemanticProfile,
		TableName:        settings.TableName,
		IncludeText:      params.IncludeText,
		Collection:       remote.CollectionName(settings.SemanticProfile, settings.TableName),
	}

	resp, err := c.newBackend(settings.ServerURL).Search(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "search request failed")
	}

	c.logger.Debugw("Search complete", "collection", req.Collection, "hits", len(resp.Results))
	return c.mapHits(resp.Results), nil
}

// Similar finds posts near postID using the similarity embedding profile.
// Text is never requested.
func (c *Client) Similar(ctx context.Context, params SimilarParams) ([]Result, error) {
	if params.PostID <= 0 {
		return nil, errors.Wrapf(ErrInvalidPostID, "got %d", params.PostID)
	}

	settings, err := c.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	req := &remote.SimilarRequest{
		PostID:           params.PostID,
		K:                normalizeK(params.K),
		EmbeddingProfile: settings.SimilarityProfile,
		TableName:        settings.TableName,
		IncludeText:      false,
		Collection:       remote.CollectionName(settings.SimilarityProfile, settings.TableName),
	}

	resp, err := c.newBackend(settings.ServerURL).Similar(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "similar request failed")
	}

	c.logger.Debugw("Similar complete", "collection", req.Collection, "hits", len(resp.Results))
	return c.mapHits(resp.Results), nil
}

func (c *Client) loadSettings(ctx context.Context) (remote.Settings, error) {
	settings, err := remote.LoadSettings(ctx, c.settings)
	if err != nil {
		return settings, err
	}
	if !settings.Configured() {
		return settings, errors.WithHint(ErrNotConfigured,
			"set it with: reddit-stash settings set sync_server_url <url>")
	}
	return settings, nil
}

// mapHits keeps hits whose post id parses, dropping the rest
func (c *Client) mapHits(hits []remote.Hit) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		id, ok := h.PostID.Int64()
		if !ok {
			c.logger.Debugw("Dropping hit with unusable post id", "post_id", h.PostID.String())
			continue
		}

		res := Result{PostID: id, Score: h.Score, Metadata: h.Metadata}
		if h.Text != nil {
			res.Text = *h.Text
		}
		if res.Metadata == nil {
			res.Metadata = map[string]any{}
		}
		results = append(results, res)
	}
	return results
}

func normalizeK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	return k
}
