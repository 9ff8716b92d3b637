// Package remote is the HTTP client and wire contract for the remote
// embedding/search server: POST /sync, /search, /similar and GET /health.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyResults is returned by Sync when the server answers a non-empty
// request with no results at all
var ErrEmptyResults = errors.New("server returned no sync results")

// HTTPError is a non-2xx response from the server
type HTTPError struct {
	Status     int
	StatusText string
	Detail     string
}

// Error prefers the server's detail message over the status text
func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.StatusText
}

// Client is a remote index server client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the request logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the server at baseURL. The URL is
// normalized, so "localhost:8000/" and "http://localhost:8000" are equivalent.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: NormalizeServerURL(baseURL),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized server URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Sync submits a batch of posts. A response with zero results for a
// non-empty request is reported as ErrEmptyResults.
func (c *Client) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	var resp SyncResponse
	if err := c.post(ctx, "/sync", req, &resp); err != nil {
		return nil, err
	}
	if len(req.Posts) > 0 && len(resp.Results) == 0 {
		return nil, ErrEmptyResults
	}
	return &resp, nil
}

// Search runs a semantic query against one collection
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Similar finds posts near an already-synced post
func (c *Client) Similar(ctx context.Context, req *SimilarRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.post(ctx, "/similar", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the server is reachable
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	return c.do(ctx, http.MethodPost, path, jsonData, result)
}

// do performs one request and decodes a JSON response into result
func (c *Client) do(ctx context.Context, method, path string, body []byte, result any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	c.logger.Debugw("Remote request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(resp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errors.Wrap(err, "unmarshal response")
		}
	}

	return nil
}

func newHTTPError(resp *http.Response, body []byte) *HTTPError {
	statusText := http.StatusText(resp.StatusCode)
	if statusText == "" {
		statusText = strings.TrimSpace(resp.Status)
	}

	httpErr := &HTTPError{Status: resp.StatusCode, StatusText: statusText}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil {
			httpErr.Detail = detail
		} else if string(eb.Detail) != "null" {
			// Validation errors arrive as structured detail
			httpErr.Detail = string(eb.Detail)
		}
	}

	return httpErr
}
