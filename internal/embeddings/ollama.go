package embeddings

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

var _ Embedder = (*OllamaClient)(nil)

// OllamaClient talks to Ollama's /api/embed
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates an Ollama embedding client. A nil httpClient gets
// a generous default timeout.
func NewOllamaClient(baseURL, model string, httpClient *http.Client) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  defaultHTTPClient(httpClient),
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for a single text string
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts cannot be empty")
	}

	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: c.model, Input: texts}
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/api/embed", "", req, &resp); err != nil {
		return nil, errors.Wrap(err, "ollama embed")
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, errors.Newf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// Health checks that Ollama is up and the model has been pulled
func (c *OllamaClient) Health(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := doJSON(ctx, c.client, http.MethodGet, c.baseURL+"/api/tags", "", nil, &tags); err != nil {
		return errors.Wrap(err, "ollama not available")
	}

	wanted := stripModelTag(c.model)
	for _, m := range tags.Models {
		if stripModelTag(m.Name) == wanted {
			return nil
		}
	}

	return errors.WithHintf(errors.Newf("model %s not found", c.model), "run: ollama pull %s", c.model)
}

// stripModelTag removes a tag suffix ("model:latest" -> "model")
func stripModelTag(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}
