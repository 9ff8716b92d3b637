package embeddings

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

var _ Embedder = (*OpenAIClient)(nil)

// OpenAIClient talks to an OpenAI-compatible /v1/embeddings endpoint
type OpenAIClient struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewOpenAIClient creates a client. apiKey may be empty for local servers.
func NewOpenAIClient(baseURL, model, apiKey string, httpClient *http.Client) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  defaultHTTPClient(httpClient),
	}
}

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed generates an embedding for a single text string
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, ordered by the
// response's index field
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts cannot be empty")
	}

	var resp openAIEmbedResponse
	req := openAIEmbedRequest{Input: texts, Model: c.model}
	if err := doJSON(ctx, c.client, http.MethodPost, c.baseURL+"/v1/embeddings", c.apiKey, req, &resp); err != nil {
		return nil, errors.Wrap(err, "openai embed")
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.Newf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || result[d.Index] != nil {
			return nil, errors.Newf("invalid embedding index: %d", d.Index)
		}
		result[d.Index] = d.Embedding
	}
	return result, nil
}

// Health checks that the server lists at least one model. Servers like
// LM Studio accept any model name, so an exact match is not required.
func (c *OpenAIClient) Health(ctx context.Context) error {
	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(ctx, c.client, http.MethodGet, c.baseURL+"/v1/models", c.apiKey, nil, &models); err != nil {
		return errors.Wrap(err, "embedding server not available")
	}

	if len(models.Data) == 0 {
		return errors.New("no models loaded")
	}
	return nil
}
