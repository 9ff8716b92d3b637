package embeddings

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai" // any OpenAI-compatible /v1/embeddings server (LM Studio, vLLM, ...)
)

// Embedder generates vectors for text
type Embedder interface {
	// Embed generates an embedding for a single text string
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in a single request
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Health checks that the service is reachable and the model is loaded
	Health(ctx context.Context) error
}

// Profile names one embedding configuration. Each profile gets its own
// collection on the index server.
type Profile struct {
	Provider          string `mapstructure:"provider"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"api_key"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"` // 0 = unlimited
}

// New creates an embedder for the profile, filling in provider defaults and
// wrapping it in a rate limiter when RequestsPerMinute is set.
func New(p Profile, httpClient *http.Client) (Embedder, error) {
	if p.BaseURL == "" {
		p.BaseURL = DefaultURL(p.Provider)
	}
	if p.Model == "" {
		p.Model = DefaultModel(p.Provider)
	}

	var e Embedder
	switch p.Provider {
	case ProviderOllama:
		e = NewOllamaClient(p.BaseURL, p.Model, httpClient)
	case ProviderOpenAI, "lmstudio":
		e = NewOpenAIClient(p.BaseURL, p.Model, p.APIKey, httpClient)
	default:
		return nil, errors.Newf("unsupported embedding provider: %q (supported: ollama, openai)", p.Provider)
	}

	if p.RequestsPerMinute > 0 {
		e = WithRateLimit(e, rate.NewLimiter(rate.Limit(float64(p.RequestsPerMinute)/60.0), 1))
	}
	return e, nil
}

// DefaultURL returns the default base URL for a provider
func DefaultURL(provider string) string {
	switch provider {
	case ProviderOllama:
		return "http://localhost:11434"
	case ProviderOpenAI, "lmstudio":
		return "http://localhost:1234"
	default:
		return ""
	}
}

// DefaultModel returns the default model for a provider
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOllama:
		return "nomic-embed-text"
	case ProviderOpenAI, "lmstudio":
		return "text-embedding-nomic-embed-text-v1.5"
	default:
		return ""
	}
}

type rateLimited struct {
	Embedder
	limiter *rate.Limiter
}

// WithRateLimit makes every request wait on limiter first
func WithRateLimit(e Embedder, limiter *rate.Limiter) Embedder {
	return &rateLimited{Embedder: e, limiter: limiter}
}

func (r *rateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}
	return r.Embedder.Embed(ctx, text)
}

func (r *rateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit")
	}
	return r.Embedder.EmbedBatch(ctx, texts)
}
