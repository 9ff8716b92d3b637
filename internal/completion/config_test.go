package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/reddit-stash/internal/storage"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), mapSettings{})
	require.NoError(t, err)

	assert.Empty(t, cfg.Endpoints)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Zero(t, cfg.IdleTimeout)
	assert.False(t, cfg.KeepPartialOnFailover)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), mapSettings{
		storage.SettingAIEndpoints:    "https://a.example/v1/chat/completions/, https://b.example/v1/chat/completions\n\n",
		storage.SettingAIAPIKey:       " sk-1 ",
		storage.SettingAIModel:        "meta/llama",
		storage.SettingAISystemPrompt: "terse",
		storage.SettingAIReferer:      "https://stash.example",
		storage.SettingAITitle:        "Reddit Stash",
		storage.SettingAIMaxTokens:    "256",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://a.example/v1/chat/completions",
		"https://b.example/v1/chat/completions",
	}, cfg.Endpoints)
	assert.Equal(t, "sk-1", cfg.APIKey)
	assert.Equal(t, "meta/llama", cfg.Model)
	assert.Equal(t, "terse", cfg.SystemPrompt)
	assert.Equal(t, "https://stash.example", cfg.Referer)
	assert.Equal(t, "Reddit Stash", cfg.Title)
	assert.Equal(t, 256, cfg.MaxTokens)
}

func TestLoadConfig_BadMaxTokens(t *testing.T) {
	for _, v := range []string{"lots", "0", "-5"} {
		cfg, err := LoadConfig(context.Background(), mapSettings{storage.SettingAIMaxTokens: v})
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens, v)
	}
}

func TestSplitEndpoints(t *testing.T) {
	assert.Empty(t, SplitEndpoints(""))
	assert.Empty(t, SplitEndpoints(" , \n "))
	assert.Equal(t, []string{"a", "b", "c"}, SplitEndpoints("a,\r\nb/\n c "))
}

func TestSummarizeRequest(t *testing.T) {
	body := "scraped body"
	custom := "my own notes"
	p := &storage.Post{Title: "Generics", Subreddit: "golang", BodyText: &body, CustomBody: &custom}

	req := SummarizeRequest(p)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "Subreddit: r/golang")
	assert.Contains(t, req.Messages[0].Content, "Title: Generics")
	assert.Contains(t, req.Messages[0].Content, "my own notes")
	assert.NotContains(t, req.Messages[0].Content, "scraped body")
}
