package remote

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

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"localhost:8000", "http://localhost:8000"},
		{"localhost:8000///", "http://localhost:8000"},
		{"https://example.com/", "https://example.com"},
		{" http://10.0.2.2:8000 ", "http://10.0.2.2:8000"},
		{"https://example.com/api/", "https://example.com/api"},
		{"/", ""},
		{"  //  ", ""},
		{"http://", ""},
		{"https:///", ""},
	}

	for _, tt := range tests {
		got := NormalizeServerURL(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got, NormalizeServerURL(got), "not idempotent for %q", tt.in)
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(context.Background(), mapSettings{})
	require.NoError(t, err)

	assert.False(t, s.Configured())
	assert.Equal(t, DefaultTableName, s.TableName)
	assert.Equal(t, DefaultProfile, s.SemanticProfile)
	assert.Equal(t, DefaultProfile, s.SimilarityProfile)
	assert.True(t, s.IncludeDeleted)
	assert.Equal(t, []string{DefaultProfile}, s.EmbeddingProfiles())
}

func TestLoadSettings_SchemeOnlyIsNotConfigured(t *testing.T) {
	for _, raw := range []string{"http://", "/", "https:///"} {
		s, err := LoadSettings(context.Background(), mapSettings{storage.SettingSyncServerURL: raw})
		require.NoError(t, err)
		assert.False(t, s.Configured(), raw)
		assert.Empty(t, s.ServerURL, raw)
	}
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(context.Background(), mapSettings{
		storage.SettingSyncServerURL:      "example.com:8000/",
		storage.SettingSyncTableName:      "bookmarks",
		storage.SettingSemanticProfile:    "bge",
		storage.SettingSimilarityProfile:  "minilm",
		storage.SettingSyncIncludeDeleted: "false",
	})
	require.NoError(t, err)

	assert.True(t, s.Configured())
	assert.Equal(t, "http://example.com:8000", s.ServerURL)
	assert.Equal(t, "bookmarks", s.TableName)
	assert.Equal(t, []string{"bge", "minilm"}, s.EmbeddingProfiles())
	assert.False(t, s.IncludeDeleted)
}

func TestLoadSettings_BadBoolKeepsDefault(t *testing.T) {
	s, err := LoadSettings(context.Background(), mapSettings{
		storage.SettingSyncIncludeDeleted: "sometimes",
	})
	require.NoError(t, err)
	assert.True(t, s.IncludeDeleted)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "chunks_default_reddit_posts", CollectionName("default", "reddit_posts"))
	assert.Equal(t, "chunks_nomic_embed_text_my_posts", CollectionName("Nomic-Embed-Text", "My Posts"))
	assert.Equal(t, "chunks_a_b__c", CollectionName(" a ", "b.-c"))
	assert.Equal(t, "chunks_caf__x", CollectionName("café", "x"))
}
