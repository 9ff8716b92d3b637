package completion

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

const (
	// DefaultMaxTokens caps a completion when ai_max_tokens is unset
	DefaultMaxTokens = 1024
	// DefaultModel is used when ai_model is unset
	DefaultModel = "openai/gpt-4o-mini"
)

// Config is the typed view of the ai_* settings
type Config struct {
	Endpoints    []string // chat-completions URLs, tried in order
	APIKey       string
	Model        string
	SystemPrompt string
	Referer      string
	Title        string
	MaxTokens    int

	// IdleTimeout fails an attempt when no bytes arrive for this long; 0 disables it
	IdleTimeout time.Duration
	// KeepPartialOnFailover carries streamed text into the next endpoint's
	// attempt instead of starting over
	KeepPartialOnFailover bool
}

// LoadConfig reads the ai_* settings. IdleTimeout and KeepPartialOnFailover
// come from process configuration and are left zero.
func LoadConfig(ctx context.Context, r remote.SettingsReader) (Config, error) {
	values := map[string]string{}
	for _, key := range []string{
		storage.SettingAIEndpoints,
		storage.SettingAIAPIKey,
		storage.SettingAIModel,
		storage.SettingAISystemPrompt,
		storage.SettingAIReferer,
		storage.SettingAITitle,
		storage.SettingAIMaxTokens,
	} {
		v, err := r.GetSetting(ctx, key)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read setting %s", key)
		}
		values[key] = strings.TrimSpace(v)
	}

	cfg := Config{
		Endpoints:    SplitEndpoints(values[storage.SettingAIEndpoints]),
		APIKey:       values[storage.SettingAIAPIKey],
		Model:        values[storage.SettingAIModel],
		SystemPrompt: values[storage.SettingAISystemPrompt],
		Referer:      values[storage.SettingAIReferer],
		Title:        values[storage.SettingAITitle],
		MaxTokens:    DefaultMaxTokens,
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if n, err := strconv.Atoi(values[storage.SettingAIMaxTokens]); err == nil && n > 0 {
		cfg.MaxTokens = n
	}

	return cfg, nil
}

// SplitEndpoints splits a comma or newline separated list, dropping blanks
func SplitEndpoints(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	endpoints := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimRight(strings.TrimSpace(f), "/"); f != "" {
			endpoints = append(endpoints, f)
		}
	}
	return endpoints
}
