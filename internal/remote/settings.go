package remote

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/renderinc/reddit-stash/internal/storage"
)

const (
	// DefaultTableName is the logical collection used when none is configured
	DefaultTableName = "reddit_posts"
	// DefaultProfile is the embedding profile used when none is configured
	DefaultProfile = "default"
)

// SettingsReader reads opaque string settings
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// Settings is the typed view of the sync/search settings keys. It is
// reloaded on every operation so edits take effect without a restart.
type Settings struct {
	ServerURL         string // normalized; "" means not configured
	TableName         string
	SemanticProfile   string
	SimilarityProfile string
	IncludeDeleted    bool // sync soft-deleted posts so the server can tombstone them
}

// Configured reports whether a sync server is set
func (s Settings) Configured() bool {
	return s.ServerURL != ""
}

// EmbeddingProfiles returns the semantic and similarity profiles, de-duplicated
func (s Settings) EmbeddingProfiles() []string {
	profiles := []string{s.SemanticProfile}
	if s.SimilarityProfile != s.SemanticProfile {
		profiles = append(profiles, s.SimilarityProfile)
	}
	return profiles
}

// LoadSettings reads and parses the sync settings
func LoadSettings(ctx context.Context, r SettingsReader) (Settings, error) {
	get := func(key string) (string, error) {
		v, err := r.GetSetting(ctx, key)
		if err != nil {
			return "", errors.Wrapf(err, "read setting %s", key)
		}
		return strings.TrimSpace(v), nil
	}

	var s Settings

	raw, err := get(storage.SettingSyncServerURL)
	if err != nil {
		return s, err
	}
	s.ServerURL = NormalizeServerURL(raw)

	if s.TableName, err = get(storage.SettingSyncTableName); err != nil {
		return s, err
	}
	if s.TableName == "" {
		s.TableName = DefaultTableName
	}

	if s.SemanticProfile, err = get(storage.SettingSemanticProfile); err != nil {
		return s, err
	}
	if s.SemanticProfile == "" {
		s.SemanticProfile = DefaultProfile
	}

	if s.SimilarityProfile, err = get(storage.SettingSimilarityProfile); err != nil {
		return s, err
	}
	if s.SimilarityProfile == "" {
		s.SimilarityProfile = DefaultProfile
	}

	if raw, err = get(storage.SettingSyncIncludeDeleted); err != nil {
		return s, err
	}
	s.IncludeDeleted = true
	if b, perr := strconv.ParseBool(raw); perr == nil {
		s.IncludeDeleted = b
	}

	return s, nil
}

// NormalizeServerURL prefixes http:// when no scheme is present and strips
// trailing slashes. A URL with nothing after the scheme is empty. Applying
// it twice gives the same result.
func NormalizeServerURL(raw string) string {
	scheme, rest := "http://", strings.TrimSpace(raw)
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme, rest = rest[:i+3], rest[i+3:]
	}
	rest = strings.TrimRight(rest, "/")
	if rest == "" {
		return ""
	}
	return scheme + rest
}
