package storage

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Settings keys shared by the CLI and the components that parse them
const (
	SettingSyncServerURL      = "sync_server_url"
	SettingSyncTableName      = "sync_table_name"
	SettingSemanticProfile    = "semantic_embedding_profile"
	SettingSimilarityProfile  = "similarity_embedding_profile"
	SettingSyncIncludeDeleted = "sync_include_deleted"
	SettingAIEndpoints        = "ai_endpoints"
	SettingAIAPIKey           = "ai_api_key"
	SettingAIModel            = "ai_model"
	SettingAISystemPrompt     = "ai_system_prompt"
	SettingAIReferer          = "ai_referer"
	SettingAITitle            = "ai_title"
	SettingAIMaxTokens        = "ai_max_tokens"
)

// GetSetting returns the stored value, or "" when the key is unset.
// Values are opaque strings; consumers parse them.
func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "get setting %s", key)
	}
	return value, nil
}

// SetSetting stores a value; an empty value removes the key
func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	if value == "" {
		_, err := d.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
		return errors.Wrapf(err, "delete setting %s", key)
	}

	_, err := d.db.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrapf(err, "set setting %s", key)
}

// AllSettings returns every stored key/value pair
func (d *DB) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, errors.Wrap(err, "list settings")
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}
