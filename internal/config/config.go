// Package config loads process configuration: an optional .env file, then
// stash.toml, then STASH_* environment variables (highest precedence).
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/renderinc/reddit-stash/internal/embeddings"
)

const EnvPrefix = "STASH"

// Config is the typed process configuration
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Log        LogConfig        `mapstructure:"log"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Server     ServerConfig     `mapstructure:"server"`
	Completion CompletionConfig `mapstructure:"completion"`
}

type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

type SyncConfig struct {
	IntervalSeconds     int `mapstructure:"interval_seconds"` // 0 = manual only
	BatchSize           int `mapstructure:"batch_size"`
	BatchTimeoutSeconds int `mapstructure:"batch_timeout_seconds"`
}

type ServerConfig struct {
	Host     string                        `mapstructure:"host"`
	Port     int                           `mapstructure:"port"`
	DBPath   string                        `mapstructure:"db_path"` // default {data_dir}/index.db
	Profiles map[string]embeddings.Profile `mapstructure:"profiles"`
}

type CompletionConfig struct {
	IdleTimeoutSeconds    int  `mapstructure:"idle_timeout_seconds"` // 0 = disabled
	KeepPartialOnFailover bool `mapstructure:"keep_partial_on_failover"`
}

// SetDefaults registers the default for every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log.json", false)

	v.SetDefault("sync.interval_seconds", 300)
	v.SetDefault("sync.batch_size", 10)
	v.SetDefault("sync.batch_timeout_seconds", 30)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 6893)
	v.SetDefault("server.db_path", "")
	v.SetDefault("server.profiles", map[string]any{
		"default": map[string]any{
			"provider": embeddings.ProviderOllama,
			"model":    embeddings.DefaultModel(embeddings.ProviderOllama),
		},
	})

	v.SetDefault("completion.idle_timeout_seconds", 0)
	v.SetDefault("completion.keep_partial_on_failover", false)
}

// New builds a viper instance with env binding and defaults. configFile may
// be empty, in which case stash.toml is looked up in the working directory.
func New(configFile string) *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("stash")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	return v
}

// Load reads .env (if present), the config file and the environment.
// overrides (typically from command-line flags) win over every other source.
func Load(configFile string, overrides map[string]any) (*Config, error) {
	// A missing .env is normal
	_ = godotenv.Load()

	v := New(configFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	return FromViper(v)
}

// FromViper unmarshals and validates an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = filepath.Join(cfg.DataDir, "index.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("data_dir must not be empty")
	case c.Sync.IntervalSeconds < 0:
		return errors.Newf("sync.interval_seconds must be >= 0, got %d", c.Sync.IntervalSeconds)
	case c.Sync.BatchSize <= 0:
		return errors.Newf("sync.batch_size must be > 0, got %d", c.Sync.BatchSize)
	case c.Sync.BatchTimeoutSeconds <= 0:
		return errors.Newf("sync.batch_timeout_seconds must be > 0, got %d", c.Sync.BatchTimeoutSeconds)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return errors.Newf("server.port out of range: %d", c.Server.Port)
	case c.Completion.IdleTimeoutSeconds < 0:
		return errors.Newf("completion.idle_timeout_seconds must be >= 0, got %d", c.Completion.IdleTimeoutSeconds)
	}
	return nil
}

// DBPath is the local post database
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "stash.db")
}

// IndexPath is the local bleve keyword index
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "bleve")
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.Sync.BatchTimeoutSeconds) * time.Second
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Completion.IdleTimeoutSeconds) * time.Second
}

// ServerAddr is host:port for the index server
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
