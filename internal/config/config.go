package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/m96-chan/chatly/internal/consts"
)

//go:embed config.toml
var defaultConfig []byte

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. CHATLY_BACKEND_URL or CHATLY_FETCH_TIMEOUT.
const EnvPrefix = "chatly"

// Config holds the application configuration.
type Config struct {
	Backend       Backend       `toml:"backend"`
	Fetch         Fetch         `toml:"fetch"`
	Users         Users         `toml:"users"`
	Unread        Unread        `toml:"unread"`
	Notifications Notifications `toml:"notifications"`
}

// Backend selects and addresses the chat server.
type Backend struct {
	Kind         string `toml:"kind" envconfig:"kind" validate:"oneof=frappe slack"`
	URL          string `toml:"url" envconfig:"url" validate:"omitempty,url"`
	Site         string `toml:"site" envconfig:"site"`
	HideArchived bool   `toml:"hide_archived" envconfig:"hide_archived"`
}

// Fetch bounds the channel listing request.
type Fetch struct {
	Timeout time.Duration `toml:"timeout" envconfig:"timeout" validate:"gt=0"`
}

// Users controls the user lookup cache.
type Users struct {
	CacheTTL  time.Duration `toml:"cache_ttl" envconfig:"cache_ttl" validate:"gt=0"`
	CacheSize int           `toml:"cache_size" envconfig:"cache_size" validate:"min=1"`
}

// Unread controls buffering and de-duplication of push events.
type Unread struct {
	BufferLimit  int `toml:"buffer_limit" envconfig:"buffer_limit" validate:"min=0"`
	DedupeWindow int `toml:"dedupe_window" envconfig:"dedupe_window" validate:"min=1"`
}

// Notifications controls desktop notification behavior.
type Notifications struct {
	Enabled bool `toml:"enabled" envconfig:"enabled"`
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, consts.Name, "config.toml")
}

// Load reads the config from the given path. If the file does not exist,
// it writes the default config and loads that. Embedded defaults are applied
// first, then the user file, then CHATLY_* environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, defaultConfig, 0o600); err != nil {
			return nil, err
		}
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// applyDefaults resolves computed defaults that can't be expressed in TOML.
func applyDefaults(cfg *Config) {
	// The Frappe realtime server namespaces sockets by site name.
	if cfg.Backend.Site == "" && cfg.Backend.URL != "" {
		if u, err := url.Parse(cfg.Backend.URL); err == nil {
			cfg.Backend.Site = u.Hostname()
		}
	}
}

// validate checks that config values are within acceptable ranges.
func validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}
