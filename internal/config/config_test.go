package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestDefaultPath(t *testing.T) {
	p := DefaultPath()
	if p == "" {
		t.Fatal("DefaultPath returned empty string")
	}
	if filepath.Base(p) != "config.toml" {
		t.Errorf("DefaultPath should end with config.toml, got %s", p)
	}
}

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}

	if cfg.Backend.Kind != "frappe" {
		t.Errorf("expected backend.kind=frappe, got %s", cfg.Backend.Kind)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("expected fetch.timeout=10s, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Users.CacheTTL != 10*time.Minute {
		t.Errorf("expected users.cache_ttl=10m, got %s", cfg.Users.CacheTTL)
	}
	if cfg.Unread.BufferLimit != 256 {
		t.Errorf("expected unread.buffer_limit=256, got %d", cfg.Unread.BufferLimit)
	}
	if !cfg.Backend.HideArchived {
		t.Error("expected backend.hide_archived=true from defaults")
	}
	if cfg.Backend.URL != "" || cfg.Backend.Site != "" {
		t.Errorf("expected no site by default, got %q %q", cfg.Backend.URL, cfg.Backend.Site)
	}
}

func TestLoadPartialOverridePreservesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	partial := []byte("[backend]\nurl = \"https://erp.example.com\"\n\n[fetch]\ntimeout = \"3s\"\n")
	if err := os.WriteFile(path, partial, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fetch.Timeout != 3*time.Second {
		t.Errorf("expected fetch.timeout=3s, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Users.CacheSize != 512 {
		t.Errorf("expected users.cache_size=512 from defaults, got %d", cfg.Users.CacheSize)
	}
	if cfg.Backend.Site != "erp.example.com" {
		t.Errorf("expected site derived from url, got %q", cfg.Backend.Site)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := []byte("[backend]\nurl = \"https://erp.example.com\"\n\n[users]\ncache_size = 64\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CHATLY_USERS_CACHE_SIZE", "32")
	t.Setenv("CHATLY_FETCH_TIMEOUT", "1m")
	t.Setenv("CHATLY_NOTIFICATIONS_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Users.CacheSize != 32 {
		t.Errorf("expected env to override cache_size, got %d", cfg.Users.CacheSize)
	}
	if cfg.Fetch.Timeout != time.Minute {
		t.Errorf("expected env to override timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Notifications.Enabled {
		t.Error("expected notifications disabled by env")
	}
}

func TestSlackBackendNeedsNoURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[backend]\nkind = \"slack\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Kind != "slack" {
		t.Errorf("expected slack, got %s", cfg.Backend.Kind)
	}
}

func TestValidationRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"unknown backend", "[backend]\nkind = \"irc\"\nurl = \"https://a.example.com\"\n"},
		{"bad url", "[backend]\nurl = \"not a url\"\n"},
		{"zero timeout", "[backend]\nurl = \"https://a.example.com\"\n[fetch]\ntimeout = \"0s\"\n"},
		{"zero cache size", "[backend]\nurl = \"https://a.example.com\"\n[users]\ncache_size = 0\n"},
		{"negative buffer", "[backend]\nurl = \"https://a.example.com\"\n[unread]\nbuffer_limit = -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.toml")
			if err := os.WriteFile(path, []byte(tt.config), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestInvalidTOMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not valid [[ toml"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid TOML, got nil")
	}
}

func TestEmbeddedConfigIsValidTOML(t *testing.T) {
	var cfg Config
	if err := toml.Unmarshal(defaultConfig, &cfg); err != nil {
		t.Fatalf("embedded config.toml is not valid TOML: %v", err)
	}
}
