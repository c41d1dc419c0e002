package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8080" || cfg.Backend != BackendMemory || cfg.SessionTTL != Duration(24*time.Hour) {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosterd.yaml")
	body := "addr: \":9999\"\nbackend: git\ngit_dir: /tmp/roster\nsession_ttl: 1h\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9999" || cfg.Backend != BackendGit || cfg.GitDir != "/tmp/roster" {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.SessionTTL != Duration(time.Hour) {
		t.Errorf("duration not parsed: %v", cfg.SessionTTL)
	}
	// Untouched fields keep their defaults.
	if cfg.UsersNamespace != "users" {
		t.Errorf("default lost: %+v", cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosterd.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROSTERD_ADDR", ":7777")
	t.Setenv("ROSTERD_KEEP_VERSIONS", "3")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":7777" {
		t.Errorf("env must win over file, got %q", cfg.Addr)
	}
	if cfg.KeepVersions != 3 {
		t.Errorf("got %d", cfg.KeepVersions)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "dynamo" }},
		{"stateless without secret", func(c *Config) { c.SessionMode = SessionStateless; c.SessionSecret = "" }},
		{"colliding namespaces", func(c *Config) { c.SessionsNamespace = c.UsersNamespace }},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.LoadDefaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
