// Package config handles runtime configuration: development defaults,
// an optional YAML overlay and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rosterhq/rosterd/internal/objstore"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendGit    = "git"
)

// Session modes.
const (
	SessionStore     = "store"
	SessionStateless = "stateless"
)

// Duration wraps time.Duration to accept both duration strings ("24h")
// and integer nanoseconds in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config holds all runtime settings for the rosterd server.
type Config struct {
	// Addr is the HTTP bind address.
	Addr string `yaml:"addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Backend selects the object store: memory, s3 or git.
	Backend string `yaml:"backend"`
	// S3 configures the S3-compatible backend.
	S3 objstore.S3Config `yaml:"s3"`
	// GitDir is the repository path for the git backend.
	GitDir string `yaml:"git_dir"`

	// UsersNamespace and SessionsNamespace are the object name prefixes
	// for the two documents. They must differ.
	UsersNamespace    string `yaml:"users_namespace"`
	SessionsNamespace string `yaml:"sessions_namespace"`
	// KeepVersions is how many superseded document versions to retain
	// per namespace. 0 disables pruning.
	KeepVersions int `yaml:"keep_versions"`
	// SeedPath points to a CSV file used to bootstrap an empty roster.
	SeedPath string `yaml:"seed_path"`

	// SessionMode selects the session layer: store or stateless.
	SessionMode string `yaml:"session_mode"`
	// SessionSecret signs stateless tokens. Required in stateless mode.
	SessionSecret string `yaml:"session_secret"`
	// SessionTTL is the session lifetime.
	SessionTTL Duration `yaml:"session_ttl"`

	// BcryptCost overrides the bcrypt work factor. 0 uses the default.
	BcryptCost int `yaml:"bcrypt_cost"`
	// RateLimit is login attempts allowed per client IP per minute.
	// 0 disables rate limiting.
	RateLimit int `yaml:"rate_limit"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.LogLevel = "info"
	c.Backend = BackendMemory
	c.S3 = objstore.S3Config{
		Bucket:       "rosterd",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000/",
		AccessKey:    "admin",
		SecretKey:    "secretpassword",
	}
	c.GitDir = "./data"
	c.UsersNamespace = "users"
	c.SessionsNamespace = "sessions"
	c.KeepVersions = 10
	c.SessionMode = SessionStore
	c.SessionTTL = Duration(24 * time.Hour)
	c.RateLimit = 10
}

// Load builds a Config by applying defaults, then overlaying values from
// an optional YAML file and finally from environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	setString(&c.Addr, "ROSTERD_ADDR")
	setString(&c.LogLevel, "ROSTERD_LOG_LEVEL")
	setString(&c.Backend, "ROSTERD_BACKEND")
	setString(&c.S3.Bucket, "ROSTERD_S3_BUCKET")
	setString(&c.S3.Region, "ROSTERD_S3_REGION")
	setString(&c.S3.BaseEndpoint, "ROSTERD_S3_ENDPOINT")
	setString(&c.S3.AccessKey, "ROSTERD_S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "ROSTERD_S3_SECRET_KEY")
	setString(&c.GitDir, "ROSTERD_GIT_DIR")
	setString(&c.UsersNamespace, "ROSTERD_USERS_NAMESPACE")
	setString(&c.SessionsNamespace, "ROSTERD_SESSIONS_NAMESPACE")
	setInt(&c.KeepVersions, "ROSTERD_KEEP_VERSIONS")
	setString(&c.SeedPath, "ROSTERD_SEED_PATH")
	setString(&c.SessionMode, "ROSTERD_SESSION_MODE")
	setString(&c.SessionSecret, "ROSTERD_SESSION_SECRET")
	setDuration(&c.SessionTTL, "ROSTERD_SESSION_TTL")
	setInt(&c.BcryptCost, "ROSTERD_BCRYPT_COST")
	setInt(&c.RateLimit, "ROSTERD_RATE_LIMIT")
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendS3, BackendGit:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.SessionMode {
	case SessionStore:
	case SessionStateless:
		if c.SessionSecret == "" {
			return fmt.Errorf("session_secret is required in stateless mode")
		}
	default:
		return fmt.Errorf("unknown session mode %q", c.SessionMode)
	}
	if c.UsersNamespace == c.SessionsNamespace {
		return fmt.Errorf("users and sessions namespaces must differ")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
