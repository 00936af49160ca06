package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type RemoteConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type StoreConfig struct {
	Backend   string      `yaml:"backend"` // file | sqlite | redis | memory
	Path      string      `yaml:"path"`    // file/sqlite location
	Namespace string      `yaml:"namespace"`
	Redis     RedisConfig `yaml:"redis"`
	// EncryptionKey turns on at-rest encryption of stored values. 16, 24 or
	// 32 bytes.
	EncryptionKey string `yaml:"encryption_key"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PollerProfile is the backoff contract for one family of jobs.
type PollerProfile struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

type PollerConfig struct {
	Chat           PollerProfile `yaml:"chat"`
	Upload         PollerProfile `yaml:"upload"`
	Jitter         float64       `yaml:"jitter"`
	HiddenMinDelay time.Duration `yaml:"hidden_min_delay"`
}

type ViewStateConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	RetryBase    time.Duration `yaml:"retry_base"`
	RetryMax     time.Duration `yaml:"retry_max"`
	DisableRetry bool          `yaml:"disable_retry"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type Config struct {
	Remote    RemoteConfig    `yaml:"remote"`
	Store     StoreConfig     `yaml:"store"`
	Poller    PollerConfig    `yaml:"poller"`
	ViewState ViewStateConfig `yaml:"view_state"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Locale    string          `yaml:"locale"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = 15 * time.Second
	}
	if c.Remote.MaxRetries < 0 {
		c.Remote.MaxRetries = 0
	} else if c.Remote.MaxRetries == 0 {
		c.Remote.MaxRetries = 3
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = "file"
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = "jobsync.db"
		default:
			c.Store.Path = "jobsync-state.json"
		}
	}
	if c.Store.Namespace == "" {
		c.Store.Namespace = "jobsync"
	}

	c.Poller.Chat = normalizeProfile(c.Poller.Chat, 800*time.Millisecond)
	c.Poller.Upload = normalizeProfile(c.Poller.Upload, 4*time.Second)
	if c.Poller.Jitter <= 0 || c.Poller.Jitter >= 1 {
		c.Poller.Jitter = 0.2
	}
	if c.Poller.HiddenMinDelay <= 0 {
		c.Poller.HiddenMinDelay = 10 * time.Second
	}

	if c.ViewState.Debounce <= 0 {
		c.ViewState.Debounce = 250 * time.Millisecond
	}
	if c.ViewState.RetryBase <= 0 {
		c.ViewState.RetryBase = 2 * time.Second
	}
	if c.ViewState.RetryMax <= 0 {
		c.ViewState.RetryMax = time.Minute
	}

	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8765"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
}

func normalizeProfile(p PollerProfile, base time.Duration) PollerProfile {
	if p.BaseDelay <= 0 {
		p.BaseDelay = base
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 1.5
	}
	return p
}

func (c *Config) validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required")
	}
	switch c.Store.Backend {
	case "file", "sqlite", "memory":
	case "redis":
		if c.Store.Redis.URL == "" {
			return errors.New("store.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	if k := len(c.Store.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("store.encryption_key must be 16, 24 or 32 bytes; got %d", k)
	}
	return nil
}
