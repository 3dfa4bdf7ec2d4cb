// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // postgres|memory
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type SecurityConfig struct {
	ActiveKeyVersion int            `yaml:"active_key_version"`
	Keys             map[int]string `yaml:"keys"`
	JWTSecret        string         `yaml:"jwt_secret"`
	TokenTTL         time.Duration  `yaml:"token_ttl"`
	AnonymizeKey     string         `yaml:"anonymize_key"`
	BcryptCost       int            `yaml:"bcrypt_cost"`
	OperatorKey      string         `yaml:"operator_key"` // X-API-Key for operator routes; empty disables them
}

type ClassifierConfig struct {
	Provider         string        `yaml:"provider"` // openai|gemini|keyword
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	ConcurrentLimit  int           `yaml:"concurrent_limit"`
	MaxContextTokens int           `yaml:"max_context_tokens"`
}

type RetentionConfig struct {
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	SweepBatch           int           `yaml:"sweep_batch"`
	SessionDays          int           `yaml:"session_days"`
	IdentityDays         int           `yaml:"identity_days"`
	DeletedIdentityGrace time.Duration `yaml:"deleted_identity_grace"`
}

type RateLimitConfig struct {
	SensitiveLimit  int           `yaml:"sensitive_limit"`
	SensitiveWindow time.Duration `yaml:"sensitive_window"`
}

type WorkerConfig struct {
	Size int `yaml:"size"`
}

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Security   SecurityConfig   `yaml:"security"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Retention  RetentionConfig  `yaml:"retention"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Worker     WorkerConfig     `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses the -config and -dev flags and loads the file they point to.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads, defaults and validates the config at path.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "postgres"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	if c.Security.ActiveKeyVersion <= 0 {
		c.Security.ActiveKeyVersion = 1
	}
	if c.Security.TokenTTL <= 0 {
		c.Security.TokenTTL = 7 * 24 * time.Hour
	}

	if c.Classifier.Provider == "" {
		c.Classifier.Provider = "keyword"
	}
	if c.Classifier.Model == "" {
		switch c.Classifier.Provider {
		case "gemini":
			c.Classifier.Model = "gemini-2.0-flash"
		default:
			c.Classifier.Model = "gpt-4o-mini"
		}
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 8 * time.Second
	}
	if c.Classifier.ConcurrentLimit <= 0 {
		c.Classifier.ConcurrentLimit = 16
	}
	if c.Classifier.MaxContextTokens <= 0 {
		c.Classifier.MaxContextTokens = 2000
	}

	if c.Retention.SweepInterval <= 0 {
		c.Retention.SweepInterval = 5 * time.Minute
	}
	if c.Retention.SweepBatch <= 0 {
		c.Retention.SweepBatch = 500
	}
	if c.Retention.SessionDays <= 0 {
		c.Retention.SessionDays = 7
	}
	if c.Retention.IdentityDays <= 0 {
		c.Retention.IdentityDays = 30
	}
	if c.Retention.DeletedIdentityGrace <= 0 {
		c.Retention.DeletedIdentityGrace = 24 * time.Hour
	}

	if c.RateLimit.SensitiveLimit <= 0 {
		c.RateLimit.SensitiveLimit = 5
	}
	if c.RateLimit.SensitiveWindow <= 0 {
		c.RateLimit.SensitiveWindow = 15 * time.Minute
	}
	if c.Worker.Size <= 0 {
		c.Worker.Size = 4
	}
}

// Validate performs the minimal checks needed to start safely.
func (c *Config) Validate() error {
	if len(c.Security.Keys) == 0 {
		return errors.New("security.keys is required")
	}
	if _, ok := c.Security.Keys[c.Security.ActiveKeyVersion]; !ok {
		return fmt.Errorf("security.keys has no entry for active_key_version %d", c.Security.ActiveKeyVersion)
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}
	if c.Security.AnonymizeKey == "" {
		c.Security.AnonymizeKey = c.Security.JWTSecret
	}
	switch c.Storage.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be postgres or memory; got %q", c.Storage.Backend)
	}
	switch c.Classifier.Provider {
	case "openai":
		if c.Classifier.OpenAIKey == "" {
			return errors.New("classifier.openai_key is required for provider openai")
		}
	case "gemini":
		if c.Classifier.GeminiKey == "" {
			return errors.New("classifier.gemini_key is required for provider gemini")
		}
	case "keyword":
	default:
		return fmt.Errorf("unknown classifier.provider %q", c.Classifier.Provider)
	}
	if c.Retention.SessionDays > 365 || c.Retention.IdentityDays > 365 {
		return errors.New("retention days must be within 1..365")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
