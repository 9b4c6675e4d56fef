package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/flashgate/flashgate/internal/admission"
	"github.com/flashgate/flashgate/internal/store"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the top-level configuration for a flashgate instance.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Admission AdmissionConfig `json:"admission"`
	Store     StoreConfig     `json:"store"`
	Seed      SeedConfig      `json:"seed"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// AdmissionConfig holds the admission policy parameters.
type AdmissionConfig struct {
	AllowCount      int64         `json:"allow_count"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	TokenTTL        time.Duration `json:"token_ttl"`
	SecretSalt      string        `json:"secret_salt"`
}

// StoreConfig selects and configures the counter store backend.
type StoreConfig struct {
	Backend string            `json:"backend"`
	Redis   store.RedisConfig `json:"redis"`
}

// SeedConfig lists the users and items served by the static directory.
type SeedConfig struct {
	Users []admission.User  `json:"users"`
	Items []admission.Stock `json:"items"`
}

// Default returns a Config with sensible defaults. The secret salt has no
// default; it must be supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Admission: AdmissionConfig{
			AllowCount:      admission.DefaultAllowCount,
			RateLimitWindow: admission.DefaultWindow,
			TokenTTL:        time.Hour,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: store.RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Admission.AllowCount <= 0 {
		return fmt.Errorf("allow_count must be positive, got %d", c.Admission.AllowCount)
	}
	if c.Admission.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive, got %s", c.Admission.RateLimitWindow)
	}
	if c.Admission.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.Admission.TokenTTL)
	}
	if c.Admission.SecretSalt == "" {
		return fmt.Errorf("secret_salt is required")
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q, must be one of: memory, redis", c.Store.Backend)
	}
	return nil
}

// LoadFile reads a JSON config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	// Use a raw intermediate struct to handle duration parsing.
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if raw.Server.Addr != "" {
		cfg.Server.Addr = raw.Server.Addr
	}
	if raw.Admission.AllowCount > 0 {
		cfg.Admission.AllowCount = raw.Admission.AllowCount
	}
	if raw.Admission.RateLimitWindow != "" {
		d, err := time.ParseDuration(raw.Admission.RateLimitWindow)
		if err != nil {
			return cfg, fmt.Errorf("parsing admission.rate_limit_window: %w", err)
		}
		cfg.Admission.RateLimitWindow = d
	}
	if raw.Admission.TokenTTL != "" {
		d, err := time.ParseDuration(raw.Admission.TokenTTL)
		if err != nil {
			return cfg, fmt.Errorf("parsing admission.token_ttl: %w", err)
		}
		cfg.Admission.TokenTTL = d
	}
	if raw.Admission.SecretSalt != "" {
		cfg.Admission.SecretSalt = raw.Admission.SecretSalt
	}
	if raw.Store.Backend != "" {
		cfg.Store.Backend = raw.Store.Backend
	}
	if raw.Store.Redis != nil {
		cfg.Store.Redis = raw.Store.Redis.RedisConfig
		if raw.Store.Redis.DialTimeoutStr != "" {
			d, err := time.ParseDuration(raw.Store.Redis.DialTimeoutStr)
			if err != nil {
				return cfg, fmt.Errorf("parsing store.redis.dial_timeout: %w", err)
			}
			cfg.Store.Redis.DialTimeout = d
		}
	}
	cfg.Seed = raw.Seed

	return cfg, nil
}

// rawConfig is the JSON-friendly representation with string durations.
type rawConfig struct {
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Admission struct {
		AllowCount      int64  `json:"allow_count"`
		RateLimitWindow string `json:"rate_limit_window"`
		TokenTTL        string `json:"token_ttl"`
		SecretSalt      string `json:"secret_salt"`
	} `json:"admission"`
	Store struct {
		Backend string          `json:"backend"`
		Redis   *rawRedisConfig `json:"redis"`
	} `json:"store"`
	Seed SeedConfig `json:"seed"`
}

// rawRedisConfig mirrors store.RedisConfig with a string dial timeout.
type rawRedisConfig struct {
	store.RedisConfig
	DialTimeoutStr string `json:"dial_timeout"`
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `{
  "server": {
    "addr": ":8080"
  },
  "admission": {
    "allow_count": 10,
    "rate_limit_window": "1h",
    "token_ttl": "1h",
    "secret_salt": "change-me"
  },
  "store": {
    "backend": "memory",
    "redis": {
      "host": "localhost",
      "port": 6379
    }
  },
  "seed": {
    "users": [{"id": 42, "name": "alice"}],
    "items": [{"id": 7, "name": "widget", "count": 100}]
  }
}
`
	return os.WriteFile(path, []byte(example), 0o644)
}
