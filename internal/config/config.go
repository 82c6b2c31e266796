// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all application configuration
type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	BaseURL        string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	PlatformAPIURL string `env:"PLATFORM_API_URL" envDefault:"https://api.chatdeck.dev"`
	RedisAddr      string `env:"REDIS_ADDR"` // optional; enables delayed invalidation
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	Session SessionConfig `envPrefix:"SESSION_"`
	Loader  LoaderConfig  `envPrefix:"LOADER_"`
}

// SessionConfig controls the dashboard session cookie
type SessionConfig struct {
	Lifetime     time.Duration `env:"LIFETIME" envDefault:"12h"`
	SecureCookie bool          `env:"SECURE_COOKIE" envDefault:"false"`
}

// LoaderConfig tunes the per-user request caches
type LoaderConfig struct {
	TTL              time.Duration `env:"TTL" envDefault:"30s"`
	MaxEntries       uint64        `env:"MAX_ENTRIES" envDefault:"0"`
	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"0"`
	IdleTimeout      time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	RecomputeDelay   time.Duration `env:"RECOMPUTE_DELAY" envDefault:"30s"`
}

// Load reads a .env file if present and then the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	for name, raw := range map[string]string{"BASE_URL": c.BaseURL, "PLATFORM_API_URL": c.PlatformAPIURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.Loader.TTL <= 0 {
		return fmt.Errorf("LOADER_TTL must be positive, got %s", c.Loader.TTL)
	}
	if c.Loader.IdleTimeout <= 0 {
		return fmt.Errorf("LOADER_IDLE_TIMEOUT must be positive, got %s", c.Loader.IdleTimeout)
	}
	if c.Loader.BatchConcurrency < 0 {
		return fmt.Errorf("LOADER_BATCH_CONCURRENCY must not be negative, got %d", c.Loader.BatchConcurrency)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %v", err)
	}
	return nil
}

// HasRedis returns true if a job queue is configured
func (c Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// Level returns the configured log level, defaulting to info
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
