// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates all runtime configuration for the service.
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Engine   Engine
}

// Server captures HTTP server settings.
type Server struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Database captures PostgreSQL connection settings with local-development
// defaults. MemoryStore switches the whole persistence layer to the in-memory
// store, which is handy for demos and tests.
type Database struct {
	Host        string `env:"DB_HOST" envDefault:"localhost"`
	Port        string `env:"DB_PORT" envDefault:"5432"`
	User        string `env:"DB_USER" envDefault:"postgres"`
	Password    string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name        string `env:"DB_NAME" envDefault:"eventwaitlist"`
	SSLMode     string `env:"DB_SSLMODE" envDefault:"disable"`
	MemoryStore bool   `env:"MEMORY_STORE" envDefault:"false"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// URL builds a URL-form connection string for the given scheme
// (e.g. "pgx5" for golang-migrate).
func (d Database) URL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%s/%s?sslmode=%s",
		scheme, d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Redis captures the optional notification pub/sub sink. An empty URL means
// Redis is not configured and intents go to the log sink only.
type Redis struct {
	URL     string `env:"REDIS_URL"`
	Channel string `env:"NOTIFY_CHANNEL" envDefault:"registration-notifications"`
}

// Engine captures tunables of the registration engine itself.
type Engine struct {
	// LockWait bounds how long an operation waits for the per-event lock
	// before failing as retryable.
	LockWait time.Duration `env:"EVENT_LOCK_WAIT" envDefault:"5s"`
	// CountsTTL is how long GetCounts results may be served from cache.
	CountsTTL time.Duration `env:"COUNTS_CACHE_TTL" envDefault:"2s"`
	// NotifyQueueSize bounds the notification intent queue; intents beyond
	// it are dropped, never blocking a state transition.
	NotifyQueueSize int `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
}

// Load parses the full configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
