package database

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds database connection and pool settings.
type Config struct {
	// URL is the postgres:// connection string. Empty means the engine
	// runs on the in-memory store.
	URL string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Configured reports whether a database was configured at all.
func (c Config) Configured() bool {
	return c.URL != ""
}

// Validate rejects configs Connect cannot act on.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("database URL is required")
	}
	if c.MinConns > c.MaxConns && c.MaxConns > 0 {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// LoadConfigFromEnv builds the database config from the environment.
// DATABASE_URL wins; otherwise a URL is composed from the DB_* variables
// when DB_HOST is set. With neither present the config is unconfigured and
// the caller falls back to the in-memory store.
func LoadConfigFromEnv() (Config, error) {
	maxConns, err := envInt("DB_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	minConns, err := envInt("DB_MIN_CONNS", 2)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		URL:             os.Getenv("DATABASE_URL"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
	if cfg.URL != "" {
		return cfg, nil
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		return cfg, nil
	}
	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		return Config{}, errors.New("DB_PASSWORD is required when connecting via DB_HOST")
	}
	if _, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432")); err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnvOrDefault("DB_USER", "swarmd"), password),
		Host:     host + ":" + getEnvOrDefault("DB_PORT", "5432"),
		Path:     getEnvOrDefault("DB_NAME", "swarmd"),
		RawQuery: "sslmode=" + getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	cfg.URL = u.String()
	return cfg, nil
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
