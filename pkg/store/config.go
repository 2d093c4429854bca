package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection/pool configuration.
//
// Grounded on tarsy's pkg/database/config.go LoadConfigFromEnv: same env
// var names/defaults, same getEnvOrDefault helper shape.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the pgx connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LoadConfigFromEnv loads Config from ARGUS_DB_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("ARGUS_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ARGUS_DB_PORT: %w", err)
	}
	maxConns, _ := strconv.Atoi(getEnvOrDefault("ARGUS_DB_MAX_CONNS", "25"))
	minConns, _ := strconv.Atoi(getEnvOrDefault("ARGUS_DB_MIN_CONNS", "2"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("ARGUS_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ARGUS_DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("ARGUS_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid ARGUS_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := Config{
		Host:            getEnvOrDefault("ARGUS_DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("ARGUS_DB_USER", "argus"),
		Password:        os.Getenv("ARGUS_DB_PASSWORD"),
		Database:        getEnvOrDefault("ARGUS_DB_NAME", "argus"),
		SSLMode:         getEnvOrDefault("ARGUS_DB_SSLMODE", "disable"),
		MaxConns:        int32(maxConns),
		MinConns:        int32(minConns),
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for obvious misconfiguration.
func (c Config) Validate() error {
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("ARGUS_DB_MIN_CONNS (%d) cannot exceed ARGUS_DB_MAX_CONNS (%d)", c.MinConns, c.MaxConns)
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("ARGUS_DB_MAX_CONNS must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
