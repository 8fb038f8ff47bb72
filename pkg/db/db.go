// Package db provides PostgreSQL connection utilities for the snapshot store.
package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/voxreel/pkg/buildinfo"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// ApplicationName is reported to the server. Defaults to voxreel/<version>.
	ApplicationName string
}

// DefaultConfig returns a Config suited to a short-lived CLI process.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "voxreel",
		User:            "voxreel",
		Password:        "",
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        0,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		ApplicationName: buildinfo.UserAgent("voxreel"),
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - VOXREEL_DB_HOST: Database host (default: localhost)
//   - VOXREEL_DB_PORT: Database port (default: 5432)
//   - VOXREEL_DB_NAME: Database name (default: voxreel)
//   - VOXREEL_DB_USER: Database user (default: voxreel)
//   - VOXREEL_DB_PASSWORD: Database password
//   - VOXREEL_DB_SSLMODE: SSL mode (default: disable)
//   - VOXREEL_DB_MAX_CONNS: Maximum connections (default: 4)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("VOXREEL_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("VOXREEL_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if database := os.Getenv("VOXREEL_DB_NAME"); database != "" {
		cfg.Database = database
	}
	if user := os.Getenv("VOXREEL_DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("VOXREEL_DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if sslmode := os.Getenv("VOXREEL_DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	if maxConns := os.Getenv("VOXREEL_DB_MAX_CONNS"); maxConns != "" {
		if mc, err := strconv.ParseInt(maxConns, 10, 32); err == nil {
			cfg.MaxConns = int32(mc)
		}
	}

	return cfg
}

// ConnectionString builds a PostgreSQL connection string from the config.
func (c *Config) ConnectionString() string {
	s := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
	if c.ApplicationName != "" {
		s += "&application_name=" + url.QueryEscape(c.ApplicationName)
	}
	return s
}

// Redacted returns the connection string with the password masked.
func (c *Config) Redacted() string {
	cp := *c
	if cp.Password != "" {
		cp.Password = "xxxxx"
	}
	return cp.ConnectionString()
}

// Validate checks if the config has required fields set.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max connections (%d) must be >= min connections (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

// Connect creates a new connection pool with the given configuration.
// The caller is responsible for calling pool.Close() when done.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify the connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Redacted(), err)
	}

	return pool, nil
}

// Close gracefully closes a connection pool if it is not nil.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
