// Package config handles application configuration and environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultMetaDBPath         = "semq_meta.sqlite"
	DefaultSchemaDir          = "schema"
	DefaultMaxExpansionDepth  = 32
	DefaultMaxPageSize        = 10000
	DefaultCompileParallelism = 8
)

// Config holds the configuration for the compiler, its metastore and the
// DuckDB execution target.
type Config struct {
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"
	MetaDBPath string // path to SQLite metastore holding table definitions
	DuckDBPath string // DuckDB database file; empty means in-memory
	SchemaDir  string // directory of YAML table definitions

	MaxExpansionDepth  int // bound on template and join-path expansion
	MaxPageSize        int // largest accepted pagination limit
	CompileParallelism int // concurrent compilations in a batch

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks that the limits are usable.
func (c *Config) Validate() error {
	if c.MaxExpansionDepth <= 0 {
		return fmt.Errorf("MAX_EXPANSION_DEPTH must be > 0, got %d", c.MaxExpansionDepth)
	}
	if c.MaxPageSize <= 0 {
		return fmt.Errorf("MAX_PAGE_SIZE must be > 0, got %d", c.MaxPageSize)
	}
	if c.CompileParallelism <= 0 {
		return fmt.Errorf("COMPILE_PARALLELISM must be > 0, got %d", c.CompileParallelism)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables. When
// SEMQ_ENV_FILE is set, that file is read first; variables already present in
// the environment take precedence.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv("SEMQ_ENV_FILE"); path != "" {
		if err := LoadDotEnv(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
		MetaDBPath: os.Getenv("META_DB_PATH"),
		DuckDBPath: os.Getenv("DUCKDB_PATH"),
		SchemaDir:  os.Getenv("SCHEMA_DIR"),
	}

	var err error
	if cfg.MaxExpansionDepth, err = parseIntEnv("MAX_EXPANSION_DEPTH", DefaultMaxExpansionDepth); err != nil {
		return nil, err
	}
	if cfg.MaxPageSize, err = parseIntEnv("MAX_PAGE_SIZE", DefaultMaxPageSize); err != nil {
		return nil, err
	}
	if cfg.CompileParallelism, err = parseIntEnv("COMPILE_PARALLELISM", DefaultCompileParallelism); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = DefaultMetaDBPath
	}
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = DefaultSchemaDir
	}
	if cfg.DuckDBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "DUCKDB_PATH not set; run uses an empty in-memory database")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() && cfg.DuckDBPath == "" {
		return nil, fmt.Errorf("DUCKDB_PATH must be set in production (ENV=production)")
	}
	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
