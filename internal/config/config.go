// Package config loads server settings from the environment.
//
// Variables use the BAZAAR_ prefix, e.g. BAZAAR_HTTP_ADDR. A .env file in the
// working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/xtrntr/bazaar/internal/logger"
	"github.com/xtrntr/bazaar/internal/models"
)

// Prefix of every environment variable.
const Prefix = "bazaar"

// Store backends.
const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

// Config is the full server configuration
type Config struct {
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	Store       string `envconfig:"STORE" default:"badger"`
	BadgerPath  string `envconfig:"BADGER_PATH" default:"data/bazaar"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	Genesis            string        `envconfig:"GENESIS"` // RFC3339; empty means first start of the store
	BlockInterval      time.Duration `envconfig:"BLOCK_INTERVAL" default:"6s"`
	ExistentialDeposit string        `envconfig:"EXISTENTIAL_DEPOSIT" default:"0"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"text"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSize    int    `envconfig:"LOG_MAX_SIZE" default:"100"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
	LogMaxAge     int    `envconfig:"LOG_MAX_AGE" default:"28"`
	LogCompress   bool   `envconfig:"LOG_COMPRESS" default:"true"`

	Metrics bool `envconfig:"METRICS" default:"true"`
}

// Load reads an optional .env file then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for the badger store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("BLOCK_INTERVAL must be positive")
	}
	if _, err := c.GenesisTime(time.Time{}); err != nil {
		return err
	}
	if _, err := c.ExistentialDepositAmount(); err != nil {
		return err
	}
	return nil
}

// GenesisTime returns the configured genesis, or fallback when unset.
func (c *Config) GenesisTime(fallback time.Time) (time.Time, error) {
	if c.Genesis == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, c.Genesis)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid GENESIS: %w", err)
	}
	return t, nil
}

// ExistentialDepositAmount parses the existential deposit.
func (c *Config) ExistentialDepositAmount() (models.Amount, error) {
	ed, err := models.ParseAmount(c.ExistentialDeposit)
	if err != nil {
		return models.Amount{}, fmt.Errorf("invalid EXISTENTIAL_DEPOSIT: %w", err)
	}
	return ed, nil
}

// Logger returns the logging settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		OutputFile: c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
		Compress:   c.LogCompress,
	}
}
