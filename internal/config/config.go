// Package config loads runtime settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already set in the process environment win over it. Every setting has a
// default, so an empty environment yields a usable local configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting read from TRYON_* variables.
type Config struct {
	BackendURL   string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	Port         int           `env:"PORT" envDefault:"8080"`
	DBPath       string        `env:"DB_PATH" envDefault:"data/tryon.db"`
	Secret       string        `env:"SECRET"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"0s"`
	FeedPageSize int           `env:"FEED_PAGE_SIZE" envDefault:"12"`
	Profile      string        `env:"PROFILE" envDefault:"default"`
	SessionIdle  time.Duration `env:"SESSION_IDLE" envDefault:"24h"`
	SecureCookie bool          `env:"SECURE_COOKIE" envDefault:"false"`
}

const prefix = "TRYON_"

// Load reads the .env file named by files (default ".env"), then parses the
// environment. A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%sPORT out of range: %d", prefix, c.Port)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("%sHTTP_TIMEOUT must not be negative", prefix)
	}
	if c.SessionIdle <= 0 {
		return fmt.Errorf("%sSESSION_IDLE must be positive", prefix)
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("%sBACKEND_URL is empty", prefix)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%sLOG_LEVEL: unknown level %q", prefix, s)
	}
	return l, nil
}
