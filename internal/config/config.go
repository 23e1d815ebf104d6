package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	MySQLDSN    string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/warehouse?parseTime=true"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"warehouse.db"`

	// RedisAddr enables the snapshot cache when set
	RedisAddr string `env:"REDIS_ADDR"`

	CheckpointEvery   int `env:"CHECKPOINT_EVERY" envDefault:"500"`
	CheckpointWorkers int `env:"CHECKPOINT_WORKERS" envDefault:"2"`

	BreakerFailures int           `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads .env files when present, then the environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "mysql", "sqlite", "memory":
	default:
		return fmt.Errorf("STORE_DRIVER %q: want mysql, sqlite or memory", c.StoreDriver)
	}
	if c.CheckpointEvery < 0 {
		return fmt.Errorf("CHECKPOINT_EVERY must not be negative")
	}
	if c.CheckpointWorkers < 1 {
		return fmt.Errorf("CHECKPOINT_WORKERS must be at least 1")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT %q: want console or json", c.LogFormat)
	}
	return nil
}

// Level is the parsed LOG_LEVEL; Validate has already accepted it.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
