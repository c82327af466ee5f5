/*
Package config loads service configuration from the environment.

PURPOSE:
  One struct for every knob the server reads at startup. Values come from
  environment variables; a .env file, when present, is loaded first so
  local runs do not need exported variables.

VARIABLES:
  PORT                HTTP port (8080)
  DB_DRIVER           sqlite | postgres (sqlite)
  DB_PATH             SQLite file, ":memory:" allowed (incentive.db)
  DATABASE_URL        PostgreSQL DSN, required for postgres
  DB_CONNECT_TIMEOUT  Retry window for the first PostgreSQL connect (1m)
  REDIS_ADDR          Enables the result cache when set
  REDIS_PASSWORD      Redis AUTH password
  REDIS_DB            Redis logical database (0)
  REDIS_TTL           Cached result lifetime (10m)
  LOG_LEVEL           debug | info | warn | error (info)
  LOG_DEVELOPMENT     Human-readable console logs (false)
  ATTACH_POLICY       group | sale (group)
  SCHEDULER_ENABLED   Run the monthly payout job (false)
  SCHEDULER_INTERVAL  Payout job tick (24h)
  CALC_TIMEOUT        Deadline around fetch + compute (10s)
  SEED_DEMO           Load the demo scenario on startup (false)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/warp/incentive-engine/incentive"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port              int           `env:"PORT" envDefault:"8080"`
	DBDriver          string        `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath            string        `env:"DB_PATH" envDefault:"incentive.db"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"1m"`
	RedisAddr         string        `env:"REDIS_ADDR"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL          time.Duration `env:"REDIS_TTL" envDefault:"10m"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment    bool          `env:"LOG_DEVELOPMENT" envDefault:"false"`
	AttachPolicy      string        `env:"ATTACH_POLICY" envDefault:"group"`
	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED" envDefault:"false"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"24h"`
	CalcTimeout       time.Duration `env:"CALC_TIMEOUT" envDefault:"10s"`
	SeedDemo          bool          `env:"SEED_DEMO" envDefault:"false"`
}

// Load reads ./.env if it exists, then the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit .env path. A missing file is not an
// error; variables already set in the environment win over the file.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if _, err := incentive.ParseAttachPolicy(c.AttachPolicy); err != nil {
		return fmt.Errorf("ATTACH_POLICY: %w", err)
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	if c.CalcTimeout < 0 {
		return fmt.Errorf("CALC_TIMEOUT must not be negative")
	}
	return nil
}

// Policy returns the validated attach policy.
func (c *Config) Policy() incentive.AttachPolicy {
	p, _ := incentive.ParseAttachPolicy(c.AttachPolicy)
	return p
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
