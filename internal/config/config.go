package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the API server and the simulation runner.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Runner   RunnerConfig
	Trainer  TrainerConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
	// ConnectRetry bounds how long startup keeps retrying the first
	// connection. Zero disables retries.
	ConnectRetry time.Duration
}

type RedisConfig struct {
	URL string
}

// RunnerConfig controls the polling loop and the staged pipeline timing.
type RunnerConfig struct {
	PollInterval     time.Duration
	ErrorBackoff     time.Duration
	StageMinDelay    time.Duration
	StageMaxDelay    time.Duration
	FaultProbability float64
	BatchLimit       int
	StatusTTL        time.Duration
}

// TrainerConfig selects the backend that produces simulation results.
type TrainerConfig struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
}

type MetricsConfig struct {
	Addr string
}

var validProviders = map[string]bool{
	"synthetic": true,
	"remote":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	pollInterval := envDuration("RUNNER_POLL_INTERVAL", 10*time.Second)

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("ROBOTRAINER_PORT", 8080),
			Env:               envString("ROBOTRAINER_ENV", "development"),
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
			ConnectRetry:    envDuration("DATABASE_CONNECT_RETRY", 30*time.Second),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Runner: RunnerConfig{
			PollInterval:     pollInterval,
			ErrorBackoff:     envDuration("RUNNER_ERROR_BACKOFF", 3*pollInterval),
			StageMinDelay:    envDuration("RUNNER_STAGE_MIN_DELAY", 2*time.Second),
			StageMaxDelay:    envDuration("RUNNER_STAGE_MAX_DELAY", 8*time.Second),
			FaultProbability: envFloat("RUNNER_FAULT_PROBABILITY", 0.1),
			BatchLimit:       envInt("RUNNER_BATCH_LIMIT", 0),
			StatusTTL:        envDuration("RUNNER_STATUS_TTL", 30*time.Minute),
		},
		Trainer: TrainerConfig{
			Provider: envString("TRAINER_PROVIDER", "synthetic"),
			BaseURL:  os.Getenv("TRAINER_BASE_URL"),
			Timeout:  envDuration("TRAINER_TIMEOUT", 60*time.Second),
		},
		Metrics: MetricsConfig{
			Addr: envString("METRICS_ADDR", ":9090"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("RUNNER_POLL_INTERVAL must be positive, got %s", c.Runner.PollInterval)
	}
	if c.Runner.ErrorBackoff <= 0 {
		return fmt.Errorf("RUNNER_ERROR_BACKOFF must be positive, got %s", c.Runner.ErrorBackoff)
	}
	if c.Runner.StageMinDelay < 0 || c.Runner.StageMaxDelay < c.Runner.StageMinDelay {
		return fmt.Errorf("RUNNER_STAGE_MIN_DELAY (%s) and RUNNER_STAGE_MAX_DELAY (%s) must satisfy 0 <= min <= max",
			c.Runner.StageMinDelay, c.Runner.StageMaxDelay)
	}
	if math.IsNaN(c.Runner.FaultProbability) || c.Runner.FaultProbability < 0 || c.Runner.FaultProbability > 1 {
		return fmt.Errorf("RUNNER_FAULT_PROBABILITY must be within [0, 1], got %v", c.Runner.FaultProbability)
	}

	if !validProviders[c.Trainer.Provider] {
		return fmt.Errorf("TRAINER_PROVIDER must be one of synthetic, remote; got %q", c.Trainer.Provider)
	}
	if c.Trainer.Provider == "remote" {
		if c.Trainer.BaseURL == "" {
			return fmt.Errorf("TRAINER_BASE_URL is required when TRAINER_PROVIDER is remote")
		}
		if !strings.HasPrefix(c.Trainer.BaseURL, "http://") && !strings.HasPrefix(c.Trainer.BaseURL, "https://") {
			return fmt.Errorf("TRAINER_BASE_URL must start with http:// or https://, got %q", c.Trainer.BaseURL)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
