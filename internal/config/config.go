// Package config loads service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file, then the process environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/todo_service/internal/connectivity"
	"github.com/R3E-Network/todo_service/internal/logging"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "TODO_CONFIG_FILE"

type Config struct {
	HTTP      HTTPConfig                  `yaml:"http"`
	Database  connectivity.DatabaseConfig `yaml:"database"`
	Logging   logging.Config              `yaml:"logging"`
	CORS      CORSConfig                  `yaml:"cors"`
	RateLimit RateLimitConfig             `yaml:"rate_limit"`

	// SelfBaseURL is where this service can reach itself; the tracing demo
	// sends its outbound request there.
	SelfBaseURL     string        `yaml:"self_base_url" env:"SELF_BASE_URL"`
	OutboundTimeout time.Duration `yaml:"outbound_timeout" env:"HTTP_CLIENT_TIMEOUT"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

type CORSConfig struct {
	// AllowedOrigins is a comma separated list; "*" allows all.
	AllowedOrigins string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// Origins splits AllowedOrigins.
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type RateLimitConfig struct {
	RPS             float64       `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst           int           `yaml:"burst" env:"RATE_LIMIT_BURST"`
	CleanupSchedule string        `yaml:"cleanup_schedule" env:"RATE_LIMIT_CLEANUP_SCHEDULE"`
	MaxIdle         time.Duration `yaml:"max_idle" env:"RATE_LIMIT_MAX_IDLE"`
}

// Enabled reports whether requests should be throttled.
func (r RateLimitConfig) Enabled() bool {
	return r.RPS > 0
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: connectivity.DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AcquireTimeout:  connectivity.DefaultAcquireTimeout,
			TxTimeout:       connectivity.DefaultTxTimeout,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		CORS: CORSConfig{AllowedOrigins: "*"},
		RateLimit: RateLimitConfig{
			RPS:             50,
			Burst:           100,
			CleanupSchedule: "@every 5m",
			MaxIdle:         10 * time.Minute,
		},
		SelfBaseURL:     "http://localhost:8080",
		OutboundTimeout: 10 * time.Second,
	}
}

// Load builds the configuration. path overrides TODO_CONFIG_FILE; both may be
// empty. dotenv is the .env file to read, skipped when missing.
func Load(path, dotenv string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", dotenv, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("failed to decode environment: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings needed to run against a database.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database url is required (set DATABASE_URL)")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns && c.Database.MaxOpenConns > 0 {
		return fmt.Errorf("db max idle conns (%d) exceeds max open conns (%d)", c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst < 1 {
		return errors.New("rate limit burst must be at least 1")
	}
	return nil
}
