// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port             int    `env:"PORT" envDefault:"8080"`
	DBDriver         string `env:"DB_DRIVER" envDefault:"mongo"`
	ConnectionString string `env:"DB_CONNECTION_STRING"`
	DBName           string `env:"DB_NAME" envDefault:"forklore"`
	JWTSecret        string `env:"JWTSECRET"`
	Debug            bool   `env:"DEBUG" envDefault:"false"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`

	ServiceName  string `env:"SERVICE_NAME" envDefault:"forklore"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"forklore.events"`

	RedisAddr string `env:"REDIS_ADDR"`

	ChapterSweepInterval      time.Duration `env:"CHAPTER_SWEEP_INTERVAL" envDefault:"1m"`
	SubscriptionSweepInterval time.Duration `env:"SUBSCRIPTION_SWEEP_INTERVAL" envDefault:"1h"`
	SweepLockTTL              time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"30s"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOps is Load for the ops CLI, which serves no HTTP and needs no JWT secret.
func LoadOps() (*Config, error) {
	cfg, err := parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateBackends(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWTSECRET is required"))
	}
	errs = append(errs, c.validateBackends())
	return errors.Join(errs...)
}

func (c *Config) validateBackends() error {
	var errs []error
	switch c.DBDriver {
	case DriverMongo:
		if c.ConnectionString == "" {
			errs = append(errs, errors.New("DB_CONNECTION_STRING is required for the mongo driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.ChapterSweepInterval <= 0 || c.SubscriptionSweepInterval <= 0 {
		errs = append(errs, errors.New("sweep intervals must be positive"))
	}
	return errors.Join(errs...)
}
