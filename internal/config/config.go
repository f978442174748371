// Package config loads exchange settings from an optional YAML file and
// applies environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the top-level configuration of the exchange server.
type Config struct {
	Server  Server  `yaml:"server"`
	Store   Store   `yaml:"store"`
	Cache   Cache   `yaml:"cache"`
	Kafka   Kafka   `yaml:"kafka"`
	Auth    Auth    `yaml:"auth"`
	Logging Logging `yaml:"logging"`
	Orders  Orders  `yaml:"orders"`
	Risk    Risk    `yaml:"risk"`
	Faucet  Faucet  `yaml:"faucet"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Store selects the ledger backend.
type Store struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// Cache configures the optional Redis read-through cache.
type Cache struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Kafka configures the optional event topic. Brokers is a comma-separated
// list; an empty list disables publishing.
type Kafka struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// Auth holds the admin token and the API keys accepted on /api/v1.
type Auth struct {
	AdminToken string   `yaml:"admin_token"`
	APIKeys    []APIKey `yaml:"api_keys"`
}

// APIKey binds the hex SHA-256 of a key to a user and its scopes.
type APIKey struct {
	UserID    string   `yaml:"user_id"`
	KeySHA256 string   `yaml:"key_sha256"`
	Scopes    []string `yaml:"scopes"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Orders configures the pending-order expiry sweeper. A zero PendingTTL
// disables it.
type Orders struct {
	PendingTTL     time.Duration `yaml:"pending_ttl"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

// Risk holds exposure limits on buys. Zero disables a limit.
type Risk struct {
	MaxPerMarket   decimal.Decimal `yaml:"max_per_market"`
	MaxPerCategory decimal.Decimal `yaml:"max_per_category"`
}

// Faucet is the self-service credit granted per request. Zero disables it.
type Faucet struct {
	Amount decimal.Decimal `yaml:"amount"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Store:   Store{Driver: DriverMemory, SQLitePath: "data/exchange.db"},
		Cache:   Cache{TTL: 30 * time.Second},
		Kafka:   Kafka{Topic: "exchange.events"},
		Logging: Logging{Level: "info", Format: "json"},
		Orders:  Orders{ExpiryInterval: time.Minute},
	}
}

// Load reads the YAML file at path over Default and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides fields from well-known environment variables.
// A DATABASE_URL without an explicit driver selects postgres.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	dec := func(name string, dst *decimal.Decimal) {
		if v := os.Getenv(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: PORT: %w", err))
		} else {
			cfg.Server.Port = port
		}
	}

	str("DATABASE_URL", &cfg.Store.DatabaseURL)
	if os.Getenv("DATABASE_URL") != "" && os.Getenv("STORE_DRIVER") == "" {
		cfg.Store.Driver = DriverPostgres
	}
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("SQLITE_PATH", &cfg.Store.SQLitePath)

	str("REDIS_URL", &cfg.Cache.RedisURL)
	dur("CACHE_TTL", &cfg.Cache.TTL)

	str("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("KAFKA_TOPIC", &cfg.Kafka.Topic)

	str("ADMIN_TOKEN", &cfg.Auth.AdminToken)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	dur("PENDING_ORDER_TTL", &cfg.Orders.PendingTTL)
	dec("RISK_MAX_PER_MARKET", &cfg.Risk.MaxPerMarket)
	dec("RISK_MAX_PER_CATEGORY", &cfg.Risk.MaxPerCategory)
	dec("FAUCET_AMOUNT", &cfg.Faucet.Amount)

	return errors.Join(errs...)
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("config: postgres store requires database_url"))
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("config: sqlite store requires sqlite_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store driver %q", c.Store.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: invalid port %d", c.Server.Port))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("config: log format must be json or text, got %q", f))
	}
	if c.Orders.PendingTTL < 0 {
		errs = append(errs, errors.New("config: pending_ttl must not be negative"))
	}
	if c.Orders.PendingTTL > 0 && c.Orders.ExpiryInterval <= 0 {
		errs = append(errs, errors.New("config: expiry_interval must be positive when pending_ttl is set"))
	}
	if c.Risk.MaxPerMarket.IsNegative() || c.Risk.MaxPerCategory.IsNegative() {
		errs = append(errs, errors.New("config: risk limits must not be negative"))
	}
	if c.Faucet.Amount.IsNegative() {
		errs = append(errs, errors.New("config: faucet amount must not be negative"))
	}
	for i, k := range c.Auth.APIKeys {
		if k.UserID == "" || k.KeySHA256 == "" {
			errs = append(errs, fmt.Errorf("config: api_keys[%d] needs user_id and key_sha256", i))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l Logging) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}

