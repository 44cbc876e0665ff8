// Package config loads the jobengine service configuration from YAML.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-job/logging"
	"github.com/goliatone/go-job/store/sqlstore"
)

const (
	StoreMemory = "memory"

	MinPort = 1
	MaxPort = 65535

	ErrCodeInvalidConfig = "INVALID_CONFIG"
)

var ErrInvalidConfig = errors.New("invalid configuration", errors.CategoryValidation).
	WithTextCode(ErrCodeInvalidConfig)

type Config struct {
	Engine  EngineConfig   `yaml:"engine"`
	Store   StoreConfig    `yaml:"store"`
	Gateway GatewayConfig  `yaml:"gateway"`
	Logging logging.Config `yaml:"logging"`
}

type EngineConfig struct {
	MaxRecordLength      int           `yaml:"max_record_length"`
	MaxPendingCommands   int           `yaml:"max_pending_commands"`
	QueueSize            int           `yaml:"queue_size"`
	TimeoutCheckInterval time.Duration `yaml:"timeout_check_interval"`
	BackoffCheckInterval time.Duration `yaml:"backoff_check_interval"`
}

type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	TablePrefix     string        `yaml:"table_prefix"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type GatewayConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LongPollTimeout time.Duration `yaml:"long_poll_timeout"`
	Mode            string        `yaml:"mode"`
}

// Default returns the configuration used for missing keys.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxRecordLength:      4 * 1024 * 1024,
			MaxPendingCommands:   1024,
			QueueSize:            256,
			TimeoutCheckInterval: 30 * time.Second,
			BackoffCheckInterval: time.Second,
		},
		Store: StoreConfig{
			Driver:       StoreMemory,
			TablePrefix:  "jobengine_",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Gateway: GatewayConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			LongPollTimeout: 30 * time.Second,
			Mode:            "release",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// Load reads path over the defaults. ${VAR} references are expanded from a
// .env file next to the config first, then from the process environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	env, err := readEnvFile(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	return Parse(data, env)
}

// Parse decodes YAML over the defaults, expanding ${VAR} with env falling
// back to the process environment.
func Parse(data []byte, env map[string]string) (*Config, error) {
	expanded := os.Expand(string(data), func(name string) string {
		if v, ok := env[name]; ok {
			return v
		}
		return os.Getenv(name)
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Engine.MaxRecordLength <= 0:
		return invalid("engine.max_record_length must be greater than 0")
	case c.Engine.MaxPendingCommands < 0:
		return invalid("engine.max_pending_commands must not be negative")
	case c.Engine.QueueSize <= 0:
		return invalid("engine.queue_size must be greater than 0")
	case c.Engine.TimeoutCheckInterval < 0 || c.Engine.BackoffCheckInterval < 0:
		return invalid("engine check intervals must not be negative")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		if c.Store.DSN == "" {
			return invalid(fmt.Sprintf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		return invalid(fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}

	if c.Gateway.Port < MinPort || c.Gateway.Port > MaxPort {
		return invalid(fmt.Sprintf("invalid gateway port: %d (must be between %d and %d)", c.Gateway.Port, MinPort, MaxPort))
	}
	if c.Gateway.LongPollTimeout < 0 {
		return invalid("gateway.long_poll_timeout must not be negative")
	}

	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return invalid(fmt.Sprintf("unknown logging format %q", c.Logging.Format))
	}
	return nil
}

// SQLStore maps the store section to the sqlstore configuration.
func (c *Config) SQLStore() sqlstore.Config {
	return sqlstore.Config{
		Driver:          c.Store.Driver,
		DSN:             c.Store.DSN,
		TablePrefix:     c.Store.TablePrefix,
		MaxOpenConns:    c.Store.MaxOpenConns,
		MaxIdleConns:    c.Store.MaxIdleConns,
		ConnMaxLifetime: c.Store.ConnMaxLifetime,
	}
}

func invalid(message string) error {
	err := ErrInvalidConfig.Clone()
	err.Message = message
	return err
}
