// Package config loads and validates the server configuration.
//
// Configuration sources, highest precedence first:
//  1. CLI flags (applied by cmd/webserver after Load)
//  2. Environment variables (WEBSERV_*)
//  3. Configuration file (YAML)
//  4. Defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config captures every knob the server exposes.
type Config struct {
	// Server contains listener and event-loop settings.
	Server ServerConfig `mapstructure:"server"`

	// Database selects and configures the user store backend.
	Database DatabaseConfig `mapstructure:"database"`

	// Pool sizes the worker pool.
	Pool PoolConfig `mapstructure:"pool"`

	// Logging controls the async log system.
	Logging LoggingConfig `mapstructure:"logging"`

	// Metrics controls the optional Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig contains listener and connection settings.
type ServerConfig struct {
	// Port to listen on. Unprivileged range only.
	Port int `mapstructure:"port" validate:"gte=1024,lte=65535"`

	// TrigMode selects epoll triggering: bit 0 edge-triggers connections,
	// bit 1 edge-triggers the listener.
	TrigMode int `mapstructure:"trig_mode" validate:"gte=0,lte=3"`

	// TimeoutMS is the inactivity deadline per connection in milliseconds.
	// ApplyDefaults replaces zero with 60000.
	TimeoutMS int `mapstructure:"timeout_ms" validate:"gte=0"`

	// Linger enables SO_LINGER{1,1} on the listen socket.
	Linger bool `mapstructure:"linger"`

	// MaxConnections caps concurrently open clients.
	MaxConnections int `mapstructure:"max_connections" validate:"gt=0"`

	// DocRoot is the static file root. Empty means <cwd>/resources.
	DocRoot string `mapstructure:"doc_root"`

	// AcceptRPS and AcceptBurst rate-limit the accept loop. Zero RPS
	// means unlimited.
	AcceptRPS   uint `mapstructure:"accept_rps"`
	AcceptBurst uint `mapstructure:"accept_burst"`
}

// DatabaseConfig selects the user store implementation. Only the section
// matching Type is used.
type DatabaseConfig struct {
	// Type is one of mysql, badger, memory.
	Type string `mapstructure:"type" validate:"required,oneof=mysql badger memory"`

	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Badger BadgerConfig `mapstructure:"badger"`
}

// MySQLConfig configures the MySQL user store.
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// PoolSize is the number of dedicated connections held by the store.
	PoolSize int `mapstructure:"pool_size" validate:"gt=0"`
}

// BadgerConfig configures the embedded BadgerDB user store.
type BadgerConfig struct {
	Dir string `mapstructure:"dir"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers int `mapstructure:"workers" validate:"gt=0"`
}

// LoggingConfig controls the log system.
type LoggingConfig struct {
	// Enabled turns file logging on. When false the logger falls back to
	// stderr.
	Enabled bool `mapstructure:"enabled"`

	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Dir is the log directory; Suffix the file suffix (typically .log).
	Dir    string `mapstructure:"dir"`
	Suffix string `mapstructure:"suffix"`

	// QueueSize bounds the async write queue. ApplyDefaults replaces zero
	// with 1024.
	QueueSize int `mapstructure:"queue_size" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus side listener.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Addr is the listen address for /metrics, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper wires environment variables and the config file location.
// Environment variables use the WEBSERV_ prefix with underscores, for
// example WEBSERV_SERVER_PORT=8080.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("WEBSERV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the config file if present; a missing file just
// means defaults.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// ApplyDefaults fills every zero field that has a sensible default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 1316
	}
	if cfg.Server.TimeoutMS == 0 {
		cfg.Server.TimeoutMS = 60000
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 65536
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "mysql"
	}
	if cfg.Database.MySQL.Host == "" {
		cfg.Database.MySQL.Host = "localhost"
	}
	if cfg.Database.MySQL.Port == 0 {
		cfg.Database.MySQL.Port = 3306
	}
	if cfg.Database.MySQL.Database == "" {
		cfg.Database.MySQL.Database = "webserver"
	}
	if cfg.Database.MySQL.PoolSize == 0 {
		cfg.Database.MySQL.PoolSize = 12
	}
	if cfg.Database.Badger.Dir == "" {
		cfg.Database.Badger.Dir = "./data/users"
	}
	if cfg.Pool.Workers == 0 {
		cfg.Pool.Workers = 8
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "./log"
	}
	if cfg.Logging.Suffix == "" {
		cfg.Logging.Suffix = ".log"
	}
	if cfg.Logging.QueueSize == 0 {
		cfg.Logging.QueueSize = 1024
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// Validate checks the configuration against the struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/webserver, falling back to
// ~/.config/webserver, or the current directory as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "webserver")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "webserver")
}
