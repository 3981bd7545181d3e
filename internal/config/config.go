package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/svcmon/internal/logger"
	tlsx "github.com/loykin/svcmon/internal/tls"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SVCMON_QUEUE_CAPACITY.
const EnvPrefix = "SVCMON"

var ErrInvalid = errors.New("invalid config")

// Config represents the top-level TOML structure.
type Config struct {
	Systemctl SystemctlConfig `toml:"systemctl" mapstructure:"systemctl"`
	Queue     QueueConfig     `toml:"queue" mapstructure:"queue"`
	Log       ActionLogConfig `toml:"log" mapstructure:"log"`
	Logging   logger.Config   `toml:"logging" mapstructure:"logging"`
	Monitor   MonitorConfig   `toml:"monitor" mapstructure:"monitor"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	History   []HistoryConfig `toml:"history" mapstructure:"history"`
}

type SystemctlConfig struct {
	Path        string        `toml:"path" mapstructure:"path"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	UseSudo     bool          `toml:"use_sudo" mapstructure:"use_sudo"`
	SudoCommand string        `toml:"sudo_command" mapstructure:"sudo_command"`
}

type QueueConfig struct {
	Capacity int `toml:"capacity" mapstructure:"capacity"`
	// RetainSucceeded keeps entries in the queue after a successful retry.
	RetainSucceeded bool `toml:"retain_succeeded" mapstructure:"retain_succeeded"`
}

type ActionLogConfig struct {
	// MaxEntries bounds the in-memory action log; 0 keeps everything.
	MaxEntries int `toml:"max_entries" mapstructure:"max_entries"`
}

type MonitorConfig struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	// Cycles is the number of monitor iterations; 0 runs until stopped.
	Cycles    int  `toml:"cycles" mapstructure:"cycles"`
	AutoRetry bool `toml:"auto_retry" mapstructure:"auto_retry"`
}

type ServerConfig struct {
	Listen   string      `toml:"listen" mapstructure:"listen"`
	BasePath string      `toml:"base_path" mapstructure:"base_path"`
	TLS      tlsx.Config `toml:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
	// Listen serves /metrics on a separate address; empty mounts it on the API server.
	Listen string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig names one export sink by DSN (sqlite://, postgres://,
// clickhouse://, opensearch://).
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("systemctl.path", "systemctl")
	v.SetDefault("systemctl.timeout", 10*time.Second)
	v.SetDefault("systemctl.use_sudo", false)
	v.SetDefault("systemctl.sudo_command", "sudo")
	v.SetDefault("queue.capacity", 100)
	v.SetDefault("queue.retain_succeeded", false)
	v.SetDefault("log.max_entries", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("logging.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("logging.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("logging.compress", false)
	v.SetDefault("logging.color", false)
	v.SetDefault("monitor.interval", 5*time.Second)
	v.SetDefault("monitor.cycles", 3)
	v.SetDefault("monitor.auto_retry", false)
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads a TOML file; an empty path yields defaults. SVCMON_* environment
// variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Systemctl.Path) == "" {
		return fmt.Errorf("%w: systemctl.path is empty", ErrInvalid)
	}
	if c.Systemctl.Timeout <= 0 {
		return fmt.Errorf("%w: systemctl.timeout must be positive", ErrInvalid)
	}
	if c.Systemctl.UseSudo && strings.TrimSpace(c.Systemctl.SudoCommand) == "" {
		return fmt.Errorf("%w: systemctl.sudo_command is empty", ErrInvalid)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("%w: queue.capacity must be positive", ErrInvalid)
	}
	if c.Log.MaxEntries < 0 {
		return fmt.Errorf("%w: log.max_entries must not be negative", ErrInvalid)
	}
	if c.Monitor.Interval < 0 {
		return fmt.Errorf("%w: monitor.interval must not be negative", ErrInvalid)
	}
	if c.Monitor.Cycles < 0 {
		return fmt.Errorf("%w: monitor.cycles must not be negative", ErrInvalid)
	}
	if err := c.Server.TLS.Validate(); err != nil {
		return fmt.Errorf("%w: server.%w", ErrInvalid, err)
	}
	for i, h := range c.History {
		if strings.TrimSpace(h.DSN) == "" {
			return fmt.Errorf("%w: history[%d].dsn is empty", ErrInvalid, i)
		}
	}
	return nil
}

// HistoryDSNs returns the configured sink DSNs in file order.
func (c *Config) HistoryDSNs() []string {
	out := make([]string, 0, len(c.History))
	for _, h := range c.History {
		out = append(out, h.DSN)
	}
	return out
}
