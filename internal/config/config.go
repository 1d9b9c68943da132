// Package config loads the server configuration from config.yaml with
// sensible defaults for every key.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig names the process
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NATSConfig configures the reminder and metrics bus
type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SweepConfig configures the scheduled-action sweep cadence
type SweepConfig struct {
	Expression string `mapstructure:"expression"`
}

// MetricsConfig configures the metrics publisher
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// CategoryConfig overrides the lookback window of one insurance category
type CategoryConfig struct {
	LookbackMonths   int `mapstructure:"lookback_months"`
	MaxClaimsAllowed int `mapstructure:"max_claims_allowed"`
}

// Config is the full server configuration
type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Server     ServerConfig              `mapstructure:"server"`
	NATS       NATSConfig                `mapstructure:"nats"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Sweep      SweepConfig               `mapstructure:"sweep"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Categories map[string]CategoryConfig `mapstructure:"categories"`
}

// Load reads config.yaml from the given directory (default ./config)
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		path = "./config"
	}
	v.AddConfigPath(path)
	v.SetEnvPrefix("ELIGIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "eligibility-engine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("nats.urls", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "eligibility.db")
	v.SetDefault("sweep.expression", "0 0 * * * *")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.interval", time.Minute)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine: defaults cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "memory" {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}
