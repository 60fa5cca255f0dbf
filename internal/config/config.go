// Package config loads service configuration from file, environment
// and defaults via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Plugins   PluginsConfig   `mapstructure:"plugins"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type PluginsConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type DetectConfig struct {
	Threshold int    `mapstructure:"threshold"`
	Policy    string `mapstructure:"policy"`
}

type ExecutionConfig struct {
	// Timeout bounds a single plugin invocation. Zero disables the
	// bound entirely.
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	// Path of the sqlite execution log. ":memory:" keeps it ephemeral.
	Path string `mapstructure:"path"`
}

type ReconcileConfig struct {
	// Schedule is a cron expression for periodic full rescans as a
	// safety net behind the filesystem watcher. Empty disables it.
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the optional file at path, environment
// variables prefixed FUNCFLOW_, and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("plugins.dir", "plugins")
	v.SetDefault("plugins.debounce", 2*time.Second)
	v.SetDefault("detect.threshold", 20)
	v.SetDefault("detect.policy", "top")
	v.SetDefault("execution.timeout", time.Duration(0))
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("store.path", "funcflow.db")
	v.SetDefault("reconcile.schedule", "")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("FUNCFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("funcflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/funcflow")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
