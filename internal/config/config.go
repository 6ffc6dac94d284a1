// Package config loads questlink settings from config.yaml plus
// QUESTLINK_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is everything both binaries read at startup. Device identity is
// stored here too: a device acts as a parent, a child, or both.
type Config struct {
	ParentID string `mapstructure:"parent_id"`
	ChildID  string `mapstructure:"child_id"`

	DBPath string `mapstructure:"db_path"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	Sync  SyncConfig  `mapstructure:"sync"`
	Relay RelayConfig `mapstructure:"relay"`
}

// SyncConfig controls remote mode. With Enabled false (or no usable
// ServerURL) the app runs local-only.
type SyncConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServerURL    string `mapstructure:"server_url"`
	ReadTTLSecs  int    `mapstructure:"read_ttl_seconds"`
	PollInterval int    `mapstructure:"poll_interval_seconds"`
}

// RelayConfig configures the questlink-relay binary.
type RelayConfig struct {
	Port    int    `mapstructure:"port"`
	DocPath string `mapstructure:"doc_path"`
}

// ReadTTL returns the cache freshness window for remote reads.
func (s SyncConfig) ReadTTL() time.Duration {
	return time.Duration(s.ReadTTLSecs) * time.Second
}

// PollEvery returns the polling interval for remote mode.
func (s SyncConfig) PollEvery() time.Duration {
	return time.Duration(s.PollInterval) * time.Second
}

// DefaultDir returns the per-user config directory.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "questlink")
	}
	return ".questlink"
}

// Load reads config.yaml from dir, applying defaults and environment
// overrides. A missing file is not an error; defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", filepath.Join(dir, "questlink.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.read_ttl_seconds", 10)
	v.SetDefault("sync.poll_interval_seconds", 7)
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.doc_path", filepath.Join(dir, "relay.json"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("QUESTLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
