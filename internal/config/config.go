// Package config loads and validates archive service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Index   IndexConfig   `mapstructure:"index"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig locates the archive database.
type DBConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// QueueConfig governs the crawl scheduler.
type QueueConfig struct {
	Workers           int `mapstructure:"workers"`
	CrawlDelaySeconds int `mapstructure:"crawl_delay_seconds"`
	BackoffSeconds    int `mapstructure:"backoff_seconds"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	RedirectMax    int    `mapstructure:"redirect_max"`
}

// IndexConfig tunes the secondary hash index.
type IndexConfig struct {
	HashPrefixLen int `mapstructure:"hash_prefix_len"`
}

// APIConfig caps query result sizes.
type APIConfig struct {
	HistoryMax int `mapstructure:"history_max"`
	SourcesMax int `mapstructure:"sources_max"`
	WaitMaxSec int `mapstructure:"wait_max_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("db.path", "data/archive")
	v.SetDefault("db.in_memory", false)
	v.SetDefault("queue.workers", 16)
	v.SetDefault("queue.crawl_delay_seconds", 60*60*24)
	v.SetDefault("queue.backoff_seconds", 5)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.user_agent", "hash-archive/1.0 (+https://github.com/JakeFAU/hash-archive)")
	v.SetDefault("fetch.redirect_max", 5)
	v.SetDefault("index.hash_prefix_len", 8)
	v.SetDefault("api.history_max", 30)
	v.SetDefault("api.sources_max", 30)
	v.SetDefault("api.wait_max_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.Path == "" && !c.DB.InMemory {
		return fmt.Errorf("db.path must be set unless db.in_memory is enabled")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("queue.workers must be > 0")
	}
	if c.Queue.CrawlDelaySeconds <= 0 {
		return fmt.Errorf("queue.crawl_delay_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Index.HashPrefixLen <= 0 || c.Index.HashPrefixLen > 20 {
		return fmt.Errorf("index.hash_prefix_len must be in 1..20")
	}
	if c.API.HistoryMax <= 0 || c.API.SourcesMax <= 0 {
		return fmt.Errorf("api result caps must be > 0")
	}
	return nil
}

// CrawlDelay returns the freshness window as a duration.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Queue.CrawlDelaySeconds) * time.Second
}

// FetchTimeout returns the per-fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
