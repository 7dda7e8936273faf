package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Queue.Workers != 16 {
		t.Errorf("queue.workers = %d, want 16", cfg.Queue.Workers)
	}
	if cfg.Queue.CrawlDelaySeconds != 86400 {
		t.Errorf("queue.crawl_delay_seconds = %d, want 86400", cfg.Queue.CrawlDelaySeconds)
	}
	if cfg.Index.HashPrefixLen != 8 {
		t.Errorf("index.hash_prefix_len = %d, want 8", cfg.Index.HashPrefixLen)
	}
	if cfg.Fetch.RedirectMax != 5 {
		t.Errorf("fetch.redirect_max = %d, want 5", cfg.Fetch.RedirectMax)
	}
	if got := cfg.CrawlDelay(); got != 24*time.Hour {
		t.Errorf("CrawlDelay() = %v, want 24h", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
db:
  path: /var/lib/hash-archive
queue:
  workers: 4
  crawl_delay_seconds: 3600
  backoff_seconds: 1
fetch:
  timeout_seconds: 10
  user_agent: test-agent
  redirect_max: 3
index:
  hash_prefix_len: 12
api:
  history_max: 10
  sources_max: 20
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.DB.Path != "/var/lib/hash-archive" {
		t.Errorf("db.path = %q", cfg.DB.Path)
	}
	if cfg.Queue.Workers != 4 {
		t.Errorf("queue.workers = %d, want 4", cfg.Queue.Workers)
	}
	if cfg.Fetch.UserAgent != "test-agent" {
		t.Errorf("fetch.user_agent = %q", cfg.Fetch.UserAgent)
	}
	if cfg.Index.HashPrefixLen != 12 {
		t.Errorf("index.hash_prefix_len = %d, want 12", cfg.Index.HashPrefixLen)
	}
	if cfg.Logging.Development {
		t.Error("logging.development = true, want false")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HX_SERVER_PORT", "7070")
	t.Setenv("HX_QUEUE_WORKERS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Queue.Workers != 2 {
		t.Errorf("queue.workers = %d, want 2", cfg.Queue.Workers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero port":        func(c *Config) { c.Server.Port = 0 },
		"no db path":       func(c *Config) { c.DB.Path = "" },
		"zero workers":     func(c *Config) { c.Queue.Workers = 0 },
		"zero delay":       func(c *Config) { c.Queue.CrawlDelaySeconds = 0 },
		"zero timeout":     func(c *Config) { c.Fetch.TimeoutSeconds = 0 },
		"huge prefix len":  func(c *Config) { c.Index.HashPrefixLen = 21 },
		"zero history max": func(c *Config) { c.API.HistoryMax = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
