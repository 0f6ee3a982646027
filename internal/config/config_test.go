package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rsclarke/msamon/internal/msa"
)

const sampleYAML = `
msa:
  address: 10.0.0.5
  dns_name: msa01.example.com
  username: monitor
  password: secret
  use_tls: true
  verify_tls: true
  api_version: 2
cache:
  path: /var/lib/msamon/cache.db
  session_ttl: 20m
  backend: redis
  redis:
    addr: redis.example.com:6379
    key_prefix: "msa:"
poll:
  interval: 2m
  resources: [disks, fans]
notify:
  url: http://relay.example.com/api/line/notify.php
  token: abc
log:
  level: debug
  format: console
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msamon.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MSA.Address != "10.0.0.5" || cfg.MSA.DNSName != "msa01.example.com" {
		t.Errorf("unexpected host: %+v", cfg.MSA)
	}
	if cfg.Cache.SessionTTL != 20*time.Minute {
		t.Errorf("session ttl = %v, want 20m", cfg.Cache.SessionTTL)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Addr != "redis.example.com:6379" || cfg.Cache.Redis.KeyPrefix != "msa:" {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Cache.HistoryDays != 7 {
		t.Errorf("history days = %d, want default 7", cfg.Cache.HistoryDays)
	}
	if cfg.Poll.Interval != 2*time.Minute || len(cfg.Poll.Resources) != 2 {
		t.Errorf("unexpected poll config: %+v", cfg.Poll)
	}
	if cfg.HTTP.ConnectTimeout != 3*time.Second || cfg.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("defaults not kept for http timeouts: %+v", cfg.HTTP)
	}
	if cfg.MSA.CAFile != msa.DefaultCAFile {
		t.Errorf("ca file = %q, want default", cfg.MSA.CAFile)
	}
	if cfg.Transport() != msa.TLS {
		t.Errorf("transport = %v, want TLS", cfg.Transport())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MSAMON_ADDRESS", "10.9.9.9")
	t.Setenv("MSAMON_PASSWORD", "from-env")
	t.Setenv("MSAMON_USE_TLS", "false")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MSA.Address != "10.9.9.9" || cfg.MSA.Password != "from-env" {
		t.Errorf("env overrides not applied: %+v", cfg.MSA)
	}
	if cfg.Transport() != msa.Plain {
		t.Errorf("transport = %v, want Plain", cfg.Transport())
	}
}

func TestLoadBadEnvBool(t *testing.T) {
	t.Setenv("MSAMON_VERIFY_TLS", "maybe")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unparsable boolean")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "msa: [unterminated")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing host", func(c *Config) { c.MSA.Address = "" }, "msa.address"},
		{"missing user", func(c *Config) { c.MSA.Username = "" }, "msa.username"},
		{"verify without name", func(c *Config) { c.MSA.UseTLS = true; c.MSA.VerifyTLS = true }, "dns_name"},
		{"bad api version", func(c *Config) { c.MSA.APIVersion = 3 }, "api_version"},
		{"bad digest", func(c *Config) { c.MSA.Digest = "sha1" }, "msa.digest"},
		{"bad resource", func(c *Config) { c.Poll.Resources = []string{"vdisks"} }, "vdisks"},
		{"zero ttl", func(c *Config) { c.Cache.SessionTTL = 0 }, "session_ttl"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis.addr"},
		{"redis", func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Addr = "localhost:6379" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.MSA.Address = "10.0.0.5"
			cfg.MSA.Username = "monitor"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
