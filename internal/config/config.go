// Package config loads monitor settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rsclarke/msamon/internal/credential"
	"github.com/rsclarke/msamon/internal/logging"
	"github.com/rsclarke/msamon/internal/msa"
	"github.com/rsclarke/msamon/internal/resource"
	"github.com/rsclarke/msamon/internal/session"
)

type Config struct {
	MSA    MSAConfig      `yaml:"msa"`
	Cache  CacheConfig    `yaml:"cache"`
	HTTP   HTTPConfig     `yaml:"http"`
	Poll   PollConfig     `yaml:"poll"`
	Notify NotifyConfig   `yaml:"notify"`
	Log    logging.Config `yaml:"log"`
}

type MSAConfig struct {
	Address    string `yaml:"address"`
	DNSName    string `yaml:"dns_name"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Digest     string `yaml:"digest"` // md5|sha256
	UseTLS     bool   `yaml:"use_tls"`
	VerifyTLS  bool   `yaml:"verify_tls"`
	CAFile     string `yaml:"ca_file"`
	APIVersion int    `yaml:"api_version"`
}

type CacheConfig struct {
	// Path is the sqlite file holding reading history, and the session
	// cache when Backend is "sqlite".
	Path        string        `yaml:"path"`
	Backend     string        `yaml:"backend"` // sqlite|redis
	SessionTTL  time.Duration `yaml:"session_ttl"`
	HistoryDays int           `yaml:"history_days"`

	Redis session.RedisConfig `yaml:"redis"`
}

type HTTPConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Resources   []string      `yaml:"resources"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

type NotifyConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

func Default() *Config {
	return &Config{
		MSA: MSAConfig{
			Digest:     string(credential.MD5),
			CAFile:     msa.DefaultCAFile,
			APIVersion: 2,
		},
		Cache: CacheConfig{
			Path:        "msamon.db",
			Backend:     "sqlite",
			SessionTTL:  30 * time.Minute,
			HistoryDays: 7,
		},
		HTTP: HTTPConfig{
			ConnectTimeout: 3 * time.Second,
			ReadTimeout:    10 * time.Second,
		},
		Poll: PollConfig{
			Interval:  60 * time.Second,
			Resources: []string{"disks"},
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty) and then with MSAMON_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.MSA.Address = getEnv("MSAMON_ADDRESS", c.MSA.Address)
	c.MSA.DNSName = getEnv("MSAMON_DNS_NAME", c.MSA.DNSName)
	c.MSA.Username = getEnv("MSAMON_USERNAME", c.MSA.Username)
	c.MSA.Password = getEnv("MSAMON_PASSWORD", c.MSA.Password)
	c.MSA.CAFile = getEnv("MSAMON_CA_FILE", c.MSA.CAFile)
	c.Cache.Path = getEnv("MSAMON_CACHE", c.Cache.Path)
	c.Cache.Backend = getEnv("MSAMON_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Redis.Addr = getEnv("MSAMON_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = getEnv("MSAMON_REDIS_PASSWORD", c.Cache.Redis.Password)
	c.Notify.URL = getEnv("MSAMON_NOTIFY_URL", c.Notify.URL)
	c.Notify.Token = getEnv("MSAMON_NOTIFY_TOKEN", c.Notify.Token)
	c.Log = logging.FromEnv(c.Log)

	var err error
	if c.MSA.UseTLS, err = getEnvBool("MSAMON_USE_TLS", c.MSA.UseTLS); err != nil {
		return err
	}
	if c.MSA.VerifyTLS, err = getEnvBool("MSAMON_VERIFY_TLS", c.MSA.VerifyTLS); err != nil {
		return err
	}
	return nil
}

// Validate checks that the settings needed to reach a controller are present
// and consistent.
func (c *Config) Validate() error {
	var errs []error
	if c.MSA.Address == "" && c.MSA.DNSName == "" {
		errs = append(errs, errors.New("msa.address or msa.dns_name is required"))
	}
	if c.MSA.UseTLS && c.MSA.VerifyTLS && c.MSA.DNSName == "" {
		errs = append(errs, errors.New("msa.dns_name is required when verify_tls is set"))
	}
	if c.MSA.Username == "" {
		errs = append(errs, errors.New("msa.username is required"))
	}
	if c.MSA.APIVersion != 1 && c.MSA.APIVersion != 2 {
		errs = append(errs, fmt.Errorf("msa.api_version must be 1 or 2, got %d", c.MSA.APIVersion))
	}
	if _, err := credential.ParseAlgorithm(c.MSA.Digest); err != nil {
		errs = append(errs, fmt.Errorf("msa.digest: %w", err))
	}
	if c.Cache.Path == "" {
		errs = append(errs, errors.New("cache.path is required"))
	}
	switch c.Cache.Backend {
	case "sqlite":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be sqlite or redis, got %q", c.Cache.Backend))
	}
	if c.Cache.SessionTTL <= 0 {
		errs = append(errs, errors.New("cache.session_ttl must be positive"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll.interval must be positive"))
	}
	for _, r := range c.Poll.Resources {
		if _, ok := resource.Lookup(r); !ok {
			errs = append(errs, fmt.Errorf("poll.resources: unsupported resource %q", r))
		}
	}
	return errors.Join(errs...)
}

// Transport returns the configured transport.
func (c *Config) Transport() msa.Transport {
	if c.MSA.UseTLS {
		return msa.TLS
	}
	return msa.Plain
}

// Host returns the configured controller identity.
func (c *Config) Host() msa.HostIdentity {
	return msa.HostIdentity{Address: c.MSA.Address, DNSName: c.MSA.DNSName}
}

// Credentials returns the configured login.
func (c *Config) Credentials() credential.Credentials {
	return credential.Credentials{Username: c.MSA.Username, Password: c.MSA.Password}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
