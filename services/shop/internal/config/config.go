package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"autoservice/pkg/domain"
)

// ConfigPath is read when no --config flag is given. It may be absent.
const ConfigPath = "config.yaml"

// EnvPrefix namespaces environment overrides: SHOP_PORT, SHOP_LOG_LEVEL, ...
// Fields with an explicit envconfig tag also accept the bare name, e.g. DATABASE_URL.
const EnvPrefix = "shop"

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port                    string   `yaml:"port"                    split_words:"true"`
	LogLevel                string   `yaml:"logLevel"                split_words:"true"`
	DatabaseURL             string   `yaml:"databaseURL"             envconfig:"DATABASE_URL"`
	RedisAddr               string   `yaml:"redisAddr"               envconfig:"REDIS_ADDR"`
	RedisPassword           string   `yaml:"redisPassword"           envconfig:"REDIS_PASSWORD"`
	LockBackend             string   `yaml:"lockBackend"             split_words:"true"`
	LockTTLSeconds          int      `yaml:"lockTTLSeconds"          envconfig:"LOCK_TTL_SECONDS"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute" envconfig:"WRITE_RATE_LIMIT_PER_MINUTE"`
	TrustedProxies          []string `yaml:"trustedProxies"          envconfig:"TRUSTED_PROXIES"`
	SeedBrands              []string `yaml:"seedBrands"              split_words:"true"`
	MetricsEnabled          *bool    `yaml:"metricsEnabled"          split_words:"true"`
}

// Load reads path (defaults to config.yaml), applies environment overrides,
// fills defaults, and validates. Only the default path may be missing.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("config env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		cfg.DatabaseURL = "autoservice.db"
	}
	cfg.LockBackend = strings.ToLower(strings.TrimSpace(cfg.LockBackend))
	if cfg.LockBackend == "" {
		cfg.LockBackend = LockBackendMemory
	}
	if cfg.LockTTLSeconds <= 0 {
		cfg.LockTTLSeconds = 10
	}
	if cfg.SeedBrands == nil {
		cfg.SeedBrands = append([]string(nil), domain.DefaultBrands...)
	}
	for i, b := range cfg.SeedBrands {
		cfg.SeedBrands[i] = strings.TrimSpace(b)
	}
	if cfg.MetricsEnabled == nil {
		enabled := true
		cfg.MetricsEnabled = &enabled
	}
}

func validateConfig(cfg FileConfig) error {
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return fmt.Errorf("config: invalid port %q", cfg.Port)
	}
	switch cfg.LockBackend {
	case LockBackendMemory:
	case LockBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when lockBackend is redis (set in config.yaml or REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("config: lockBackend must be %q or %q, got %q", LockBackendMemory, LockBackendRedis, cfg.LockBackend)
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must be non-negative")
	}
	if cfg.WriteRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when writeRateLimitPerMinute is set")
	}
	for _, b := range cfg.SeedBrands {
		if !domain.ValidBrandName(b) {
			return fmt.Errorf("config: invalid seed brand %q", b)
		}
	}
	return nil
}

// LockTTL returns the Redis lock lease.
func (c FileConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Metrics reports whether /metrics is served.
func (c FileConfig) Metrics() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}
