package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_config.yml
var defaultFile []byte

// ErrDefaultsApplied reports that some values were missing or invalid and were
// replaced by defaults. The returned Config is still usable.
var ErrDefaultsApplied = errors.New("configuration defaults applied")

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full runtime configuration, read from config.yml.
type Config struct {
	Enabled              bool      `yaml:"enabled"`
	KickMessage          string    `yaml:"kick-message"`
	CacheDurationMinutes int       `yaml:"cache-duration"`
	CacheFailOpen        bool      `yaml:"cache-fail-open"`
	Debug                bool      `yaml:"debug"`
	Coalesce             bool      `yaml:"coalesce"`
	Heuristic            Heuristic `yaml:"heuristic"`
	MojangAPI            MojangAPI `yaml:"mojang-api"`
	Cache                Cache     `yaml:"cache"`
	Server               Server    `yaml:"server"`
}

type Heuristic struct {
	Enabled bool `yaml:"enabled"`
}

// MojangAPI configures the identity authority lookup.
type MojangAPI struct {
	Enabled        bool           `yaml:"enabled"`
	TimeoutMillis  int            `yaml:"timeout"`
	URL            string         `yaml:"url"`
	UserAgent      string         `yaml:"user-agent"`
	CircuitBreaker CircuitBreaker `yaml:"circuit-breaker"`
}

type CircuitBreaker struct {
	FailureThreshold int `yaml:"failure-threshold"`
	SuccessThreshold int `yaml:"success-threshold"`
	CooldownSeconds  int `yaml:"cooldown"`
}

type Cache struct {
	Backend              string      `yaml:"backend"`
	SweepIntervalSeconds int         `yaml:"sweep-interval"`
	Redis                RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection settings for the shared cache backend.
type RedisConfig struct {
	URL                string `yaml:"url"`
	PoolSize           int    `yaml:"pool-size"`
	MinIdleConns       int    `yaml:"min-idle-conns"`
	DialTimeoutMillis  int    `yaml:"dial-timeout"`
	ReadTimeoutMillis  int    `yaml:"read-timeout"`
	WriteTimeoutMillis int    `yaml:"write-timeout"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration, matching default_config.yml.
func Default() Config {
	return Config{
		Enabled:              true,
		KickMessage:          "&cPlease join from pakmc.xyz",
		CacheDurationMinutes: 5,
		CacheFailOpen:        true,
		Debug:                true,
		Coalesce:             true,
		Heuristic:            Heuristic{Enabled: true},
		MojangAPI: MojangAPI{
			Enabled:       true,
			TimeoutMillis: 3000,
			URL:           "https://api.mojang.com/users/profiles/minecraft",
			UserAgent:     "PremiumBlocker/1.0.0",
			CircuitBreaker: CircuitBreaker{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				CooldownSeconds:  30,
			},
		},
		Cache: Cache{
			Backend:              BackendMemory,
			SweepIntervalSeconds: 60,
			Redis: RedisConfig{
				PoolSize:           10,
				DialTimeoutMillis:  1000,
				ReadTimeoutMillis:  500,
				WriteTimeoutMillis: 500,
			},
		},
		Server: Server{Addr: ":8080"},
	}
}

// CacheTTL is how long a verdict stays valid.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheDurationMinutes) * time.Minute
}

// APITimeout bounds both connecting to and reading from the authority.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.MojangAPI.TimeoutMillis) * time.Millisecond
}

func (c CircuitBreaker) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c Cache) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (r RedisConfig) DialTimeout() time.Duration {
	return time.Duration(r.DialTimeoutMillis) * time.Millisecond
}

func (r RedisConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutMillis) * time.Millisecond
}

func (r RedisConfig) WriteTimeout() time.Duration {
	return time.Duration(r.WriteTimeoutMillis) * time.Millisecond
}

// EnsureFile writes the default configuration to path if nothing exists there.
// It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, defaultFile, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// Load reads path over the defaults. A missing or unreadable file, invalid
// YAML or out-of-range values never fail the load: the affected values fall
// back to defaults and the returned error wraps ErrDefaultsApplied.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", ErrDefaultsApplied, path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("%w: parse: %v", ErrDefaultsApplied, err)
	}
	if notes := cfg.normalize(); len(notes) > 0 {
		return cfg, fmt.Errorf("%w: %s", ErrDefaultsApplied, strings.Join(notes, "; "))
	}
	return cfg, nil
}

// normalize replaces invalid values with defaults and describes each change.
func (c *Config) normalize() []string {
	def := Default()
	var notes []string
	if c.CacheDurationMinutes <= 0 {
		notes = append(notes, fmt.Sprintf("cache-duration %d must be positive", c.CacheDurationMinutes))
		c.CacheDurationMinutes = def.CacheDurationMinutes
	}
	if c.MojangAPI.TimeoutMillis <= 0 {
		notes = append(notes, fmt.Sprintf("mojang-api.timeout %d must be positive", c.MojangAPI.TimeoutMillis))
		c.MojangAPI.TimeoutMillis = def.MojangAPI.TimeoutMillis
	}
	if strings.TrimSpace(c.MojangAPI.URL) == "" {
		notes = append(notes, "mojang-api.url is empty")
		c.MojangAPI.URL = def.MojangAPI.URL
	}
	if c.MojangAPI.UserAgent == "" {
		c.MojangAPI.UserAgent = def.MojangAPI.UserAgent
	}
	cb := &c.MojangAPI.CircuitBreaker
	if cb.FailureThreshold <= 0 {
		notes = append(notes, "mojang-api.circuit-breaker.failure-threshold must be positive")
		cb.FailureThreshold = def.MojangAPI.CircuitBreaker.FailureThreshold
	}
	if cb.SuccessThreshold <= 0 {
		notes = append(notes, "mojang-api.circuit-breaker.success-threshold must be positive")
		cb.SuccessThreshold = def.MojangAPI.CircuitBreaker.SuccessThreshold
	}
	if cb.CooldownSeconds <= 0 {
		notes = append(notes, "mojang-api.circuit-breaker.cooldown must be positive")
		cb.CooldownSeconds = def.MojangAPI.CircuitBreaker.CooldownSeconds
	}
	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.Redis.URL == "" {
			notes = append(notes, "cache.backend redis requires cache.redis.url, using memory")
			c.Cache.Backend = BackendMemory
		}
	default:
		notes = append(notes, fmt.Sprintf("cache.backend %q is unknown, using memory", c.Cache.Backend))
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.SweepIntervalSeconds <= 0 {
		c.Cache.SweepIntervalSeconds = def.Cache.SweepIntervalSeconds
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	return notes
}

// Path returns the config file location, PREMIUMBLOCKER_CONFIG or config.yml.
func Path() string {
	if p := os.Getenv("PREMIUMBLOCKER_CONFIG"); p != "" {
		return p
	}
	return "config.yml"
}

// ApplyEnv lets the environment override deployment-specific values so the
// same config file works across replicas.
func (c *Config) ApplyEnv() {
	if addr := os.Getenv("PREMIUMBLOCKER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv("PREMIUMBLOCKER_REDIS_URL"); url != "" {
		c.Cache.Redis.URL = url
		c.Cache.Backend = BackendRedis
	}
}
