// Package config loads the consult configuration from an optional YAML file
// overlaid with CONSULT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Service ServiceConfig       `mapstructure:"service" yaml:"service"`
	Targets []domain.TargetInfo `mapstructure:"targets" yaml:"targets"`
	Store   StoreConfig         `mapstructure:"store" yaml:"store"`
	Server  ServerConfig        `mapstructure:"server" yaml:"server"`
	Session SessionConfig       `mapstructure:"session" yaml:"session"`
	Log     LogConfig           `mapstructure:"log" yaml:"log"`
}

// ServiceConfig points at the remote inference service.
type ServiceConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Token   string        `mapstructure:"token" yaml:"token"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"` // memory | file | redis
	Dir    string      `mapstructure:"dir" yaml:"dir"`       // file driver only
	Redis  RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type ServerConfig struct {
	Port        int `mapstructure:"port" yaml:"port"`
	MetricsPort int `mapstructure:"metrics_port" yaml:"metrics_port"` // 0 disables the metrics listener
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	AutoTrace bool          `mapstructure:"auto_trace" yaml:"auto_trace"`
	LockTTL   time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	LockWait  time.Duration `mapstructure:"lock_wait" yaml:"lock_wait"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text | json
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONSULT_"

// envKeys maps environment variable suffixes to configuration paths.
var envKeys = map[string]string{
	"SERVICE_URL":     "service.url",
	"SERVICE_TIMEOUT": "service.timeout",
	"SERVICE_TOKEN":   "service.token",
	"TARGETS":         "targets",
	"STORE_DRIVER":    "store.driver",
	"STORE_DIR":       "store.dir",
	"REDIS_ADDR":      "store.redis.addr",
	"REDIS_PASSWORD":  "store.redis.password",
	"REDIS_DB":        "store.redis.db",
	"REDIS_PREFIX":    "store.redis.prefix",
	"REDIS_TTL":       "store.redis.ttl",
	"SERVER_PORT":     "server.port",
	"METRICS_PORT":    "server.metrics_port",
	"AUTO_TRACE":      "session.auto_trace",
	"LOCK_TTL":        "session.lock_ttl",
	"LOCK_WAIT":       "session.lock_wait",
	"LOG_LEVEL":       "log.level",
	"LOG_FORMAT":      "log.format",
}

func defaults() map[string]any {
	return map[string]any{
		"service": map[string]any{
			"url":     "http://localhost:8000/api",
			"timeout": "10s",
		},
		"store": map[string]any{
			"driver": DriverMemory,
			"dir":    ".consult/sessions",
			"redis": map[string]any{
				"addr":   "localhost:6379",
				"prefix": "consult:session:",
			},
		},
		"server": map[string]any{
			"port":         8080,
			"metrics_port": 9090,
		},
		"session": map[string]any{
			"auto_trace": false,
			"lock_ttl":   "30s",
			"lock_wait":  "2s",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}
}

// Default returns the configuration used when no file or overrides exist.
func Default() *Config {
	cfg, err := decode(defaults())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads path (optional, "" skips the file), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	raw := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		var file map[string]any
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		merge(raw, file)
	}

	for suffix, key := range envKeys {
		if v, ok := os.LookupEnv(EnvPrefix + suffix); ok {
			set(raw, key, v)
		}
	}

	cfg, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service.url must be an absolute http(s) URL, got %q", c.Service.URL)
	}
	if c.Service.Timeout <= 0 {
		return errors.New("service.timeout must be positive")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file driver")
		}
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid server.metrics_port %d", c.Server.MetricsPort)
	}
	for _, t := range c.Targets {
		if t.ID == domain.TargetAll {
			return fmt.Errorf("target id %q is reserved", domain.TargetAll)
		}
	}
	return nil
}

// Catalog builds the target catalog. No configured targets means the built-in list.
func (c *Config) Catalog() *domain.Catalog {
	return domain.NewCatalog(c.Targets...)
}

func decode(raw map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToTargetInfo,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// stringToTargetInfo lets targets be listed by bare id.
func stringToTargetInfo(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(domain.TargetInfo{}) {
		return data, nil
	}
	return domain.TargetInfo{ID: domain.Target(strings.TrimSpace(data.(string)))}, nil
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub)
				continue
			}
		}
		dst[k] = v
	}
}

func set(raw map[string]any, key, value string) {
	parts := strings.Split(key, ".")
	m := raw
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
