// Package config loads the offline cache configuration from an optional
// YAML file and OFFLINE_CACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/classify"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/Sternrassler/offline-cache/pkg/generation"
	"github.com/Sternrassler/offline-cache/pkg/logging"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OFFLINE_CACHE_"

// DefaultManifest is the app shell and CDN dependencies pre-cached on install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"https://cdn.tailwindcss.com",
	"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700;800&display=swap",
	"https://esm.sh/react-dom@^19.2.3/",
	"https://esm.sh/react@^19.2.3/",
	"https://esm.sh/react@^19.2.3",
	"https://esm.sh/@supabase/supabase-js@2",
	"https://esm.sh/jspdf@2.5.1",
	"https://esm.sh/jspdf-autotable@3.8.2",
}

// Config is the complete offline cache configuration.
type Config struct {
	// Origin is the application origin root-relative URLs resolve against
	Origin string `yaml:"origin"`

	// Listen is the proxy listen address
	Listen string `yaml:"listen"`

	// AdminListen serves health, readiness, metrics and lifecycle messages.
	// It is separate from Listen so every proxied path reaches the origin.
	AdminListen string `yaml:"adminListen"`

	Cache        CacheConfig       `yaml:"cache"`
	RemoteAssets RemoteAssetConfig `yaml:"remoteAssets"`
	Store        StoreConfig       `yaml:"store"`
	Network      NetworkConfig     `yaml:"network"`
	Log          LogConfig         `yaml:"log"`
}

// CacheConfig names the generation and lists what it pre-caches.
type CacheConfig struct {
	Prefix               string   `yaml:"prefix"`
	Version              string   `yaml:"version"`
	DynamicBucket        string   `yaml:"dynamicBucket"`
	Manifest             []string `yaml:"manifest"`
	SkipWaitingOnInstall bool     `yaml:"skipWaitingOnInstall"`
	Concurrency          int      `yaml:"concurrency"`
}

// RemoteAssetConfig is the object-storage matching rule.
type RemoteAssetConfig struct {
	HostFragment string `yaml:"hostFragment"`
	PathSegment  string `yaml:"pathSegment"`
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlitePath"`
	RedisAddr   string `yaml:"redisAddr"`
	RedisDB     int    `yaml:"redisDB"`
	RedisPrefix string `yaml:"redisPrefix"`
}

// NetworkConfig configures the fetcher.
type NetworkConfig struct {
	// Timeout is zero by default: fetches have no deadline
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"userAgent"`
	FollowRedirects bool          `yaml:"followRedirects"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Origin:      "http://localhost:5173",
		Listen:      ":8080",
		AdminListen: ":9090",
		Cache: CacheConfig{
			Prefix:               "quick-orders",
			Version:              "v4.2-resilience",
			DynamicBucket:        "quick-orders-dynamic-v1",
			Manifest:             append([]string(nil), DefaultManifest...),
			SkipWaitingOnInstall: true,
			Concurrency:          generation.DefaultConcurrency,
		},
		RemoteAssets: RemoteAssetConfig{
			HostFragment: classify.DefaultHostFragment,
			PathSegment:  classify.DefaultPathSegment,
		},
		Store: StoreConfig{
			Backend:     cache.BackendMemory,
			SQLitePath:  "offline-cache.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: cache.DefaultRedisPrefix,
		},
		Network: NetworkConfig{
			UserAgent: "offline-cache/0.1.0",
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
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

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("ORIGIN", &c.Origin)
	str("LISTEN", &c.Listen)
	str("ADMIN_LISTEN", &c.AdminListen)
	str("PREFIX", &c.Cache.Prefix)
	str("VERSION", &c.Cache.Version)
	str("DYNAMIC_BUCKET", &c.Cache.DynamicBucket)
	str("STORE_BACKEND", &c.Store.Backend)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("REDIS_ADDR", &c.Store.RedisAddr)
	str("REDIS_PREFIX", &c.Store.RedisPrefix)
	str("USER_AGENT", &c.Network.UserAgent)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "MANIFEST"); ok && v != "" {
		var manifest []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				manifest = append(manifest, item)
			}
		}
		c.Cache.Manifest = manifest
	}

	var errs []error
	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err))
		}
		c.Store.RedisDB = db
	}
	if v, ok := lookup(EnvPrefix + "CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCONCURRENCY: %w", EnvPrefix, err))
		}
		c.Cache.Concurrency = n
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err))
		}
		c.Network.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "SKIP_WAITING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSKIP_WAITING: %w", EnvPrefix, err))
		}
		c.Cache.SkipWaitingOnInstall = b
	}
	if v, ok := lookup(EnvPrefix + "LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOG_PRETTY: %w", EnvPrefix, err))
		}
		c.Log.Pretty = b
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.OriginURL(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Names(); err != nil {
		errs = append(errs, err)
	}

	if c.AdminListen == "" {
		errs = append(errs, errors.New("admin listen address is required"))
	} else if c.AdminListen == c.Listen {
		errs = append(errs, fmt.Errorf("admin listen address %q must differ from listen address", c.AdminListen))
	}

	switch c.Store.Backend {
	case cache.BackendMemory, cache.BackendSQLite, cache.BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	if c.Network.Timeout < 0 {
		errs = append(errs, fmt.Errorf("network timeout must be >= 0 (got %s)", c.Network.Timeout))
	}
	if c.Cache.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0 (got %d)", c.Cache.Concurrency))
	}

	for _, raw := range c.Cache.Manifest {
		u, err := url.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("manifest entry %q: %w", raw, err))
			continue
		}
		if !u.IsAbs() && !strings.HasPrefix(raw, "/") {
			errs = append(errs, fmt.Errorf("manifest entry %q must be absolute or root-relative", raw))
		}
	}

	return errors.Join(errs...)
}

// OriginURL parses the origin.
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin %q: %w", c.Origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin %q must include scheme and host", c.Origin)
	}
	return u, nil
}

// Names returns the bucket names of the configured generation.
func (c *Config) Names() (generation.Names, error) {
	return generation.NewNames(c.Cache.Prefix, c.Cache.Version, c.Cache.DynamicBucket)
}

// StoreOptions returns the cache backend options.
func (c *Config) StoreOptions() cache.Options {
	return cache.Options{
		Backend:     c.Store.Backend,
		SQLitePath:  c.Store.SQLitePath,
		RedisAddr:   c.Store.RedisAddr,
		RedisDB:     c.Store.RedisDB,
		RedisPrefix: c.Store.RedisPrefix,
	}
}

// ClientConfig returns the fetcher configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Timeout = c.Network.Timeout
	cfg.UserAgent = c.Network.UserAgent
	cfg.FollowRedirects = c.Network.FollowRedirects
	return cfg
}

// RemoteAssetRule returns the classification rule.
func (c *Config) RemoteAssetRule() classify.RemoteAssetRule {
	return classify.RemoteAssetRule{
		HostFragment: c.RemoteAssets.HostFragment,
		PathSegment:  c.RemoteAssets.PathSegment,
	}
}

// GenerationConfig returns the generation manager configuration.
func (c *Config) GenerationConfig() (generation.Config, error) {
	names, err := c.Names()
	if err != nil {
		return generation.Config{}, err
	}
	origin, err := c.OriginURL()
	if err != nil {
		return generation.Config{}, err
	}
	return generation.Config{
		Names:       names,
		Manifest:    c.Cache.Manifest,
		Origin:      origin,
		Concurrency: c.Cache.Concurrency,
	}, nil
}

// LoggingConfig returns the logger configuration writing to stderr.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
