// Package config loads server configuration from an optional YAML file
// and EH_-prefixed environment variables, layered over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Origin   OriginConfig   `mapstructure:"origin"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the listen address of the HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// OriginConfig holds upstream fetch behavior.
type OriginConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Exhentai       bool          `mapstructure:"exhentai"`
}

// TierConfig sizes one cache tier.
type TierConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// CacheConfig sizes every cache tier the server runs.
type CacheConfig struct {
	Listing TierConfig `mapstructure:"listing"`
	Detail  TierConfig `mapstructure:"detail"`
	Gallery TierConfig `mapstructure:"gallery"`
	Cursor  TierConfig `mapstructure:"cursor"`
	Raw     TierConfig `mapstructure:"raw"`
	Proxy   TierConfig `mapstructure:"proxy"`
}

// ResolverConfig bounds the per-gallery image resolution fan-out.
type ResolverConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
}

// ProxyConfig holds image transform defaults. Thumbnail values apply to
// previews rewritten into listing and gallery responses.
type ProxyConfig struct {
	DefaultWidth   int `mapstructure:"default_width"`
	DefaultQuality int `mapstructure:"default_quality"`
	ThumbWidth     int `mapstructure:"thumb_width"`
	ThumbQuality   int `mapstructure:"thumb_quality"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Origin: OriginConfig{
			Timeout:        20 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
		Cache: CacheConfig{
			Listing: TierConfig{Capacity: 100, TTL: 5 * time.Minute},
			Detail:  TierConfig{Capacity: 500, TTL: time.Hour},
			Gallery: TierConfig{Capacity: 500, TTL: time.Hour},
			Cursor:  TierConfig{Capacity: 2048, TTL: 30 * time.Minute},
			Raw:     TierConfig{Capacity: 256, TTL: 15 * time.Minute},
			Proxy:   TierConfig{Capacity: 1000, TTL: 24 * time.Hour},
		},
		Resolver: ResolverConfig{
			MaxConcurrency: 10,
			BatchTimeout:   45 * time.Second,
		},
		Proxy: ProxyConfig{
			DefaultWidth:   400,
			DefaultQuality: 50,
			ThumbWidth:     150,
			ThumbQuality:   40,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given file path, if any, then applies
// EH_-prefixed environment variables (EH_SERVER_PORT, EH_CACHE_LISTING_TTL,
// and so on). A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("EH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so env overrides apply even
// when the key never appears in a config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("origin.user_agent", d.Origin.UserAgent)
	v.SetDefault("origin.timeout", d.Origin.Timeout)
	v.SetDefault("origin.max_attempts", d.Origin.MaxAttempts)
	v.SetDefault("origin.initial_backoff", d.Origin.InitialBackoff)
	v.SetDefault("origin.max_backoff", d.Origin.MaxBackoff)
	v.SetDefault("origin.exhentai", d.Origin.Exhentai)
	for name, tier := range map[string]TierConfig{
		"listing": d.Cache.Listing,
		"detail":  d.Cache.Detail,
		"gallery": d.Cache.Gallery,
		"cursor":  d.Cache.Cursor,
		"raw":     d.Cache.Raw,
		"proxy":   d.Cache.Proxy,
	} {
		v.SetDefault("cache."+name+".capacity", tier.Capacity)
		v.SetDefault("cache."+name+".ttl", tier.TTL)
	}
	v.SetDefault("resolver.max_concurrency", d.Resolver.MaxConcurrency)
	v.SetDefault("resolver.batch_timeout", d.Resolver.BatchTimeout)
	v.SetDefault("proxy.default_width", d.Proxy.DefaultWidth)
	v.SetDefault("proxy.default_quality", d.Proxy.DefaultQuality)
	v.SetDefault("proxy.thumb_width", d.Proxy.ThumbWidth)
	v.SetDefault("proxy.thumb_quality", d.Proxy.ThumbQuality)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Origin.MaxAttempts < 1 {
		return fmt.Errorf("origin.max_attempts must be at least 1, got %d", c.Origin.MaxAttempts)
	}
	for name, tier := range map[string]TierConfig{
		"listing": c.Cache.Listing,
		"detail":  c.Cache.Detail,
		"gallery": c.Cache.Gallery,
		"cursor":  c.Cache.Cursor,
		"raw":     c.Cache.Raw,
		"proxy":   c.Cache.Proxy,
	} {
		if tier.Capacity <= 0 {
			return fmt.Errorf("cache.%s.capacity must be positive, got %d", name, tier.Capacity)
		}
		if tier.TTL <= 0 {
			return fmt.Errorf("cache.%s.ttl must be positive, got %s", name, tier.TTL)
		}
	}
	if c.Resolver.MaxConcurrency < 1 {
		return fmt.Errorf("resolver.max_concurrency must be at least 1, got %d", c.Resolver.MaxConcurrency)
	}
	if c.Resolver.BatchTimeout <= 0 {
		return fmt.Errorf("resolver.batch_timeout must be positive, got %s", c.Resolver.BatchTimeout)
	}
	for name, q := range map[string]int{
		"proxy.default_quality": c.Proxy.DefaultQuality,
		"proxy.thumb_quality":   c.Proxy.ThumbQuality,
	} {
		if q < 1 || q > 100 {
			return fmt.Errorf("%s %d out of range 1-100", name, q)
		}
	}
	for name, w := range map[string]int{
		"proxy.default_width": c.Proxy.DefaultWidth,
		"proxy.thumb_width":   c.Proxy.ThumbWidth,
	} {
		if w < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, w)
		}
	}
	return nil
}
