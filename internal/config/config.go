package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Provider names known to the engine.
const (
	ProviderWhois    = "whois"
	ProviderWebsite  = "website"
	ProviderNews     = "news"
	ProviderLocation = "location"
	ProviderTimezone = "timezone"
	ProviderHolidays = "holidays"
)

// Cache backings.
const (
	BackingSQLite   = "sqlite"
	BackingPostgres = "postgres"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig                 `yaml:"log" mapstructure:"log"`
	Server    ServerConfig              `yaml:"server" mapstructure:"server"`
	Cache     CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Retry     RetryConfig               `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig             `yaml:"circuit" mapstructure:"circuit"`
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Scoring   ScoringConfig             `yaml:"scoring" mapstructure:"scoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Capacity       int    `yaml:"capacity" mapstructure:"capacity"`
	DefaultTTLSecs int    `yaml:"default_ttl_secs" mapstructure:"default_ttl_secs"`
	Backing        string `yaml:"backing" mapstructure:"backing"` // "", "sqlite" or "postgres"
	DatabaseURL    string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns       int    `yaml:"max_conns" mapstructure:"max_conns"` // postgres pool sizing
	MinConns       int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// DefaultTTL returns the fallback TTL for providers without their own.
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSecs) * time.Second
}

// RetryConfig configures gateway retries for transient failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ProviderConfig configures one upstream data provider.
type ProviderConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// Timeout returns the per-attempt call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// CacheTTL returns how long successful responses stay cached.
func (p ProviderConfig) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSecs) * time.Second
}

// ScoringConfig tunes classification inputs.
type ScoringConfig struct {
	IndustryKeywords []string `yaml:"industry_keywords" mapstructure:"industry_keywords"`
	NewsWindowDays   int      `yaml:"news_window_days" mapstructure:"news_window_days"`
}

var providerDefaults = map[string]ProviderConfig{
	ProviderWhois:    {Enabled: true, RatePerSec: 1, TimeoutSecs: 10, CacheTTLSecs: 86400},
	ProviderWebsite:  {Enabled: true, RatePerSec: 2, TimeoutSecs: 10, CacheTTLSecs: 900},
	ProviderNews:     {Enabled: true, RatePerSec: 1, TimeoutSecs: 15, CacheTTLSecs: 3600},
	ProviderLocation: {Enabled: true, RatePerSec: 1, TimeoutSecs: 10, CacheTTLSecs: 604800},
	ProviderTimezone: {Enabled: true, RatePerSec: 1, TimeoutSecs: 10, CacheTTLSecs: 604800},
	ProviderHolidays: {Enabled: true, RatePerSec: 1, TimeoutSecs: 10, CacheTTLSecs: 604800},
}

// Load reads configuration from config.yaml (optional) and INTEL_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.default_ttl_secs", 3600)
	v.SetDefault("cache.backing", "")
	v.SetDefault("cache.max_conns", 4)
	v.SetDefault("cache.min_conns", 1)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("scoring.news_window_days", 30)
	v.SetDefault("scoring.industry_keywords", []string{})
	for name, p := range providerDefaults {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"enabled", p.Enabled)
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"rate_per_sec", p.RatePerSec)
		v.SetDefault(prefix+"timeout_secs", p.TimeoutSecs)
		v.SetDefault(prefix+"cache_ttl_secs", p.CacheTTLSecs)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c *Config) Validate() error {
	switch c.Cache.Backing {
	case "", BackingSQLite, BackingPostgres:
	default:
		return eris.Errorf("config: unknown cache backing %q", c.Cache.Backing)
	}
	if c.Cache.Backing != "" && c.Cache.DatabaseURL == "" {
		return eris.Errorf("config: cache.database_url is required for %s backing", c.Cache.Backing)
	}
	for name, p := range c.Providers {
		if p.RatePerSec < 0 {
			return eris.Errorf("config: providers.%s.rate_per_sec must be >= 0", name)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
