package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/gex-live/internal/notify"
	"github.com/dgnsrekt/gex-live/internal/option"
)

type Config struct {
	Underlying string            `mapstructure:"underlying"`
	Expiration string            `mapstructure:"expiration"`
	Presets    map[string]Preset `mapstructure:"presets"`
	Strikes    StrikesConfig     `mapstructure:"strikes"`
	Fetch      FetchConfig       `mapstructure:"fetch"`
	Feed       FeedConfig        `mapstructure:"feed"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Watch      WatchConfig       `mapstructure:"watch"`
	Export     ExportConfig      `mapstructure:"export"`
	Notify     notify.Config     `mapstructure:"notify"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

type StrikesConfig struct {
	Above int `mapstructure:"above"`
	Below int `mapstructure:"below"`
}

type FetchConfig struct {
	Duration    time.Duration `mapstructure:"duration"`
	PriceBudget time.Duration `mapstructure:"price_budget"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Workers     int           `mapstructure:"workers"`
}

// FeedConfig points straight at a dxLink endpoint. When Token is empty the
// token is requested from the auth API instead.
type FeedConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type AuthConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	SessionToken  string        `mapstructure:"session_token"`
	TimeoutSec    int           `mapstructure:"timeout_sec"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryDelay    int           `mapstructure:"retry_delay_sec"`
	RatePerSecond int           `mapstructure:"rate_per_second"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

type WatchConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MarketDaysOnly bool          `mapstructure:"market_days_only"`
}

type ExportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("underlying", "SPX")
	v.SetDefault("expiration", "")
	v.SetDefault("presets", defaultPresetsMap())
	v.SetDefault("strikes.above", 25)
	v.SetDefault("strikes.below", 25)
	v.SetDefault("fetch.duration", 15*time.Second)
	v.SetDefault("fetch.price_budget", 5*time.Second)
	v.SetDefault("fetch.read_timeout", 500*time.Millisecond)
	v.SetDefault("fetch.workers", 3)
	v.SetDefault("feed.url", DefaultFeedURL)
	v.SetDefault("auth.base_url", "https://api.tastyworks.com")
	v.SetDefault("auth.timeout_sec", 30)
	v.SetDefault("auth.retry_count", 3)
	v.SetDefault("auth.retry_delay_sec", 2)
	v.SetDefault("auth.rate_per_second", 1)
	v.SetDefault("auth.cache_ttl", 12*time.Hour)
	v.SetDefault("watch.interval", time.Minute)
	v.SetDefault("watch.market_days_only", true)
	v.SetDefault("export.enabled", false)
	v.SetDefault("export.directory", "data")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "chart_with_upwards_trend")
	v.SetDefault("notify.on_success", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind secrets to short env var names
	_ = v.BindEnv("feed.token", "GEX_FEED_TOKEN")
	_ = v.BindEnv("auth.session_token", "GEX_SESSION_TOKEN")
	_ = v.BindEnv("notify.token", "GEX_NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Underlying = strings.ToUpper(cfg.Underlying)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Preset returns the preset of the configured underlying.
func (c *Config) Preset() (Preset, bool) {
	return c.PresetFor(c.Underlying)
}

// PresetFor looks a preset up by underlying symbol, case-insensitively.
func (c *Config) PresetFor(symbol string) (Preset, bool) {
	p, ok := c.Presets[strings.ToLower(symbol)]
	return p, ok
}

// ExpirationFor returns the configured expiration, or the nearest NYSE
// trading day when none is set.
func (c *Config) ExpirationFor(now time.Time) string {
	if c.Expiration != "" {
		return c.Expiration
	}
	return option.DefaultExpiration(now)
}
