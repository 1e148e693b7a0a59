package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Images     ImagesConfig     `yaml:"images" mapstructure:"images"`
	Blob       BlobConfig       `yaml:"blob" mapstructure:"blob"`
	Popularity PopularityConfig `yaml:"popularity" mapstructure:"popularity"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Pool        *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig tunes the postgres connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPhotos   int     `yaml:"max_photos" mapstructure:"max_photos"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ImagesConfig configures the gallery pipeline.
type ImagesConfig struct {
	AnalysisThreshold int  `yaml:"analysis_threshold" mapstructure:"analysis_threshold"`
	MaxPerEntity      int  `yaml:"max_per_entity" mapstructure:"max_per_entity"`
	AutoHero          bool `yaml:"auto_hero" mapstructure:"auto_hero"`
}

// BlobConfig configures S3-compatible image storage.
type BlobConfig struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	PublicURL string `yaml:"public_url" mapstructure:"public_url"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// PopularityConfig holds occupancy thresholds for busy/quiet windows.
type PopularityConfig struct {
	BusyThreshold  int `yaml:"busy_threshold" mapstructure:"busy_threshold"`
	QuietThreshold int `yaml:"quiet_threshold" mapstructure:"quiet_threshold"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	GroupSize      int `yaml:"group_size" mapstructure:"group_size"`
	GroupDelaySecs int `yaml:"group_delay_secs" mapstructure:"group_delay_secs"`
	ItemDelaySecs  int `yaml:"item_delay_secs" mapstructure:"item_delay_secs"`
}

// PipelineConfig configures per-entity extraction behavior.
type PipelineConfig struct {
	LeaseTTLMinutes int `yaml:"lease_ttl_minutes" mapstructure:"lease_ttl_minutes"`
	StepTimeoutSecs int `yaml:"step_timeout_secs" mapstructure:"step_timeout_secs"`
}

// RegistryConfig points at the category taxonomy sidecar file.
type RegistryConfig struct {
	CategoriesPath string `yaml:"categories_path" mapstructure:"categories_path"`
}

// PricingConfig holds cost projection rates (USD).
type PricingConfig struct {
	FixedPerEntity float64                 `yaml:"fixed_per_entity" mapstructure:"fixed_per_entity"`
	PerStep        map[string]float64      `yaml:"per_step" mapstructure:"per_step"`
	Anthropic      map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENUEDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.rate_limit", 10)
	v.SetDefault("places.timeout_secs", 30)
	v.SetDefault("places.max_photos", 10)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.rate_limit", 2)
	v.SetDefault("firecrawl.timeout_secs", 90)
	v.SetDefault("firecrawl.max_results", 5)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("images.analysis_threshold", 3)
	v.SetDefault("images.max_per_entity", 12)
	v.SetDefault("images.auto_hero", true)
	v.SetDefault("popularity.busy_threshold", 60)
	v.SetDefault("popularity.quiet_threshold", 30)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("batch.group_size", 25)
	v.SetDefault("batch.group_delay_secs", 30)
	v.SetDefault("batch.item_delay_secs", 0)
	v.SetDefault("pipeline.lease_ttl_minutes", 15)
	v.SetDefault("pipeline.step_timeout_secs", 300)
	v.SetDefault("pricing.fixed_per_entity", 0.01)
	v.SetDefault("pricing.per_step", map[string]float64{
		"fetch_geo": 0.017,
		"crawl":     0.05,
		"enhance":   0.04,
		"images":    0.08,
		"finalize":  0.02,
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields a command depends on are set. Mode is
// the command family: "run" covers single-entity and batch extraction,
// "status" only needs a reachable store.
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "run":
		needStore()
		if c.Places.Key == "" {
			problems = append(problems, "places.key is required")
		}
		if c.Firecrawl.Key == "" {
			problems = append(problems, "firecrawl.key is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
			problems = append(problems, "batch.max_concurrent must be between 1 and 50")
		}
		if c.Images.AnalysisThreshold < 0 {
			problems = append(problems, "images.analysis_threshold must be >= 0")
		}
		if c.Popularity.BusyThreshold <= c.Popularity.QuietThreshold {
			problems = append(problems, "popularity.busy_threshold must exceed quiet_threshold")
		}
	case "status":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
