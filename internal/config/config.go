package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	YouTube   YouTubeConfig   `yaml:"youtube" mapstructure:"youtube"`
	Twitter   TwitterConfig   `yaml:"twitter" mapstructure:"twitter"`
	Stripe    StripeConfig    `yaml:"stripe" mapstructure:"stripe"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Temporal  TemporalConfig  `yaml:"temporal" mapstructure:"temporal"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Evaluate  EvaluateConfig  `yaml:"evaluate" mapstructure:"evaluate"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// YouTubeConfig holds YouTube Data API settings.
type YouTubeConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TwitterConfig holds X/Twitter API v2 settings.
type TwitterConfig struct {
	BearerToken string  `yaml:"bearer_token" mapstructure:"bearer_token"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StripeConfig holds Stripe REST API settings.
type StripeConfig struct {
	SecretKey string  `yaml:"secret_key" mapstructure:"secret_key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GoogleConfig holds Google Geocoding API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// TemporalConfig configures the Temporal client. An empty HostPort disables workflows.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// Enabled reports whether a Temporal frontend is configured.
func (c TemporalConfig) Enabled() bool {
	return c.HostPort != ""
}

// NotifyConfig selects and configures the owner notifier.
type NotifyConfig struct {
	// Kind is one of "log", "webhook" or "notion".
	Kind        string `yaml:"kind" mapstructure:"kind"`
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	NotionToken string `yaml:"notion_token" mapstructure:"notion_token"`
	NotionDB    string `yaml:"notion_db" mapstructure:"notion_db"`
}

// DiscoveryConfig tunes a discovery run.
type DiscoveryConfig struct {
	MaxKeywords         int `yaml:"max_keywords" mapstructure:"max_keywords"`
	ResultsPerKeyword   int `yaml:"results_per_keyword" mapstructure:"results_per_keyword"`
	SearchConcurrency   int `yaml:"search_concurrency" mapstructure:"search_concurrency"`
	EvaluateConcurrency int `yaml:"evaluate_concurrency" mapstructure:"evaluate_concurrency"`
	SearchTimeoutSecs   int `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	EvaluateTimeoutSecs int `yaml:"evaluate_timeout_secs" mapstructure:"evaluate_timeout_secs"`
	RetryAttempts       int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs      int `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// EvaluateConfig configures the candidate evaluator.
type EvaluateConfig struct {
	// RubricsPath optionally points at a YAML file overriding the built-in tier rubrics.
	RubricsPath string `yaml:"rubrics_path" mapstructure:"rubrics_path"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ImportConfig configures bulk campaign import.
type ImportConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	RowConcurrency int    `yaml:"row_concurrency" mapstructure:"row_concurrency"`
	BatchesPerRun  int    `yaml:"batches_per_run" mapstructure:"batches_per_run"`
	DefaultQuota   int    `yaml:"default_quota" mapstructure:"default_quota"`
	DefaultCharset string `yaml:"default_charset" mapstructure:"default_charset"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxUploadMB     int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.rate_limit", 5.0)
	v.SetDefault("twitter.base_url", "https://api.twitter.com/2")
	v.SetDefault("twitter.rate_limit", 1.0)
	v.SetDefault("stripe.base_url", "https://api.stripe.com/v1")
	v.SetDefault("stripe.rate_limit", 20.0)
	v.SetDefault("google.base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "affiliate-scout")
	v.SetDefault("notify.kind", "log")
	v.SetDefault("discovery.max_keywords", 5)
	v.SetDefault("discovery.results_per_keyword", 25)
	v.SetDefault("discovery.search_concurrency", 5)
	v.SetDefault("discovery.evaluate_concurrency", 5)
	v.SetDefault("discovery.search_timeout_secs", 20)
	v.SetDefault("discovery.evaluate_timeout_secs", 30)
	v.SetDefault("discovery.retry_attempts", 3)
	v.SetDefault("discovery.retry_backoff_ms", 500)
	v.SetDefault("discovery.breaker_threshold", 5)
	v.SetDefault("discovery.breaker_cooldown_secs", 30)
	v.SetDefault("evaluate.max_tokens", 512)
	v.SetDefault("import.batch_size", 100)
	v.SetDefault("import.row_concurrency", 4)
	v.SetDefault("import.batches_per_run", 50)
	v.SetDefault("import.default_quota", 10)
	v.SetDefault("import.default_charset", "utf-8")

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

// Validate checks the settings a command needs. Mode is the command name:
// "serve", "worker", "discover", "import" or "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "import":
		errs = append(errs, c.validateImport()...)
		errs = append(errs, c.validateNotify()...)
	case "serve", "worker", "discover":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.YouTube.Key == "" && c.Twitter.BearerToken == "" && c.Stripe.SecretKey == "" {
			errs = append(errs, "at least one of youtube.key, twitter.bearer_token, stripe.secret_key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "worker" && !c.Temporal.Enabled() {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Discovery.MaxKeywords < 1 || c.Discovery.MaxKeywords > 20 {
			errs = append(errs, "discovery.max_keywords must be between 1 and 20")
		}
		if c.Discovery.EvaluateConcurrency < 1 || c.Discovery.SearchConcurrency < 1 {
			errs = append(errs, "discovery concurrency settings must be >= 1")
		}
		errs = append(errs, c.validateImport()...)
		errs = append(errs, c.validateNotify()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateImport() []string {
	var errs []string
	if c.Import.BatchSize <= 0 {
		errs = append(errs, "import.batch_size must be > 0")
	}
	if c.Import.RowConcurrency <= 0 {
		errs = append(errs, "import.row_concurrency must be > 0")
	}
	return errs
}

func (c *Config) validateNotify() []string {
	switch c.Notify.Kind {
	case "", "log":
		return nil
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return []string{"notify.webhook_url is required"}
		}
	case "notion":
		if c.Notify.NotionToken == "" || c.Notify.NotionDB == "" {
			return []string{"notify.notion_token and notify.notion_db are required"}
		}
	default:
		return []string{fmt.Sprintf("notify.kind %q must be log, webhook or notion", c.Notify.Kind)}
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
