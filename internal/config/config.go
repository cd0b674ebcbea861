// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/moruklabs/dev-archive/internal/archive"
)

// Config captures all archiver configuration knobs loaded via Viper,
// including the declarative archive document (definitions + targets).
type Config struct {
	Archive     ArchiveConfig       `mapstructure:"archive"`
	Expand      ExpandConfig        `mapstructure:"expand"`
	Fetch       FetchConfig         `mapstructure:"fetch"`
	Pipeline    PipelineConfig      `mapstructure:"pipeline"`
	Metrics     MetricsConfig       `mapstructure:"metrics"`
	Telegram    TelegramConfig      `mapstructure:"telegram"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	Definitions archive.Definitions `mapstructure:"definitions"`
	Targets     []archive.Target    `mapstructure:"targets"`
}

// ArchiveConfig sets the artifact root and the archive's public base URL
// used when rewriting feed links.
type ArchiveConfig struct {
	Root          string `mapstructure:"root"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// ExpandConfig governs target expansion.
type ExpandConfig struct {
	TodayFormat string `mapstructure:"today_format"`
	GroupBy     string `mapstructure:"group_by"`
}

// FetchConfig configures HTTP fetch and retry behavior.
type FetchConfig struct {
	AllowedDomains []string `mapstructure:"allowed_domains"`
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxAttempts    int      `mapstructure:"max_attempts"`
	BackoffBase    float64  `mapstructure:"backoff_base"`
}

// PipelineConfig governs grouping, concurrency, and pacing.
type PipelineConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	DelayMinSeconds float64 `mapstructure:"delay_min_seconds"`
	DelayMaxSeconds float64 `mapstructure:"delay_max_seconds"`
	TransformRSS    bool    `mapstructure:"transform_rss"`
}

// MetricsConfig controls the optional Prometheus listener. An empty
// listen address disables it, which suits the scheduled batch runs.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelegramConfig holds the notification sink credentials. Both values
// normally arrive through the environment, not the config file.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LoadSecrets reads the local .env secrets file unless running under
// GitHub Actions, where secrets come from the workflow environment.
// A missing .env file is not an error.
func LoadSecrets() {
	if strings.EqualFold(os.Getenv("GITHUB_ACTIONS"), "true") {
		return
	}
	_ = godotenv.Load(".env")
}

// Load builds a Config from the given file plus environment overrides.
// A missing or malformed config document is fatal: the run aborts before
// any expansion occurs.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The notification sink secrets keep their historical names.
	_ = v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archive.root", "rss")
	v.SetDefault("expand.today_format", archive.DefaultTodayFormat)
	v.SetDefault("expand.group_by", "lang")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; DevArchiveBot/1.0; +https://github.com/moruklabs/dev-archive)")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_base", 2)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.delay_min_seconds", 1)
	v.SetDefault("pipeline.delay_max_seconds", 3)
	v.SetDefault("pipeline.transform_rss", true)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Archive.Root == "" {
		return fmt.Errorf("archive.root must be set")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Fetch.BackoffBase < 1 {
		return fmt.Errorf("fetch.backoff_base must be >= 1")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.DelayMinSeconds < 0 || c.Pipeline.DelayMaxSeconds < c.Pipeline.DelayMinSeconds {
		return fmt.Errorf("pipeline delay range [%v, %v] is invalid",
			c.Pipeline.DelayMinSeconds, c.Pipeline.DelayMaxSeconds)
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DelayRange converts the configured inter-fetch delay bounds.
func (c Config) DelayRange() (time.Duration, time.Duration) {
	minDelay := time.Duration(c.Pipeline.DelayMinSeconds * float64(time.Second))
	maxDelay := time.Duration(c.Pipeline.DelayMaxSeconds * float64(time.Second))
	return minDelay, maxDelay
}
