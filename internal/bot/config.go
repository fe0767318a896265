package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "stickerdex/core/config"
	coredatabase "stickerdex/core/database"
)

// SentryConfig enables crash and milestone reporting when a DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn" envconfig:"SENTRY_DSN"`
	Environment string `yaml:"environment" envconfig:"SENTRY_ENVIRONMENT"`
}

// BotConfig carries the sticker-workflow settings on top of the core
// telegram/runtime sections.
type BotConfig struct {
	// DefaultLocale is the BCP 47 tag used for messages when the
	// sender's Telegram profile gives no usable language.
	DefaultLocale string `yaml:"default_locale" envconfig:"BOT_DEFAULT_LOCALE"`
	// InlinePageSize caps one inline answer. Telegram allows at most 50.
	InlinePageSize int `yaml:"inline_page_size" envconfig:"BOT_INLINE_PAGE_SIZE"`

	SendQueueSize int `yaml:"send_queue_size" envconfig:"BOT_SEND_QUEUE_SIZE"`
	SendWorkers   int `yaml:"send_workers" envconfig:"BOT_SEND_WORKERS"`
	// SendRate caps outbound Telegram calls per second.
	SendRate int `yaml:"send_rate" envconfig:"BOT_SEND_RATE"`
}

// Config is the full application configuration: the reusable core
// sections inlined at the top level plus the app-specific ones.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Sentry   SentryConfig        `yaml:"sentry"`
	Bot      BotConfig           `yaml:"bot"`
}

// CoreConfig exposes the embedded core configuration for cmd.Run.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalizeBot(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeBot(cfg *Config) error {
	b := &cfg.Bot

	b.DefaultLocale = strings.TrimSpace(b.DefaultLocale)
	if b.DefaultLocale == "" {
		b.DefaultLocale = "en"
	}

	switch {
	case b.InlinePageSize < 0:
		return fmt.Errorf("bot.inline_page_size must be >= 0")
	case b.InlinePageSize == 0:
		b.InlinePageSize = 50
	case b.InlinePageSize > 50:
		return fmt.Errorf("bot.inline_page_size must be <= 50, got %d", b.InlinePageSize)
	}

	if b.SendQueueSize < 0 || b.SendWorkers < 0 || b.SendRate < 0 {
		return fmt.Errorf("bot send queue settings must be >= 0")
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	return nil
}
