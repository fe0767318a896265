// Package config defines the core configuration shared by the bot
// binaries and its validation rules.
package config

import (
	"fmt"
	"strings"
)

// TelegramConfig selects how updates reach the bot.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds sets the getUpdates timeout; 0 means the
	// built-in default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is only consulted when run_mode is webhook.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig tunes the structured log pipeline.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	// Stacks toggles stack traces on panic lines; default on.
	Stacks string `yaml:"stacks"`
	Dir    string `yaml:"dir"`
	// BotFile receives every line, ErrorsFile only warn and above.
	BotFile    string `yaml:"bot_file"`
	ErrorsFile string `yaml:"errors_file"`
	// Profile is the environment name, "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook receives updates over HTTPS push.
	RunModeWebhook = "webhook"
	// RunModeLongpoll pulls updates via getUpdates.
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted in rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig caps how often one user can hit the bot. Inline
// queries are usually excluded because clients fire one per keystroke.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the settings every bot binary shares.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Normalize validates required fields and rewrites aliases in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	mode, err := normalizeRunMode(cfg)
	if err != nil {
		return err
	}
	cfg.Telegram.RunMode = mode

	return normalizeExcludes(cfg)
}

func normalizeRunMode(cfg *Config) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch mode {
	case "", "polling":
		mode = RunModeLongpoll
	}

	switch mode {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return "", fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return "", fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return "", fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return "", fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return "", fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	return mode, nil
}

func normalizeExcludes(cfg *Config) error {
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "":
		case UpdateCallback, UpdateMessage, UpdateInlineQuery:
			cfg.RateLimit.ExcludeUpdates[i] = key
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	return nil
}
