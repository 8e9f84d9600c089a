package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// PaymentAPIConfig points at the stablecoin payment backend.
type PaymentAPIConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"PAYAPI_BASE_URL"`
	EventsURL      string `yaml:"events_url" envconfig:"PAYAPI_EVENTS_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"PAYAPI_TIMEOUT_SECONDS"`
}

// SessionConfig controls authorization session lifecycle policy.
type SessionConfig struct {
	// Backend selects the session store: "memory" (default) or "redis".
	Backend string `yaml:"backend" envconfig:"SESSION_BACKEND"`
	// MinLifetimeSeconds is the floor applied to every stored expiry.
	MinLifetimeSeconds int `yaml:"min_lifetime_seconds" envconfig:"SESSION_MIN_LIFETIME_SECONDS"`
	// RefreshThresholdSeconds triggers a background token refresh when a
	// session is read with less than this much lifetime remaining.
	RefreshThresholdSeconds int `yaml:"refresh_threshold_seconds" envconfig:"SESSION_REFRESH_THRESHOLD_SECONDS"`
	// RefreshIntervalSeconds is the scheduler scan interval.
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds" envconfig:"SESSION_REFRESH_INTERVAL_SECONDS"`
}

// LimitsConfig carries transfer bounds injected from backend policy.
// The bounds are policy values, not invariants; backend rejections
// are still surfaced verbatim.
type LimitsConfig struct {
	MinTransfer string `yaml:"min_transfer" envconfig:"LIMITS_MIN_TRANSFER"`
	MaxTransfer string `yaml:"max_transfer" envconfig:"LIMITS_MAX_TRANSFER"`
}

// RedisConfig holds connection settings for the optional Redis session store.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// SessionBackendMemory keeps sessions in process memory.
	SessionBackendMemory = "memory"
	// SessionBackendRedis stores sessions in Redis with a TTL.
	SessionBackendRedis = "redis"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates all application configuration.
type Config struct {
	Telegram  TelegramConfig   `yaml:"telegram"`
	Webhook   WebhookConfig    `yaml:"webhook"`
	Logging   LoggingConfig    `yaml:"logging"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	PayAPI    PaymentAPIConfig `yaml:"payapi"`
	Session   SessionConfig    `yaml:"session"`
	Limits    LimitsConfig     `yaml:"limits"`
	Redis     RedisConfig      `yaml:"redis"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.PayAPI.BaseURL) == "" {
		return fmt.Errorf("payapi.base_url is required")
	}
	if cfg.PayAPI.TimeoutSeconds <= 0 {
		cfg.PayAPI.TimeoutSeconds = 15
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	if backend == "" {
		backend = SessionBackendMemory
	}
	switch backend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when session.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend

	if cfg.Session.MinLifetimeSeconds <= 0 {
		cfg.Session.MinLifetimeSeconds = 60
	}
	if cfg.Session.RefreshThresholdSeconds <= 0 {
		cfg.Session.RefreshThresholdSeconds = 600
	}
	if cfg.Session.RefreshIntervalSeconds <= 0 {
		cfg.Session.RefreshIntervalSeconds = 120
	}

	if cfg.Limits.MinTransfer != "" {
		if _, err := decimal.NewFromString(cfg.Limits.MinTransfer); err != nil {
			return fmt.Errorf("invalid limits.min_transfer %q: %w", cfg.Limits.MinTransfer, err)
		}
	}
	if cfg.Limits.MaxTransfer != "" {
		if _, err := decimal.NewFromString(cfg.Limits.MaxTransfer); err != nil {
			return fmt.Errorf("invalid limits.max_transfer %q: %w", cfg.Limits.MaxTransfer, err)
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

// MinLifetime returns the session minimum lifetime as a duration.
func (s SessionConfig) MinLifetime() time.Duration {
	return time.Duration(s.MinLifetimeSeconds) * time.Second
}

// RefreshThreshold returns the refresh threshold as a duration.
func (s SessionConfig) RefreshThreshold() time.Duration {
	return time.Duration(s.RefreshThresholdSeconds) * time.Second
}

// RefreshInterval returns the scheduler scan interval as a duration.
func (s SessionConfig) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// MinTransferDecimal parses the configured lower transfer bound, if any.
func (l LimitsConfig) MinTransferDecimal() (decimal.Decimal, bool) {
	if strings.TrimSpace(l.MinTransfer) == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(l.MinTransfer)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// MaxTransferDecimal parses the configured upper transfer bound, if any.
func (l LimitsConfig) MaxTransferDecimal() (decimal.Decimal, bool) {
	if strings.TrimSpace(l.MaxTransfer) == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(l.MaxTransfer)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
