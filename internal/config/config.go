package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PlaceholderAPIKey is shipped in the sample key file and counts as no key.
const PlaceholderAPIKey = "ENTER YOUR GEMINI API KEY HERE"

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	AI         AIConfig         `mapstructure:"ai"`
	Search     SearchConfig     `mapstructure:"search"`
	Images     ImagesConfig     `mapstructure:"images"`
	History    HistoryConfig    `mapstructure:"history"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
}

type BotConfig struct {
	Prefix  string `mapstructure:"prefix"`
	OwnerID string `mapstructure:"owner_id"`
}

type AIConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	VisionModel     string        `mapstructure:"vision_model"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ValidateOnStart bool          `mapstructure:"validate_on_start"`
}

// Configured reports whether an AI key is present.
func (c AIConfig) Configured() bool {
	return c.APIKey != "" && c.APIKey != PlaceholderAPIKey
}

type SearchConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	EngineID string        `mapstructure:"engine_id"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Results  int           `mapstructure:"results"`
}

type ImagesConfig struct {
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	MaxWidth        int           `mapstructure:"max_width"`
	MaxHeight       int           `mapstructure:"max_height"`
	Quality         int           `mapstructure:"quality"`
	SendInterval    time.Duration `mapstructure:"send_interval"`
	MaxBytes        int64         `mapstructure:"max_bytes"`
	MaxPixels       int           `mapstructure:"max_pixels"`
}

type HistoryConfig struct {
	Backend         string       `mapstructure:"backend"`
	Path            string       `mapstructure:"path"`
	MaxMessages     int          `mapstructure:"max_messages"`
	MaxDisplay      int          `mapstructure:"max_display"`
	MaxContextChars int          `mapstructure:"max_context_chars"`
	Redis           RedisConfig  `mapstructure:"redis"`
	SQLite          SQLiteConfig `mapstructure:"sqlite"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PromptConfig struct {
	Path string `mapstructure:"path"`
}

type RateLimitConfig struct {
	Global WindowConfig `mapstructure:"global"`
	User   WindowConfig `mapstructure:"user"`
}

type WindowConfig struct {
	Window   time.Duration `mapstructure:"window"`
	Requests int           `mapstructure:"requests"`
}

type DedupConfig struct {
	Expiry time.Duration `mapstructure:"expiry"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
	Debug         bool   `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.prefix", "!")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.temperature", 1.0)
	v.SetDefault("ai.max_output_tokens", 50000)
	v.SetDefault("ai.timeout", 15*time.Second)
	v.SetDefault("ai.validate_on_start", true)

	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.results", 5)

	v.SetDefault("images.download_timeout", 10*time.Second)
	v.SetDefault("images.max_width", 800)
	v.SetDefault("images.max_height", 800)
	v.SetDefault("images.quality", 80)
	v.SetDefault("images.send_interval", 500*time.Millisecond)
	v.SetDefault("images.max_bytes", 20<<20)
	v.SetDefault("images.max_pixels", 40_000_000)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.path", "chat_history.json")
	v.SetDefault("history.max_messages", 50)
	v.SetDefault("history.max_display", 10)
	v.SetDefault("history.max_context_chars", 2000)
	v.SetDefault("history.redis.addr", "localhost:6379")
	v.SetDefault("history.sqlite.path", "chat_history.db")

	v.SetDefault("prompt.path", "custom_prompt.txt")

	v.SetDefault("rate_limit.global.window", time.Minute)
	v.SetDefault("rate_limit.global.requests", 1000)
	v.SetDefault("rate_limit.user.window", time.Minute)
	v.SetDefault("rate_limit.user.requests", 100)

	v.SetDefault("dedup.expiry", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/bot.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", false)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")

	v.SetDefault("telegram.update_timeout", 60)
}

// LoadConfig loads configuration from file and environment variables.
// An empty path or a missing file leaves defaults and environment in effect.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set environment variable overrides
	v.BindEnv("ai.api_key", "GEMINI_API_KEY", "AI_API_KEY")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("search.api_key", "GOOGLE_API_KEY")
	v.BindEnv("search.engine_id", "SEARCH_ENGINE_ID")
	v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("bot.owner_id", "BOT_OWNER_ID")
	v.BindEnv("history.redis.addr", "REDIS_ADDR")
	v.BindEnv("history.redis.password", "REDIS_PASSWORD")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// keyFile is the legacy JSON key file layout.
type keyFile struct {
	Gemini         string `json:"keygemini"`
	GoogleAPIKey   string `json:"googleApiKey"`
	SearchEngineID string `json:"searchEngineId"`
	Prefix         string `json:"prefix"`
	OwnerJID       string `json:"ownerJid"`
}

// ApplyKeyFile fills empty credentials and the prefix from a legacy key
// file. A missing file is not an error.
func ApplyKeyFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var keys keyFile
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("failed to parse key file: %w", err)
	}

	if !cfg.AI.Configured() && keys.Gemini != PlaceholderAPIKey {
		cfg.AI.APIKey = keys.Gemini
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = keys.GoogleAPIKey
	}
	if cfg.Search.EngineID == "" {
		cfg.Search.EngineID = keys.SearchEngineID
	}
	if keys.Prefix != "" {
		cfg.Bot.Prefix = keys.Prefix
	}
	if cfg.Bot.OwnerID == "" {
		cfg.Bot.OwnerID = keys.OwnerJID
	}

	return validateConfig(cfg)
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Bot.Prefix) == "" {
		return fmt.Errorf("bot prefix is required")
	}
	switch cfg.AI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
	switch cfg.History.Backend {
	case "file", "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
	if cfg.History.MaxMessages <= 0 {
		return fmt.Errorf("history.max_messages must be positive")
	}
	if cfg.RateLimit.Global.Requests <= 0 || cfg.RateLimit.Global.Window <= 0 {
		return fmt.Errorf("global rate limit must be positive")
	}
	if cfg.RateLimit.User.Requests <= 0 || cfg.RateLimit.User.Window <= 0 {
		return fmt.Errorf("user rate limit must be positive")
	}
	if cfg.Dedup.Expiry <= 0 {
		return fmt.Errorf("dedup.expiry must be positive")
	}
	return nil
}
