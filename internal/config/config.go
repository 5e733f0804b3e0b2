package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Sharing    *SharingConfig    `yaml:"sharing"`
	Telegram   *TelegramConfig   `yaml:"telegram"`
	Translator *TranslatorConfig `yaml:"translator"`
	Social     *SocialConfig     `yaml:"social"`
	Slack      *SlackConfig      `yaml:"slack,omitempty"`
	Discord    *DiscordConfig    `yaml:"discord,omitempty"`
	RateLimit  *RateLimitConfig  `yaml:"rateLimit"`
	History    *HistoryConfig    `yaml:"history"`
	Gateway    *GatewayConfig    `yaml:"gateway"`
	Logging    *LoggingConfig    `yaml:"logging"`
}

// SharingConfig contains chunking and confirmation settings
type SharingConfig struct {
	LongLimit      int           `yaml:"longLimit"`
	ThreadLimit    int           `yaml:"threadLimit"`
	MinTextLength  int           `yaml:"minTextLength"`
	SourceLanguage string        `yaml:"sourceLanguage"`
	TargetLanguage string        `yaml:"targetLanguage"`
	PendingTTL     time.Duration `yaml:"pendingTTL"`
	Confirmation   string        `yaml:"confirmation"`
}

// TelegramConfig contains Telegram bot settings
type TelegramConfig struct {
	BotToken         string  `yaml:"botToken,omitempty"`
	GroupID          string  `yaml:"groupId,omitempty"`
	Mode             string  `yaml:"mode,omitempty"`
	AllowedUsers     []int64 `yaml:"allowedUsers,omitempty"`
	MaxMessageLength int     `yaml:"maxMessageLength,omitempty"`
	APIBaseURL       string  `yaml:"apiBaseUrl,omitempty"`

	PollingTimeout    int    `yaml:"pollingTimeoutSeconds,omitempty"`
	PollingOffsetFile string `yaml:"pollingOffsetFile,omitempty"`

	WebhookListen string `yaml:"webhookListenAddr,omitempty"`
	WebhookPath   string `yaml:"webhookPath,omitempty"`
	WebhookURL    string `yaml:"webhookPublicUrl,omitempty"`
	WebhookSecret string `yaml:"webhookSecretToken,omitempty"`

	// RegisterWebhook calls setWebhook with WebhookURL on start.
	RegisterWebhook     bool `yaml:"registerWebhook,omitempty"`
	DeleteWebhookOnStop bool `yaml:"deleteWebhookOnStop,omitempty"`
}

// TranslatorConfig contains language model settings
type TranslatorConfig struct {
	APIKey      string        `yaml:"apiKey,omitempty"`
	BaseURL     string        `yaml:"baseUrl,omitempty"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
}

// SocialConfig contains X API settings
type SocialConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AuthMode          string `yaml:"authMode,omitempty"`
	BearerToken       string `yaml:"bearerToken,omitempty"`
	APIKey            string `yaml:"apiKey,omitempty"`
	APISecret         string `yaml:"apiSecret,omitempty"`
	AccessToken       string `yaml:"accessToken,omitempty"`
	AccessTokenSecret string `yaml:"accessTokenSecret,omitempty"`
	BaseURL           string `yaml:"baseUrl,omitempty"`
}

// SlackConfig contains Slack mirror settings
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	BotToken  string `yaml:"botToken,omitempty"`
	ChannelID string `yaml:"channelId,omitempty"`
}

// DiscordConfig contains Discord mirror settings
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Token     string `yaml:"token,omitempty"`
	ChannelID string `yaml:"channelId,omitempty"`
}

// RateLimitConfig caps translations per user
type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
	PerHour   int `yaml:"perHour"`
}

// HistoryConfig points at the share log; an empty path disables it
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig contains gateway settings
type GatewayConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file,omitempty"`
}

// LoadConfig loads configuration from file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.fillDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load builds the runtime configuration: the YAML file when path is set,
// then variables from envFile (when it exists), then the process
// environment. Required keys are checked last.
func Load(path, envFile string) (*Config, error) {
	config := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	fileEnv := map[string]string{}
	if strings.TrimSpace(envFile) != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		if values != nil {
			fileEnv = values
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}

	if err := config.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateRequired(); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides settings with the deployment environment variables.
// Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	c.fillDefaults()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	setString := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = v
		}
	}
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	setString("TELEGRAM_GROUP_ID", &c.Telegram.GroupID)
	setInt("MAX_MESSAGE_LENGTH", &c.Telegram.MaxMessageLength)

	setString("OPENAI_API_KEY", &c.Translator.APIKey)
	setString("OPENAI_BASE_URL", &c.Translator.BaseURL)
	setString("OPENAI_MODEL", &c.Translator.Model)

	setBool("ENABLE_TWITTER_SHARING", &c.Social.Enabled)
	setString("TWITTER_BEARER_TOKEN", &c.Social.BearerToken)
	setString("TWITTER_API_KEY", &c.Social.APIKey)
	setString("TWITTER_API_SECRET", &c.Social.APISecret)
	setString("TWITTER_ACCESS_TOKEN", &c.Social.AccessToken)
	setString("TWITTER_ACCESS_TOKEN_SECRET", &c.Social.AccessTokenSecret)

	setString("TELEGRAM_MODE", &c.Telegram.Mode)
	setString("TELEGRAM_WEBHOOK_URL", &c.Telegram.WebhookURL)
	setString("TELEGRAM_WEBHOOK_SECRET", &c.Telegram.WebhookSecret)

	setBool("SLACK_ENABLED", &c.Slack.Enabled)
	setString("SLACK_BOT_TOKEN", &c.Slack.BotToken)
	setString("SLACK_CHANNEL_ID", &c.Slack.ChannelID)
	setBool("DISCORD_ENABLED", &c.Discord.Enabled)
	setString("DISCORD_BOT_TOKEN", &c.Discord.Token)
	setString("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)

	setString("DEFAULT_TARGET_LANGUAGE", &c.Sharing.TargetLanguage)
	setInt("MAX_REQUESTS_PER_MINUTE", &c.RateLimit.PerMinute)
	setInt("MAX_REQUESTS_PER_HOUR", &c.RateLimit.PerHour)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// ValidateRequired reports every missing required key in one error.
func (c *Config) ValidateRequired() error {
	c.fillDefaults()
	var missing []string
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if strings.TrimSpace(c.Translator.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if strings.TrimSpace(c.Telegram.GroupID) == "" {
		missing = append(missing, "TELEGRAM_GROUP_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) validate() error {
	if err := validateLanguage("sharing.sourceLanguage", c.Sharing.SourceLanguage); err != nil {
		return err
	}
	if err := validateLanguage("sharing.targetLanguage", c.Sharing.TargetLanguage); err != nil {
		return err
	}
	switch strings.ToLower(c.Sharing.Confirmation) {
	case "", "buttons", "text":
	default:
		return fmt.Errorf("invalid sharing.confirmation %q: expected buttons or text", c.Sharing.Confirmation)
	}
	if c.Sharing.LongLimit < 1 {
		return fmt.Errorf("invalid sharing.longLimit %d: must be positive", c.Sharing.LongLimit)
	}
	if c.Sharing.ThreadLimit < 1 {
		return fmt.Errorf("invalid sharing.threadLimit %d: must be positive", c.Sharing.ThreadLimit)
	}
	if c.Sharing.PendingTTL < 0 {
		return fmt.Errorf("invalid sharing.pendingTTL %s: must not be negative", c.Sharing.PendingTTL)
	}
	switch strings.ToLower(c.Telegram.Mode) {
	case "", "polling", "webhook":
	default:
		return fmt.Errorf("invalid telegram.mode %q: expected polling or webhook", c.Telegram.Mode)
	}
	switch strings.ToLower(c.Social.AuthMode) {
	case "", "bearer", "oauth1":
	default:
		return fmt.Errorf("invalid social.authMode %q: expected bearer or oauth1", c.Social.AuthMode)
	}
	if c.Gateway.Enabled && (c.Gateway.Port < 1 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway.port %d", c.Gateway.Port)
	}
	return nil
}

func validateLanguage(field, code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := language.ParseBase(code); err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, code, err)
	}
	return nil
}

// ChatLimit is the per-message limit for the Telegram group sink.
func (c *Config) ChatLimit() int {
	if c.Telegram != nil && c.Telegram.MaxMessageLength > 0 {
		return c.Telegram.MaxMessageLength
	}
	return c.Sharing.LongLimit
}

// Summary describes the configuration without secrets.
func (c *Config) Summary() string {
	return fmt.Sprintf("target=%s source=%s chat_limit=%d thread_limit=%d social=%t confirmation=%s rate=%d/min,%d/hour log=%s",
		c.Sharing.TargetLanguage, c.Sharing.SourceLanguage, c.ChatLimit(), c.Sharing.ThreadLimit,
		c.Social.Enabled, c.Sharing.Confirmation, c.RateLimit.PerMinute, c.RateLimit.PerHour, c.Logging.Level)
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// fillDefaults restores sections a YAML file set to null.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Sharing == nil {
		c.Sharing = def.Sharing
	}
	if c.Telegram == nil {
		c.Telegram = def.Telegram
	}
	if c.Translator == nil {
		c.Translator = def.Translator
	}
	if c.Social == nil {
		c.Social = def.Social
	}
	if c.Slack == nil {
		c.Slack = def.Slack
	}
	if c.Discord == nil {
		c.Discord = def.Discord
	}
	if c.RateLimit == nil {
		c.RateLimit = def.RateLimit
	}
	if c.History == nil {
		c.History = def.History
	}
	if c.Gateway == nil {
		c.Gateway = def.Gateway
	}
	if c.Logging == nil {
		c.Logging = def.Logging
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Sharing: &SharingConfig{
			LongLimit:      4000,
			ThreadLimit:    270,
			MinTextLength:  5,
			SourceLanguage: "en",
			TargetLanguage: "es",
			PendingTTL:     24 * time.Hour,
			Confirmation:   "buttons",
		},
		Telegram: &TelegramConfig{
			Mode:           "polling",
			PollingTimeout: 25,
			WebhookListen:  "0.0.0.0:8443",
			WebhookPath:    "/telegram/webhook",
		},
		Translator: &TranslatorConfig{
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Social: &SocialConfig{
			Enabled: true,
		},
		Slack:   &SlackConfig{},
		Discord: &DiscordConfig{},
		RateLimit: &RateLimitConfig{
			PerMinute: 30,
			PerHour:   500,
		},
		History: &HistoryConfig{
			Path: "translatebot.db",
		},
		Gateway: &GatewayConfig{
			Enabled: true,
			Port:    18789,
			Bind:    "127.0.0.1",
		},
		Logging: &LoggingConfig{
			Level: "info",
		},
	}
}
