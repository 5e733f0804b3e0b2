// Package translate turns text into the target language with an OpenAI chat
// model.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/langdetect"
)

const (
	defaultModel       = "gpt-4"
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
	defaultTimeout     = 60 * time.Second
)

// ErrEmptyTranslation is returned when the model answers with no text.
var ErrEmptyTranslation = errors.New("empty translation")

// Config configures the OpenAI translator.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	SourceLang  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// Translator implements translation over the chat completions API.
type Translator struct {
	client openai.Client
	cfg    Config
	logger zerolog.Logger
}

// New builds a translator. An API key is required.
func New(cfg Config, logger zerolog.Logger) (*Translator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = "en"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Translator{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.With().Str("component", "translate").Logger(),
	}, nil
}

// Model returns the configured model name.
func (t *Translator) Model() string {
	return t.cfg.Model
}

// Translate returns text rendered in targetLang.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	source := langdetect.DisplayName(t.cfg.SourceLang)
	target := langdetect.DisplayName(targetLang)

	params := openai.ChatCompletionNewParams{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt(target)),
			openai.UserMessage(userPrompt(source, target, text)),
		},
		MaxTokens:   openai.Int(int64(t.cfg.MaxTokens)),
		Temperature: openai.Float(t.cfg.Temperature),
	}

	start := time.Now()
	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices in response")
	}

	translation := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translation == "" {
		return "", ErrEmptyTranslation
	}

	t.logger.Debug().
		Str("model", t.cfg.Model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Int("input_chars", len(text)).
		Int("output_chars", len(translation)).
		Msg("✅ translation completed")
	return translation, nil
}

func systemPrompt(target string) string {
	return fmt.Sprintf("You are an expert translator who creates engaging, culturally-aware %s translations with subtle emoji enhancements.", target)
}

func userPrompt(source, target, text string) string {
	lines := []string{
		fmt.Sprintf("Translate the following %s text to %s.", source, target),
		"Make it engaging and natural, not just literal translation.",
		"Add some personality while keeping the original meaning.",
		"Add subtle emojis ONLY where they make sense and enhance the message.",
		"Don't add extra words or change the core message.",
		"Keep it professional but with a touch of flair.",
		"Reply with the translation only.",
		"",
		"Text to translate: " + text,
	}
	return strings.Join(lines, "\n")
}
