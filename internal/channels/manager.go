package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/config"
	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

// Manager owns the lifecycle of the registered channels.
type Manager struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
	telegram *TelegramBot
}

// NewManager creates an empty channel manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:   logger.With().Str("component", "channels").Logger(),
		channels: make(map[string]Channel),
	}
}

// FromConfig builds the Telegram bot and any enabled mirrors.
func FromConfig(cfg *config.Config, logger zerolog.Logger) (*Manager, error) {
	if cfg == nil || cfg.Telegram == nil {
		return nil, errors.New("telegram configuration is required")
	}
	m := NewManager(logger)

	tg := cfg.Telegram
	bot, err := NewTelegramBot(tg.BotToken, tg.GroupID, tg.AllowedUsers, logger)
	if err != nil {
		return nil, err
	}
	bot.ConfigureMode(tg.Mode)
	bot.ConfigureAPIBaseURL(tg.APIBaseURL)
	bot.ConfigurePolling(time.Duration(tg.PollingTimeout)*time.Second, tg.PollingOffsetFile)
	bot.ConfigureWebhook(tg.WebhookListen, tg.WebhookPath, tg.WebhookURL, tg.WebhookSecret)
	bot.ConfigureWebhookLifecycle(tg.RegisterWebhook, tg.DeleteWebhookOnStop)
	if cfg.Sharing != nil {
		mode, err := pipeline.ParseConfirmationMode(cfg.Sharing.Confirmation)
		if err != nil {
			return nil, err
		}
		bot.ConfigureConfirmation(mode)
	}
	if err := m.Register(bot); err != nil {
		return nil, err
	}

	if sc := cfg.Slack; sc != nil && sc.Enabled {
		slackBot, err := NewSlackBot(sc.BotToken, sc.ChannelID, logger)
		if err != nil {
			return nil, err
		}
		if err := m.Register(slackBot); err != nil {
			return nil, err
		}
	}
	if dc := cfg.Discord; dc != nil && dc.Enabled {
		discordBot, err := NewDiscordBot(dc.Token, dc.ChannelID, logger)
		if err != nil {
			return nil, err
		}
		if err := m.Register(discordBot); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register adds a channel. Names must be unique.
func (m *Manager) Register(ch Channel) error {
	if ch == nil {
		return errors.New("channel is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := ch.Name()
	if _, exists := m.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	m.channels[name] = ch
	m.order = append(m.order, name)
	if bot, ok := ch.(*TelegramBot); ok {
		m.telegram = bot
	}
	return nil
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Telegram returns the registered Telegram bot, if any.
func (m *Manager) Telegram() *TelegramBot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.telegram
}

func (m *Manager) ordered() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.channels[name])
	}
	return out
}

// SetHandler wires the translation handler into every channel that accepts one.
func (m *Manager) SetHandler(handler TranslationHandler) {
	for _, ch := range m.ordered() {
		if aware, ok := ch.(HandlerAware); ok {
			aware.SetHandler(handler)
		}
	}
}

// MirrorSinks returns a chat sink for every registered mirror channel.
func (m *Manager) MirrorSinks() []dispatch.Sink {
	var sinks []dispatch.Sink
	for _, ch := range m.ordered() {
		switch c := ch.(type) {
		case *SlackBot:
			sinks = append(sinks, &dispatch.ChatSink{Platform: c.Name(), ChatID: c.ChannelID(), Sender: c, MaxLength: SlackMessageLimit})
		case *DiscordBot:
			sinks = append(sinks, &dispatch.ChatSink{Platform: c.Name(), ChatID: c.ChannelID(), Sender: c, MaxLength: DiscordMessageLimit})
		}
	}
	return sinks
}

// Start starts channels in registration order. If one fails, the channels
// already started are stopped again.
func (m *Manager) Start(ctx context.Context) error {
	var started []Channel
	for _, ch := range m.ordered() {
		if err := ch.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					m.logger.Warn().Err(stopErr).Str("channel", started[i].Name()).Msg("⚠️ rollback stop failed")
				}
			}
			return fmt.Errorf("failed to start %s: %w", ch.Name(), err)
		}
		started = append(started, ch)
		m.logger.Info().Str("channel", ch.Name()).Msg("✅ channel started")
	}
	return nil
}

// Stop stops every running channel and reports all failures.
func (m *Manager) Stop() error {
	channels := m.ordered()
	var errs []error
	for i := len(channels) - 1; i >= 0; i-- {
		ch := channels[i]
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// List reports the status of every registered channel.
func (m *Manager) List() []protocol.ChannelInfo {
	channels := m.ordered()
	out := make([]protocol.ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		info := protocol.ChannelInfo{Type: ch.Name(), Status: "stopped"}
		if ch.IsRunning() {
			info.Status = "running"
		}
		if tp, ok := ch.(TelemetryProvider); ok {
			info.LastActivity = tp.LastActivity()
			info.LastError = tp.LastError()
		}
		out = append(out, info)
	}
	return out
}
