package channels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordMessageLimit keeps mirrored parts under Discord's 2000 character cap.
const DiscordMessageLimit = 1900

// DiscordBot mirrors confirmed translations into a Discord channel over the
// REST API. No gateway connection is opened.
type DiscordBot struct {
	token     string
	channelID string
	logger    zerolog.Logger

	session *discordgo.Session

	startFn       func(ctx context.Context) error
	stopFn        func() error
	sendMessageFn func(ctx context.Context, channelID, text string) (string, error)

	runningMu sync.RWMutex
	running   bool

	ctx    context.Context
	cancel context.CancelFunc

	telemetryMu  sync.RWMutex
	lastActivity time.Time
	lastError    time.Time
}

func NewDiscordBot(token, channelID string, logger zerolog.Logger) (*DiscordBot, error) {
	trimmed := strings.TrimSpace(token)
	trimmedChannel := strings.TrimSpace(channelID)
	if trimmed == "" || trimmedChannel == "" {
		return nil, errors.New("discord token and channelID are required")
	}

	return &DiscordBot{
		token:     trimmed,
		channelID: trimmedChannel,
		logger:    logger.With().Str("channel", "discord").Logger(),
		ctx:       context.Background(),
	}, nil
}

func (b *DiscordBot) Name() string {
	return "discord"
}

// ChannelID returns the channel translations are mirrored to.
func (b *DiscordBot) ChannelID() string {
	return b.channelID
}

func (b *DiscordBot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// LastActivity reports the last time the bot successfully sent a message.
func (b *DiscordBot) LastActivity() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastActivity
}

// LastError reports the last time the bot encountered a channel error.
func (b *DiscordBot) LastError() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastError
}

func (b *DiscordBot) markActivity() {
	b.telemetryMu.Lock()
	b.lastActivity = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *DiscordBot) markError() {
	b.telemetryMu.Lock()
	b.lastError = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *DiscordBot) setRunning(running bool) {
	b.runningMu.Lock()
	b.running = running
	b.runningMu.Unlock()
}

func (b *DiscordBot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if b.startFn == nil {
		if err := b.initClients(); err != nil {
			return err
		}
	}

	if b.startFn == nil {
		return errors.New("discord start function not configured")
	}

	if err := b.startFn(b.ctx); err != nil {
		b.markError()
		return err
	}

	b.setRunning(true)
	b.logger.Info().Str("channel_id", b.channelID).Msg("🎮 Discord mirror ready")
	return nil
}

func (b *DiscordBot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.stopFn != nil {
		if err := b.stopFn(); err != nil {
			return err
		}
	}
	b.setRunning(false)
	return nil
}

func (b *DiscordBot) initClients() error {
	if b.sendMessageFn != nil && b.startFn != nil {
		return nil
	}
	if strings.TrimSpace(b.token) == "" {
		return errors.New("discord token is required")
	}

	session, err := discordgo.New("Bot " + b.token)
	if err != nil {
		return err
	}
	b.session = session
	if b.sendMessageFn == nil {
		b.sendMessageFn = b.sendText
	}
	if b.startFn == nil {
		b.startFn = b.checkIdentity
	}
	return nil
}

func (b *DiscordBot) checkIdentity(ctx context.Context) error {
	user, err := b.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	b.logger.Debug().Str("user", user.Username).Msg("discord auth ok")
	return nil
}

// SendChatMessage posts text to channelID, or to the configured channel when
// it is empty, and returns the message id.
func (b *DiscordBot) SendChatMessage(ctx context.Context, channelID, text string) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		channelID = b.channelID
	}
	if b.sendMessageFn == nil {
		if err := b.initClients(); err != nil {
			return "", err
		}
	}
	id, err := b.sendMessageFn(ctx, channelID, text)
	if err != nil {
		b.markError()
		return "", err
	}
	b.markActivity()
	return id, nil
}

func (b *DiscordBot) sendText(ctx context.Context, channelID, text string) (string, error) {
	if b.session == nil {
		return "", errors.New("discord session not initialized")
	}
	if strings.TrimSpace(channelID) == "" {
		return "", errors.New("discord channel ID is required")
	}
	msg, err := b.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}
