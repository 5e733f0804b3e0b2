package channels

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// SlackMessageLimit keeps mirrored parts well below Slack's per-message cap.
const SlackMessageLimit = 3000

// SlackBot mirrors confirmed translations into a Slack channel.
type SlackBot struct {
	botToken  string
	channelID string
	logger    zerolog.Logger

	apiClient *slack.Client

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

func NewSlackBot(botToken, channelID string, logger zerolog.Logger) (*SlackBot, error) {
	trimmedBot := strings.TrimSpace(botToken)
	trimmedChannel := strings.TrimSpace(channelID)
	if trimmedBot == "" || trimmedChannel == "" {
		return nil, errors.New("slack botToken and channelID are required")
	}

	return &SlackBot{
		botToken:  trimmedBot,
		channelID: trimmedChannel,
		logger:    logger.With().Str("channel", "slack").Logger(),
		ctx:       context.Background(),
	}, nil
}

func (b *SlackBot) Name() string {
	return "slack"
}

// ChannelID returns the channel translations are mirrored to.
func (b *SlackBot) ChannelID() string {
	return b.channelID
}

func (b *SlackBot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// LastActivity reports the last time the bot successfully sent a message.
func (b *SlackBot) LastActivity() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastActivity
}

// LastError reports the last time the bot encountered a channel error.
func (b *SlackBot) LastError() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastError
}

func (b *SlackBot) markActivity() {
	b.telemetryMu.Lock()
	b.lastActivity = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *SlackBot) markError() {
	b.telemetryMu.Lock()
	b.lastError = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *SlackBot) setRunning(running bool) {
	b.runningMu.Lock()
	b.running = running
	b.runningMu.Unlock()
}

// Start verifies the bot token before the channel is used as a sink.
func (b *SlackBot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if b.startFn == nil {
		b.initClients()
	}

	if b.startFn == nil {
		return errors.New("slack start function not configured")
	}

	if err := b.startFn(b.ctx); err != nil {
		b.markError()
		return err
	}

	b.setRunning(true)
	b.logger.Info().Str("channel_id", b.channelID).Msg("💬 Slack mirror ready")
	return nil
}

func (b *SlackBot) Stop() error {
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

func (b *SlackBot) initClients() {
	if b.sendMessageFn != nil && b.startFn != nil {
		return
	}
	if b.botToken == "" {
		return
	}
	b.apiClient = slack.New(b.botToken)
	if b.sendMessageFn == nil {
		b.sendMessageFn = b.sendText
	}
	if b.startFn == nil {
		b.startFn = b.authTest
	}
}

func (b *SlackBot) authTest(ctx context.Context) error {
	resp, err := b.apiClient.AuthTestContext(ctx)
	if err != nil {
		return err
	}
	b.logger.Debug().Str("team", resp.Team).Str("user", resp.User).Msg("slack auth ok")
	return nil
}

// SendChatMessage posts text to channelID, or to the configured channel when
// it is empty, and returns the message timestamp.
func (b *SlackBot) SendChatMessage(ctx context.Context, channelID, text string) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		channelID = b.channelID
	}
	if b.sendMessageFn == nil {
		b.initClients()
	}
	if b.sendMessageFn == nil {
		return "", errors.New("slack sender not configured")
	}
	ts, err := b.sendMessageFn(ctx, channelID, text)
	if err != nil {
		b.markError()
		return "", err
	}
	b.markActivity()
	return ts, nil
}

func (b *SlackBot) sendText(ctx context.Context, channelID, text string) (string, error) {
	if b.apiClient == nil {
		return "", errors.New("slack api client not initialized")
	}
	if strings.TrimSpace(channelID) == "" {
		return "", errors.New("slack channel ID is required")
	}
	_, ts, err := b.apiClient.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", err
	}
	return ts, nil
}
