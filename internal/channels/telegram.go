package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/pipeline"
)

const (
	defaultTelegramPollingTimeout    = 25 * time.Second
	defaultTelegramPollingBackoffMin = 500 * time.Millisecond
	defaultTelegramPollingBackoffMax = 30 * time.Second
	telegramSeenUpdates              = 1024

	callbackConfirmShare = "confirm_share"
	callbackDenyShare    = "deny_share"
)

// TelegramBot receives chat messages, runs them through the translation
// handler and publishes to the configured group.
type TelegramBot struct {
	botToken   string
	groupID    string
	users      *UserManager
	handler    TranslationHandler
	logger     zerolog.Logger
	httpClient *http.Client
	apiBaseURL string

	mode              string
	confirmation      pipeline.ConfirmationMode
	pollingTimeout    time.Duration
	pollingOffsetFile string
	nextUpdateID      int64
	sleeper           func(time.Duration)

	webhookListenAddr   string
	webhookPath         string
	webhookPublicURL    string
	webhookSecret       string
	registerWebhook     bool
	deleteWebhookOnStop bool
	server              *http.Server

	seen *lru.Cache[int64, struct{}]
	wg   sync.WaitGroup

	// queues holds the updates waiting behind the one being handled, per
	// conversation. A key is present while its worker runs.
	queueMu sync.Mutex
	queues  map[string][]telegramUpdate

	runningMu sync.RWMutex
	running   bool
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	telemetryMu  sync.RWMutex
	lastActivity time.Time
	lastError    time.Time
}

// NewTelegramBot creates a new Telegram bot instance. groupID is the chat
// confirmed translations are published to.
func NewTelegramBot(token, groupID string, allowedUsers []int64, logger zerolog.Logger) (*TelegramBot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram botToken is required")
	}
	seen, err := lru.New[int64, struct{}](telegramSeenUpdates)
	if err != nil {
		return nil, fmt.Errorf("failed to create update cache: %w", err)
	}
	b := &TelegramBot{
		botToken:       token,
		groupID:        strings.TrimSpace(groupID),
		users:          NewUserManager(allowedUsers),
		logger:         logger.With().Str("channel", "telegram").Logger(),
		httpClient:     &http.Client{Timeout: defaultTelegramPollingTimeout + 30*time.Second},
		mode:           "polling",
		confirmation:   pipeline.ConfirmButtons,
		pollingTimeout: defaultTelegramPollingTimeout,
		seen:           seen,
		queues:         make(map[string][]telegramUpdate),
		ctx:            context.Background(),
	}
	b.sleeper = b.sleep
	return b, nil
}

// Name returns the bot name
func (b *TelegramBot) Name() string {
	return "telegram"
}

// SetHandler sets the translation handler
func (b *TelegramBot) SetHandler(handler TranslationHandler) {
	b.handler = handler
}

// ConfigureMode selects "polling" or "webhook".
func (b *TelegramBot) ConfigureMode(mode string) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "polling"
	}
	b.mode = mode
}

// ConfigureConfirmation selects button or text replies for confirmations.
func (b *TelegramBot) ConfigureConfirmation(mode pipeline.ConfirmationMode) {
	if mode == "" {
		mode = pipeline.ConfirmButtons
	}
	b.confirmation = mode
}

// ConfigurePolling sets the long-poll timeout and an optional file keeping
// the update offset across restarts.
func (b *TelegramBot) ConfigurePolling(timeout time.Duration, offsetFile string) {
	if timeout > 0 {
		b.pollingTimeout = timeout
	}
	b.pollingOffsetFile = strings.TrimSpace(offsetFile)
}

// ConfigureAPIBaseURL points the bot at another Bot API server.
func (b *TelegramBot) ConfigureAPIBaseURL(url string) {
	b.apiBaseURL = strings.TrimSpace(url)
}

// ConfigureWebhook sets the listener and the public URL registered with Telegram.
func (b *TelegramBot) ConfigureWebhook(listenAddr, path, publicURL, secret string) {
	b.webhookListenAddr = strings.TrimSpace(listenAddr)
	b.webhookPath = strings.TrimSpace(path)
	if b.webhookPath == "" {
		b.webhookPath = "/telegram/webhook"
	}
	b.webhookPublicURL = strings.TrimSpace(publicURL)
	b.webhookSecret = strings.TrimSpace(secret)
}

// ConfigureWebhookLifecycle controls setWebhook on start and deleteWebhook on stop.
func (b *TelegramBot) ConfigureWebhookLifecycle(register, deleteOnStop bool) {
	b.registerWebhook = register
	b.deleteWebhookOnStop = deleteOnStop
}

// GroupID returns the chat translations are published to.
func (b *TelegramBot) GroupID() string {
	return b.groupID
}

func (b *TelegramBot) api() *telegramAPI {
	return newTelegramAPI(b.httpClient, b.apiBaseURL, b.botToken)
}

// IsRunning reports whether the bot has been started.
func (b *TelegramBot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// StartedAt reports when the bot was last started.
func (b *TelegramBot) StartedAt() time.Time {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.startedAt
}

// LastActivity reports the last time the bot saw an update or successfully sent a message.
func (b *TelegramBot) LastActivity() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastActivity
}

// LastError reports the last time the bot encountered a channel error.
func (b *TelegramBot) LastError() time.Time {
	b.telemetryMu.RLock()
	defer b.telemetryMu.RUnlock()
	return b.lastError
}

func (b *TelegramBot) markActivity() {
	b.telemetryMu.Lock()
	b.lastActivity = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *TelegramBot) markError() {
	b.telemetryMu.Lock()
	b.lastError = time.Now().UTC()
	b.telemetryMu.Unlock()
}

func (b *TelegramBot) setRunning(running bool) {
	b.runningMu.Lock()
	b.running = running
	if running {
		b.startedAt = time.Now().UTC()
	}
	b.runningMu.Unlock()
}

// Start begins polling or serving the webhook.
func (b *TelegramBot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.logger.Info().Str("mode", b.mode).Msg("📱 Telegram bot starting...")

	switch b.mode {
	case "webhook":
		if err := b.startWebhook(b.ctx); err != nil {
			b.cancel()
			return err
		}
	case "polling":
		if err := b.preparePolling(b.ctx); err != nil {
			b.cancel()
			return err
		}
		b.startPollingLoop()
	default:
		b.cancel()
		return fmt.Errorf("unsupported telegram mode %q", b.mode)
	}

	b.setRunning(true)
	return nil
}

// Stop gracefully shuts down the bot
func (b *TelegramBot) Stop() error {
	b.logger.Info().Msg("🛑 Stopping Telegram bot...")
	if b.cancel != nil {
		b.cancel()
	}

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}
	if b.mode == "webhook" && b.deleteWebhookOnStop {
		if err := b.api().deleteWebhook(ctx, false); err != nil {
			errs = append(errs, fmt.Errorf("delete webhook: %w", err))
		}
	}

	b.wg.Wait()
	b.setRunning(false)
	return errors.Join(errs...)
}

func (b *TelegramBot) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-b.ctx.Done():
	}
}

// preparePolling removes a webhook, which would block getUpdates. Without an
// offset file, updates queued while the bot was down are dropped.
func (b *TelegramBot) preparePolling(ctx context.Context) error {
	drop := true
	if b.pollingOffsetFile != "" {
		if err := b.loadPollingOffset(); err != nil {
			return err
		}
		drop = false
	}
	if err := b.api().deleteWebhook(ctx, drop); err != nil {
		b.markError()
		return fmt.Errorf("failed to delete webhook before polling: %w", err)
	}
	return nil
}

func (b *TelegramBot) startPollingLoop() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.pollLoop()
	}()
}

func (b *TelegramBot) pollLoop() {
	api := b.api()
	backoff := defaultTelegramPollingBackoffMin
	for {
		if b.ctx.Err() != nil {
			return
		}
		updates, next, err := api.getUpdates(b.ctx, b.nextUpdateID, b.pollingTimeout)
		if err != nil {
			b.markError()
			if b.ctx.Err() == nil {
				b.logger.Warn().Err(err).Dur("backoff", backoff).Msg("⚠️ telegram polling failed")
			}
			b.sleeper(backoff)
			backoff *= 2
			if backoff > defaultTelegramPollingBackoffMax {
				backoff = defaultTelegramPollingBackoffMax
			}
			continue
		}
		backoff = defaultTelegramPollingBackoffMin

		for _, update := range updates {
			b.enqueueUpdate(update)
		}
		if next != b.nextUpdateID {
			b.nextUpdateID = next
			if err := b.persistPollingOffset(); err != nil {
				b.logger.Warn().Err(err).Msg("⚠️ failed to persist polling offset")
			}
		}
	}
}

func (b *TelegramBot) loadPollingOffset() error {
	if b.pollingOffsetFile == "" {
		return nil
	}
	data, err := os.ReadFile(b.pollingOffsetFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read polling offset: %w", err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return nil
	}
	offset, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid polling offset %q: %w", value, err)
	}
	b.nextUpdateID = offset
	return nil
}

func (b *TelegramBot) persistPollingOffset() error {
	if b.pollingOffsetFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.pollingOffsetFile), 0o755); err != nil {
		return err
	}
	tmp := b.pollingOffsetFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(b.nextUpdateID, 10)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.pollingOffsetFile)
}

// updateConversation returns the conversation key of an update, or "" when
// it has no sender or chat.
func updateConversation(u telegramUpdate) string {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.From != nil && cb.Message != nil && cb.Message.Chat != nil {
			return conversationKey(cb.Message.Chat.ID, cb.From.ID)
		}
	case u.Message != nil:
		if u.Message.From != nil && u.Message.Chat != nil {
			return conversationKey(u.Message.Chat.ID, u.Message.From.ID)
		}
	}
	return ""
}

// enqueueUpdate hands update to the worker of its conversation, starting one
// if none is running. Updates of one conversation are handled one at a time
// in arrival order; different conversations run concurrently.
func (b *TelegramBot) enqueueUpdate(update telegramUpdate) {
	key := updateConversation(update)
	if key == "" {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handleUpdate(update)
		}()
		return
	}

	b.queueMu.Lock()
	waiting, running := b.queues[key]
	b.queues[key] = append(waiting, update)
	if !running {
		b.wg.Add(1)
	}
	b.queueMu.Unlock()
	if !running {
		go b.drainConversation(key)
	}
}

func (b *TelegramBot) drainConversation(key string) {
	defer b.wg.Done()
	for {
		b.queueMu.Lock()
		waiting := b.queues[key]
		if len(waiting) == 0 {
			delete(b.queues, key)
			b.queueMu.Unlock()
			return
		}
		next := waiting[0]
		b.queues[key] = waiting[1:]
		b.queueMu.Unlock()

		b.handleUpdate(next)
	}
}

// handleUpdate processes one update. Redelivered update ids are ignored.
func (b *TelegramBot) handleUpdate(update telegramUpdate) {
	if update.UpdateID != 0 {
		if seen, _ := b.seen.ContainsOrAdd(update.UpdateID, struct{}{}); seen {
			return
		}
	}
	b.markActivity()

	ctx := b.ctx
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func conversationKey(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

func chatIDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (b *TelegramBot) handleMessage(ctx context.Context, msg *TelegramMessage) {
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return
	}
	text := strings.TrimSpace(msg.Text)
	fromCaption := false
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
		fromCaption = text != ""
	}
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") && isTelegramSafeCommand(text) {
		b.runCommand(ctx, msg)
		return
	}

	if !b.users.Authorize(msg.From.ID) {
		b.logger.Warn().Int64("user", msg.From.ID).Msg("🚫 unauthorized access attempt")
		if msg.Chat.Type == "private" {
			_ = b.reply(ctx, msg.Chat.ID, "❌ No autorizado. Usa /getid para obtener tu ID y pide acceso al administrador.")
		}
		return
	}

	if strings.HasPrefix(text, "/") {
		b.runCommand(ctx, msg)
		return
	}

	if b.handler == nil {
		return
	}
	conv := conversationKey(msg.Chat.ID, msg.From.ID)

	if b.confirmation == pipeline.ConfirmText && b.handler.HasPending(conv) {
		switch pipeline.ParseConfirmationReply(text) {
		case pipeline.DecisionConfirm:
			b.confirm(ctx, msg.Chat.ID, conv, 0)
			return
		case pipeline.DecisionDeny:
			b.deny(ctx, msg.Chat.ID, conv, 0)
			return
		}
	}

	b.translate(ctx, msg, conv, text, fromCaption)
}

func (b *TelegramBot) runCommand(ctx context.Context, msg *TelegramMessage) {
	handled, err := b.handleCommand(ctx, msg)
	if handled && err != nil {
		_ = b.reply(ctx, msg.Chat.ID, fmt.Sprintf("❌ %v", err))
	}
}

func (b *TelegramBot) translate(ctx context.Context, msg *TelegramMessage, conv, text string, fromCaption bool) {
	chatID := chatIDString(msg.Chat.ID)
	var progressID int64
	onStart := pipeline.WithTranslateStart(func(ctx context.Context) {
		id, err := b.api().sendMessage(ctx, sendMessageRequest{
			ChatID:           chatID,
			Text:             pipeline.ReplyTranslating,
			ReplyToMessageID: msg.MessageID,
		})
		if err != nil {
			b.markError()
			b.logger.Warn().Err(err).Msg("⚠️ failed to send progress message")
			return
		}
		progressID = id
	})

	res, err := b.handler.ProcessIncomingText(ctx, pipeline.Message{
		ConversationID: conv,
		SenderID:       strconv.FormatInt(msg.From.ID, 10),
		SenderName:     telegramDisplayName(msg.From),
		RawText:        text,
		FromCaption:    fromCaption,
	}, onStart)
	if err != nil {
		if reply := pipeline.ReplyForError(err); reply != "" {
			_ = b.respond(ctx, chatID, progressID, reply, nil)
		}
		return
	}
	if !res.Translated() {
		return
	}

	prompt, err := b.handler.RequestConfirmation(ctx, conv, res)
	if err != nil {
		b.logger.Error().Err(err).Str("conversation", conv).Msg("❌ failed to store translation")
		_ = b.respond(ctx, chatID, progressID, pipeline.ReplyUnexpected, nil)
		return
	}

	body := prompt.Text
	if prompt.Replaced {
		body = pipeline.ReplyReplaced + "\n\n" + body
	}
	var markup *inlineKeyboardMarkup
	if prompt.Mode == pipeline.ConfirmButtons {
		markup = confirmKeyboard()
	}
	_ = b.respond(ctx, chatID, progressID, body, markup)
}

func confirmKeyboard() *inlineKeyboardMarkup {
	return &inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{{
		{Text: "✅ SÍ, Compartir", CallbackData: callbackConfirmShare},
		{Text: "❌ NO, Cancelar", CallbackData: callbackDenyShare},
	}}}
}

func (b *TelegramBot) handleCallback(ctx context.Context, cb *telegramCallbackQuery) {
	if cb == nil {
		return
	}
	if err := b.api().answerCallbackQuery(ctx, cb.ID, ""); err != nil {
		b.markError()
		b.logger.Warn().Err(err).Msg("⚠️ failed to answer callback query")
	}
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil || b.handler == nil {
		return
	}
	if !b.users.Authorize(cb.From.ID) {
		return
	}

	chatID := cb.Message.Chat.ID
	conv := conversationKey(chatID, cb.From.ID)
	b.logger.Info().Str("conversation", conv).Str("data", cb.Data).Msg("🔘 button pressed")

	switch cb.Data {
	case callbackConfirmShare:
		b.confirm(ctx, chatID, conv, cb.Message.MessageID)
	case callbackDenyShare:
		b.deny(ctx, chatID, conv, cb.Message.MessageID)
	}
}

// confirm shares the pending translation and reports the result in place
// of messageID when it is set.
func (b *TelegramBot) confirm(ctx context.Context, chatID int64, conv string, messageID int64) {
	target := chatIDString(chatID)
	if messageID != 0 && b.handler.HasPending(conv) {
		_ = b.respond(ctx, target, messageID, pipeline.ReplySharing, nil)
	}
	outcome, err := b.handler.ConfirmSharing(ctx, conv)
	if err != nil {
		_ = b.respond(ctx, target, messageID, pipeline.ReplyForError(err), nil)
		return
	}
	_ = b.respond(ctx, target, messageID, pipeline.FormatOutcome(outcome), nil)
}

func (b *TelegramBot) deny(ctx context.Context, chatID int64, conv string, messageID int64) {
	target := chatIDString(chatID)
	if err := b.handler.DenySharing(ctx, conv); err != nil {
		_ = b.respond(ctx, target, messageID, pipeline.ReplyForError(err), nil)
		return
	}
	_ = b.respond(ctx, target, messageID, pipeline.ReplyCancelled, nil)
}

// respond edits messageID when set, falling back to a new message.
func (b *TelegramBot) respond(ctx context.Context, chatID string, messageID int64, text string, markup *inlineKeyboardMarkup) error {
	text = TruncateTelegramReply(text)
	if messageID != 0 {
		err := b.api().editMessageText(ctx, editMessageTextRequest{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ReplyMarkup: markup,
		})
		if err == nil {
			b.markActivity()
			return nil
		}
		b.markError()
		b.logger.Warn().Err(err).Msg("⚠️ failed to edit message, sending a new one")
	}
	_, err := b.send(ctx, sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup})
	return err
}

func (b *TelegramBot) reply(ctx context.Context, chatID int64, text string) error {
	_, err := b.send(ctx, sendMessageRequest{ChatID: chatIDString(chatID), Text: TruncateTelegramReply(text)})
	return err
}

func (b *TelegramBot) send(ctx context.Context, req sendMessageRequest) (int64, error) {
	id, err := b.api().sendMessage(ctx, req)
	if err != nil {
		b.markError()
		b.logger.Warn().Err(err).Str("chat", req.ChatID).Msg("⚠️ failed to send message")
		return 0, err
	}
	b.markActivity()
	return id, nil
}

// SendChatMessage sends text to chatID, or to the configured group when
// chatID is empty, and returns the new message id.
func (b *TelegramBot) SendChatMessage(ctx context.Context, chatID, text string) (string, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		chatID = b.groupID
	}
	if chatID == "" {
		return "", errors.New("telegram chat ID is required")
	}
	id, err := b.send(ctx, sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func telegramDisplayName(u *TelegramUser) string {
	if u == nil {
		return ""
	}
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	case u.UserName != "":
		return "@" + u.UserName
	}
	return ""
}
