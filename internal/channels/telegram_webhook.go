package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	telegramSecretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookPayloadBytes = 1 << 20
)

// WebhookHandler handles Telegram webhook updates
type WebhookHandler struct {
	bot *TelegramBot
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(bot *TelegramBot) *WebhookHandler {
	return &WebhookHandler{bot: bot}
}

// ServeHTTP verifies the secret token, decodes the update and hands it to
// the bot. Telegram only needs a 200 to stop redelivering.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if secret := h.bot.webhookSecret; secret != "" {
		got := r.Header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			h.bot.logger.Warn().Str("remote", r.RemoteAddr).Msg("🚫 webhook secret mismatch")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookPayloadBytes)).Decode(&update); err != nil {
		h.bot.markError()
		h.bot.logger.Warn().Err(err).Msg("⚠️ failed to decode webhook update")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.bot.enqueueUpdate(update)
	w.WriteHeader(http.StatusOK)
}

func (b *TelegramBot) startWebhook(ctx context.Context) error {
	if b.registerWebhook {
		if b.webhookPublicURL == "" {
			return errors.New("telegram webhook publicURL is required to register the webhook")
		}
		if err := b.api().setWebhook(ctx, b.webhookPublicURL, b.webhookSecret); err != nil {
			b.markError()
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		b.logger.Info().Str("url", b.webhookPublicURL).Msg("🔗 webhook registered")
	}
	if b.webhookListenAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(b.webhookPath, NewWebhookHandler(b))
	b.server = &http.Server{
		Addr:              b.webhookListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := b.server
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.logger.Info().Str("listen", server.Addr).Str("path", b.webhookPath).Msg("🌐 webhook server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.markError()
			b.logger.Error().Err(err).Msg("❌ webhook server failed")
		}
	}()
	return nil
}
