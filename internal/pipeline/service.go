// Package pipeline is the translation bot core: it turns incoming chat text
// into a pending translation and publishes it once the sender confirms.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/history"
	"github.com/fractalmind-ai/translatebot/internal/ratelimit"
	"github.com/fractalmind-ai/translatebot/internal/sharing"
	"github.com/fractalmind-ai/translatebot/internal/textchunk"
	"github.com/fractalmind-ai/translatebot/pkg/protocol"
)

// Detector returns the language code of text, or false when unsure.
type Detector interface {
	Detect(text string) (string, bool)
}

// Translator renders text in targetLang.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Recorder persists finished shares.
type Recorder interface {
	RecordShare(ctx context.Context, rec history.Record) error
}

// Publisher receives pipeline events.
type Publisher interface {
	Publish(msg *protocol.Message)
}

// Options tunes the pipeline.
type Options struct {
	SourceLanguage string
	TargetLanguage string
	MinTextLength  int
	Confirmation   ConfirmationMode
}

// DefaultOptions returns English to Spanish with button confirmation.
func DefaultOptions() Options {
	return Options{
		SourceLanguage: "en",
		TargetLanguage: "es",
		MinTextLength:  5,
		Confirmation:   ConfirmButtons,
	}
}

// Deps are the collaborators of a Service. Detector, Translator, Store and
// Dispatcher are required.
type Deps struct {
	Detector   Detector
	Translator Translator
	Store      *sharing.Store
	Dispatcher *dispatch.Dispatcher
	Sinks      []dispatch.Sink
	Limiter    *ratelimit.Limiter
	Recorder   Recorder
	Events     Publisher
	Logger     zerolog.Logger
}

// Message is one inbound chat message.
type Message struct {
	ConversationID string
	SenderID       string
	SenderName     string
	RawText        string
	FromCaption    bool
}

// SkipReason explains why a message produced no translation.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipEmpty         SkipReason = "empty"
	SkipCommand       SkipReason = "command"
	SkipTooShort      SkipReason = "too_short"
	SkipUndetected    SkipReason = "undetected"
	SkipOtherLanguage SkipReason = "other_language"
)

// ProcessResult is the outcome of ProcessIncomingText.
type ProcessResult struct {
	ConversationID   string
	OriginalText     string
	DetectedLanguage string
	TranslatedText   string
	Skipped          SkipReason
}

// Translated reports whether a translation was produced.
func (r ProcessResult) Translated() bool {
	return r.Skipped == SkipNone && r.TranslatedText != ""
}

type processConfig struct {
	onTranslateStart func(ctx context.Context)
}

// ProcessOption customizes one ProcessIncomingText call.
type ProcessOption func(*processConfig)

// WithTranslateStart runs fn once the text is accepted, right before the
// translator is called.
func WithTranslateStart(fn func(ctx context.Context)) ProcessOption {
	return func(c *processConfig) { c.onTranslateStart = fn }
}

// Service wires the core together.
type Service struct {
	opts       Options
	detector   Detector
	translator Translator
	store      *sharing.Store
	dispatcher *dispatch.Dispatcher
	sinks      []dispatch.Sink
	limiter    *ratelimit.Limiter
	recorder   Recorder
	events     Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService validates deps and fills unset options with defaults.
func NewService(opts Options, deps Deps) (*Service, error) {
	switch {
	case deps.Detector == nil:
		return nil, fmt.Errorf("detector is required")
	case deps.Translator == nil:
		return nil, fmt.Errorf("translator is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("sharing store is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is required")
	}

	def := DefaultOptions()
	if opts.SourceLanguage == "" {
		opts.SourceLanguage = def.SourceLanguage
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = def.TargetLanguage
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = def.MinTextLength
	}
	if opts.Confirmation == "" {
		opts.Confirmation = def.Confirmation
	}

	return &Service{
		opts:       opts,
		detector:   deps.Detector,
		translator: deps.Translator,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		sinks:      append([]dispatch.Sink(nil), deps.Sinks...),
		limiter:    deps.Limiter,
		recorder:   deps.Recorder,
		events:     deps.Events,
		logger:     deps.Logger.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}, nil
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// ProcessIncomingText normalizes, filters, detects and translates msg. Skipped
// messages return a zero error with Skipped set, except undetected text which
// also carries a DetectionFailure error. Translation failures return a
// TranslationFailure error and leave no pending state behind.
func (s *Service) ProcessIncomingText(ctx context.Context, msg Message, opts ...ProcessOption) (ProcessResult, error) {
	var cfg processConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	text := textchunk.Normalize(msg.RawText)
	res := ProcessResult{ConversationID: msg.ConversationID, OriginalText: text}
	log := s.logger.With().Str("conversation", msg.ConversationID).Logger()

	switch {
	case text == "":
		res.Skipped = SkipEmpty
	case strings.HasPrefix(text, "/"):
		res.Skipped = SkipCommand
	case utf8.RuneCountInString(text) < s.opts.MinTextLength:
		res.Skipped = SkipTooShort
	}
	if res.Skipped != SkipNone {
		log.Debug().Str("reason", string(res.Skipped)).Msg("⏭️ message skipped")
		return res, nil
	}

	lang, ok := s.detector.Detect(text)
	if !ok {
		res.Skipped = SkipUndetected
		log.Debug().Msg("⏭️ language not detected")
		return res, &Error{Kind: DetectionFailure}
	}
	res.DetectedLanguage = lang
	if lang != s.opts.SourceLanguage {
		res.Skipped = SkipOtherLanguage
		log.Debug().Str("lang", lang).Msg("⏭️ not the trigger language")
		return res, nil
	}

	limitKey := msg.SenderID
	if limitKey == "" {
		limitKey = msg.ConversationID
	}
	if !s.limiter.Allow(limitKey) {
		log.Warn().Str("sender", limitKey).Msg("⏳ rate limit reached")
		return res, &Error{Kind: RateLimited, Err: fmt.Errorf("sender %s", limitKey)}
	}

	if cfg.onTranslateStart != nil {
		cfg.onTranslateStart(ctx)
	}

	start := s.now()
	translated, err := s.translator.Translate(ctx, text, s.opts.TargetLanguage)
	translated = strings.TrimSpace(translated)
	if err == nil && translated == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		log.Error().Err(err).Msg("❌ translation failed")
		return res, &Error{Kind: TranslationFailure, Err: err}
	}
	res.TranslatedText = translated

	log.Info().
		Str("lang", lang).
		Str("target", s.opts.TargetLanguage).
		Dur("took", s.now().Sub(start)).
		Msg("✅ translation ready")
	s.publish(protocol.ActionTranslated, protocol.TranslationEvent{
		ConversationID:   msg.ConversationID,
		DetectedLanguage: lang,
		TargetLanguage:   s.opts.TargetLanguage,
		OriginalText:     text,
		TranslatedText:   translated,
		At:               s.now(),
	})
	return res, nil
}

// Prompt is what the sender is asked before sharing.
type Prompt struct {
	Text     string
	Mode     ConfirmationMode
	Replaced bool
}

// RequestConfirmation stores the translation of res as the conversation's
// pending translation, replacing any earlier one, and returns the prompt to
// show.
func (s *Service) RequestConfirmation(ctx context.Context, conversationID string, res ProcessResult) (Prompt, error) {
	if !res.Translated() {
		return Prompt{}, fmt.Errorf("nothing to confirm for %s", conversationID)
	}
	pending, replaced := s.store.StoreTranslation(conversationID, res.OriginalText, res.TranslatedText)

	event := s.logger.Info()
	if replaced {
		event = s.logger.Warn().Bool("replaced", true)
	}
	event.Str("conversation", conversationID).Msg("💾 translation pending confirmation")

	s.publish(protocol.ActionPending, protocol.TranslationEvent{
		ConversationID: conversationID,
		TargetLanguage: s.opts.TargetLanguage,
		OriginalText:   pending.OriginalText,
		TranslatedText: pending.TranslatedText,
		At:             pending.CreatedAt,
	})

	return Prompt{
		Text:     FormatPrompt(pending.TranslatedText, s.opts.Confirmation, s.SinkNames()),
		Mode:     s.opts.Confirmation,
		Replaced: replaced,
	}, nil
}

// ConfirmSharing takes the pending translation and publishes it to every
// sink. Sink failures are reported in the outcome, not as an error.
func (s *Service) ConfirmSharing(ctx context.Context, conversationID string) (dispatch.Outcome, error) {
	pending, err := s.store.Confirm(conversationID)
	if err != nil {
		s.logger.Warn().Str("conversation", conversationID).Msg("⚠️ confirm without pending translation")
		return dispatch.Outcome{}, &Error{Kind: NoPendingTranslation, Err: err}
	}

	s.logger.Info().Str("conversation", conversationID).Int("sinks", len(s.sinks)).Msg("📤 sharing confirmed")
	outcome := s.dispatcher.Dispatch(ctx, pending.TranslatedText, s.sinks...)
	if err := OutcomeError(outcome); err != nil {
		s.logger.Warn().Err(err).Str("outcome", outcome.ID).Msg("⚠️ sharing finished with failures")
	}

	if s.recorder != nil {
		rec := history.RecordFromOutcome(conversationID, pending.OriginalText, pending.TranslatedText, outcome, s.now())
		// Best effort: the share already went out.
		if err := s.recorder.RecordShare(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Error().Err(err).Str("outcome", outcome.ID).Msg("❌ failed to record share")
		}
	}

	event := protocol.ShareEvent{ID: outcome.ID, ConversationID: conversationID, At: s.now()}
	for _, res := range outcome.Ordered() {
		event.Sinks = append(event.Sinks, protocol.SinkStatus{
			Platform:  res.Platform,
			Success:   res.Success,
			UnitCount: res.UnitCount,
			Threaded:  res.Threaded,
			Error:     res.Error,
			IDs:       res.IDs,
		})
	}
	action := protocol.ActionShared
	if !outcome.Succeeded() {
		action = protocol.ActionFailed
	}
	s.publish(action, event)
	return outcome, nil
}

// DenySharing discards the pending translation.
func (s *Service) DenySharing(ctx context.Context, conversationID string) error {
	if err := s.store.Deny(conversationID); err != nil {
		return &Error{Kind: NoPendingTranslation, Err: err}
	}
	s.logger.Info().Str("conversation", conversationID).Msg("🗑️ sharing denied")
	s.publish(protocol.ActionDenied, protocol.TranslationEvent{ConversationID: conversationID, At: s.now()})
	return nil
}

// HasPending reports whether conversationID awaits a confirmation.
func (s *Service) HasPending(conversationID string) bool {
	return s.store.State(conversationID) == sharing.Pending
}

// SinkNames lists the configured sinks in dispatch order.
func (s *Service) SinkNames() []string {
	names := make([]string, 0, len(s.sinks))
	for _, sink := range s.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	SourceLanguage string           `json:"source_language"`
	TargetLanguage string           `json:"target_language"`
	Confirmation   ConfirmationMode `json:"confirmation"`
	Sinks          []string         `json:"sinks"`
	Pending        int              `json:"pending"`
	RateLimited    int              `json:"rate_limit_keys"`
}

// Status returns the current pipeline status.
func (s *Service) Status() Status {
	return Status{
		SourceLanguage: s.opts.SourceLanguage,
		TargetLanguage: s.opts.TargetLanguage,
		Confirmation:   s.opts.Confirmation,
		Sinks:          s.SinkNames(),
		Pending:        s.store.Len(),
		RateLimited:    s.limiter.Tracked(),
	}
}

func (s *Service) publish(action protocol.Action, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(&protocol.Message{Kind: protocol.MessageKindEvent, Action: action, Data: data})
}
