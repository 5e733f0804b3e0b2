package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fractalmind-ai/translatebot/internal/channels"
	"github.com/fractalmind-ai/translatebot/internal/config"
	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/gateway"
	"github.com/fractalmind-ai/translatebot/internal/history"
	"github.com/fractalmind-ai/translatebot/internal/langdetect"
	"github.com/fractalmind-ai/translatebot/internal/logging"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
	"github.com/fractalmind-ai/translatebot/internal/ratelimit"
	"github.com/fractalmind-ai/translatebot/internal/sharing"
	"github.com/fractalmind-ai/translatebot/internal/textchunk"
	"github.com/fractalmind-ai/translatebot/internal/translate"
	"github.com/fractalmind-ai/translatebot/internal/xapi"
)

const socialPlatform = "x"

type serveOptions struct {
	port       int
	noGateway  bool
	noHistory  bool
	logLevel   string
	prettyLogs bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root, opts, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "override gateway port")
	cmd.Flags().BoolVar(&opts.noGateway, "no-gateway", false, "do not start the websocket gateway")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record shares")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override logging level: debug|info|warn|error")
	cmd.Flags().BoolVar(&opts.prettyLogs, "pretty", false, "human readable log output")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts serveOptions, out io.Writer) error {
	cfg, err := config.Load(root.configPath, root.envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts.apply(cfg)

	a, err := buildApp(cfg, out)
	if err != nil {
		return err
	}
	defer a.close()
	return a.run(ctx)
}

func (o serveOptions) apply(cfg *config.Config) {
	if o.port > 0 {
		cfg.Gateway.Port = o.port
	}
	if o.noGateway {
		cfg.Gateway.Enabled = false
	}
	if o.noHistory {
		cfg.History.Path = ""
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.prettyLogs {
		cfg.Logging.Pretty = true
	}
}

// app is the wired bot: channels feed the pipeline, which publishes
// events to the gateway and records shares in history.
type app struct {
	logger   zerolog.Logger
	manager  *channels.Manager
	service  *pipeline.Service
	gateway  *gateway.Server
	history  *history.Store
	closeFns []func() error
}

func buildApp(cfg *config.Config, out io.Writer) (*app, error) {
	a := &app{}
	w := out
	if cfg.Logging.File != "" {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.closeFns = append(a.closeFns, f.Close)
		w = f
	}
	a.logger = logging.New(cfg.Logging.Level, cfg.Logging.Pretty, w)
	a.logger.Info().Str("config", cfg.Summary()).Msg("🚀 starting translatebot")

	translator, err := translate.New(translate.Config{
		APIKey:      cfg.Translator.APIKey,
		BaseURL:     cfg.Translator.BaseURL,
		Model:       cfg.Translator.Model,
		SourceLang:  cfg.Sharing.SourceLanguage,
		Temperature: cfg.Translator.Temperature,
		MaxTokens:   cfg.Translator.MaxTokens,
		Timeout:     cfg.Translator.Timeout,
		MaxRetries:  cfg.Translator.MaxRetries,
	}, a.logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize translator: %w", err)
	}

	mode, err := pipeline.ParseConfirmationMode(cfg.Sharing.Confirmation)
	if err != nil {
		a.close()
		return nil, err
	}

	a.manager, err = channels.FromConfig(cfg, a.logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize channels: %w", err)
	}
	bot := a.manager.Telegram()

	sinks := []dispatch.Sink{socialSink(cfg, a.logger)}
	sinks = append(sinks, &dispatch.ChatSink{
		Platform:     "telegram",
		ChatID:       bot.GroupID(),
		Sender:       bot,
		MaxLength:    cfg.ChatLimit(),
		Unit:         textchunk.UTF16,
		MessageLimit: channels.TelegramMessageLimit,
	})
	sinks = append(sinks, a.manager.MirrorSinks()...)

	deps := pipeline.Deps{
		Detector:   langdetect.New(),
		Translator: translator,
		Store:      sharing.NewStore(cfg.Sharing.PendingTTL),
		Dispatcher: dispatch.NewDispatcher(a.logger),
		Sinks:      sinks,
		Limiter:    ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour),
		Logger:     a.logger,
	}

	var gwDeps gateway.Deps
	gwDeps.Channels = a.manager
	if path := strings.TrimSpace(cfg.History.Path); path != "" {
		store, err := history.Open(path)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.history = store
		a.closeFns = append(a.closeFns, store.Close)
		deps.Recorder = store
		gwDeps.History = store
	}

	if cfg.Gateway.Enabled {
		a.gateway, err = gateway.NewServer(cfg.Gateway, gwDeps, a.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize gateway: %w", err)
		}
		deps.Events = a.gateway
	}

	a.service, err = pipeline.NewService(pipeline.Options{
		SourceLanguage: cfg.Sharing.SourceLanguage,
		TargetLanguage: cfg.Sharing.TargetLanguage,
		MinTextLength:  cfg.Sharing.MinTextLength,
		Confirmation:   mode,
	}, deps)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	if a.gateway != nil {
		a.gateway.AttachPipeline(a.service)
	}
	a.manager.SetHandler(a.service)
	return a, nil
}

// socialSink returns the X sink. When sharing is off or credentials are
// missing the platform still shows up in acknowledgements as disabled.
func socialSink(cfg *config.Config, logger zerolog.Logger) dispatch.Sink {
	s := cfg.Social
	if !s.Enabled {
		return dispatch.Unavailable{Platform: socialPlatform, Reason: "sharing disabled"}
	}
	client, err := xapi.New(xapi.Config{
		AuthMode:          xapi.AuthMode(strings.ToLower(strings.TrimSpace(s.AuthMode))),
		BearerToken:       s.BearerToken,
		APIKey:            s.APIKey,
		APISecret:         s.APISecret,
		AccessToken:       s.AccessToken,
		AccessTokenSecret: s.AccessTokenSecret,
		BaseURL:           s.BaseURL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ X sharing unavailable")
		return dispatch.Unavailable{Platform: socialPlatform, Reason: "sharing disabled"}
	}
	return &dispatch.SocialSink{Platform: socialPlatform, Poster: client, MaxLength: cfg.Sharing.ThreadLimit}
}

func (a *app) run(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.gateway != nil {
		g.Go(func() error { return a.gateway.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	a.logger.Info().Msg("🛑 shutting down")
	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := a.manager.Stop(); err != nil {
		errs = append(errs, err)
	}
	if a.gateway != nil {
		if err := a.gateway.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		_ = a.closeFns[i]()
	}
	a.closeFns = nil
}
