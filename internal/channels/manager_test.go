package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fractalmind-ai/translatebot/internal/config"
	"github.com/fractalmind-ai/translatebot/internal/dispatch"
)

type fakeChannel struct {
	name     string
	started  int
	stopped  int
	running  bool
	startErr error
	stopErr  error
	order    *[]string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Start(ctx context.Context) error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeChannel) Stop() error {
	f.stopped++
	f.running = false
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	return f.stopErr
}

func (f *fakeChannel) IsRunning() bool { return f.running }

func TestManagerStartStop(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	var stops []string
	first := &fakeChannel{name: "first", order: &stops}
	second := &fakeChannel{name: "second", order: &stops}

	for _, ch := range []Channel{first, second} {
		if err := manager.Register(ch); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !first.running || !second.running {
		t.Fatalf("expected channels started")
	}

	if err := manager.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if first.running || second.running {
		t.Fatalf("expected channels stopped")
	}
	if len(stops) != 2 || stops[0] != "second" || stops[1] != "first" {
		t.Fatalf("expected reverse stop order, got %v", stops)
	}
}

func TestManagerRegisterDuplicate(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	fake := &fakeChannel{name: "fake"}

	if err := manager.Register(fake); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.Register(fake); err == nil {
		t.Fatalf("expected duplicate register error")
	}
	if err := manager.Register(nil); err == nil {
		t.Fatalf("expected nil channel error")
	}
	if _, ok := manager.Get("fake"); !ok {
		t.Fatalf("expected registered channel")
	}
}

func TestManagerStartRollsBack(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	ok := &fakeChannel{name: "ok"}
	broken := &fakeChannel{name: "broken", startErr: errors.New("boom")}
	never := &fakeChannel{name: "never"}
	for _, ch := range []Channel{ok, broken, never} {
		if err := manager.Register(ch); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	err := manager.Start(context.Background())
	if err == nil || !errors.Is(err, broken.startErr) {
		t.Fatalf("expected wrapped start error, got %v", err)
	}
	if ok.running || ok.stopped != 1 {
		t.Fatalf("started channel should be rolled back, stopped=%d", ok.stopped)
	}
	if never.started != 0 {
		t.Fatalf("later channels must not start")
	}
}

func TestManagerStopJoinsErrors(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	a := &fakeChannel{name: "a", stopErr: errors.New("a failed")}
	b := &fakeChannel{name: "b", stopErr: errors.New("b failed")}
	_ = manager.Register(a)
	_ = manager.Register(b)
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	err := manager.Stop()
	if !errors.Is(err, a.stopErr) || !errors.Is(err, b.stopErr) {
		t.Fatalf("expected both stop errors, got %v", err)
	}
}

func TestManagerList(t *testing.T) {
	manager := NewManager(zerolog.Nop())
	_ = manager.Register(&fakeChannel{name: "idle"})
	slackBot, err := NewSlackBot("xoxb", "C1", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSlackBot: %v", err)
	}
	slackBot.startFn = func(ctx context.Context) error { return nil }
	slackBot.markActivity()
	_ = manager.Register(slackBot)
	if err := slackBot.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	infos := manager.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(infos))
	}
	if infos[0].Type != "idle" || infos[0].Status != "stopped" {
		t.Fatalf("unexpected first info %#v", infos[0])
	}
	if infos[1].Type != "slack" || infos[1].Status != "running" || infos[1].LastActivity.IsZero() {
		t.Fatalf("unexpected slack info %#v", infos[1])
	}
}

func TestManagerFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telegram.BotToken = "token"
	cfg.Telegram.GroupID = "-100"
	cfg.Telegram.PollingTimeout = 10
	cfg.Sharing.Confirmation = "text"
	cfg.Slack = &config.SlackConfig{Enabled: true, BotToken: "xoxb", ChannelID: "C1"}
	cfg.Discord = &config.DiscordConfig{Enabled: true, Token: "d", ChannelID: "D1"}

	manager, err := FromConfig(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	bot := manager.Telegram()
	if bot == nil || bot.GroupID() != "-100" {
		t.Fatalf("expected telegram bot for group -100")
	}
	if bot.pollingTimeout != 10*time.Second || bot.confirmation != "text" {
		t.Fatalf("telegram settings not applied: timeout=%s confirmation=%s", bot.pollingTimeout, bot.confirmation)
	}

	sinks := manager.MirrorSinks()
	if len(sinks) != 2 {
		t.Fatalf("expected slack and discord sinks, got %d", len(sinks))
	}
	slackSink, ok := sinks[0].(*dispatch.ChatSink)
	if !ok || slackSink.Name() != "slack" || slackSink.ChatID != "C1" || slackSink.MaxLength != SlackMessageLimit {
		t.Fatalf("unexpected slack sink %#v", sinks[0])
	}
	discordSink, ok := sinks[1].(*dispatch.ChatSink)
	if !ok || discordSink.Name() != "discord" || discordSink.MaxLength != DiscordMessageLimit {
		t.Fatalf("unexpected discord sink %#v", sinks[1])
	}
}

func TestManagerFromConfigDisabledMirrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Telegram.BotToken = "token"

	manager, err := FromConfig(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if sinks := manager.MirrorSinks(); len(sinks) != 0 {
		t.Fatalf("expected no mirror sinks, got %d", len(sinks))
	}
	if _, err := FromConfig(&config.Config{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without telegram config")
	}
}
