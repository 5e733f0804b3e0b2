package channels

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramPollingBackoff(t *testing.T) {
	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot.ctx = ctx
	bot.cancel = cancel

	var calls int32
	bot.httpClient = &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			count := atomic.AddInt32(&calls, 1)
			switch count {
			case 1, 2:
				return nil, errors.New("boom")
			case 3:
				return jsonResponse(`{"ok":true,"result":[]}`), nil
			case 4:
				cancel()
				return nil, errors.New("boom")
			default:
				return nil, errors.New("unexpected call")
			}
		}),
	}

	durations := make(chan time.Duration, 10)
	bot.sleeper = func(d time.Duration) {
		durations <- d
	}

	bot.startPollingLoop()

	got := make([]time.Duration, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case d := <-durations:
			got = append(got, d)
		case <-time.After(1 * time.Second):
			t.Fatalf("timed out waiting for backoff sleep")
		}
	}
	bot.wg.Wait()

	want := []time.Duration{
		defaultTelegramPollingBackoffMin,
		defaultTelegramPollingBackoffMin * 2,
		defaultTelegramPollingBackoffMin,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("backoff durations=%v want=%v", got, want)
	}
}

func TestTelegramPollingAdvancesAndPersistsOffset(t *testing.T) {
	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}
	bot.pollingOffsetFile = filepath.Join(t.TempDir(), "telegram.offset")

	ctx, cancel := context.WithCancel(context.Background())
	bot.ctx = ctx
	bot.cancel = cancel

	var polls int32
	bot.httpClient = &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if path.Base(req.URL.Path) != "getUpdates" {
				return jsonResponse(`{"ok":true,"result":true}`), nil
			}
			if atomic.AddInt32(&polls, 1) == 1 {
				return jsonResponse(`{"ok":true,"result":[{"update_id":41},{"update_id":42}]}`), nil
			}
			cancel()
			return nil, context.Canceled
		}),
	}
	bot.sleeper = func(time.Duration) {}

	bot.startPollingLoop()
	bot.wg.Wait()

	if bot.nextUpdateID != 43 {
		t.Fatalf("expected nextUpdateID=43, got %d", bot.nextUpdateID)
	}
	data, err := os.ReadFile(bot.pollingOffsetFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "43\n" {
		t.Fatalf("unexpected offset file %q", string(data))
	}
}

func TestTelegramPreparePollingDropsPendingWithoutOffsetFile(t *testing.T) {
	tests := []struct {
		name       string
		offsetFile bool
		wantDrop   string
	}{
		{name: "no offset file", offsetFile: false, wantDrop: `"drop_pending_updates":true`},
		{name: "offset file", offsetFile: true, wantDrop: `"drop_pending_updates":false`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &telegramRecorder{}
			bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewTelegramBot: %v", err)
			}
			bot.httpClient = api.client()
			if tt.offsetFile {
				bot.pollingOffsetFile = filepath.Join(t.TempDir(), "telegram.offset")
			}

			if err := bot.preparePolling(context.Background()); err != nil {
				t.Fatalf("preparePolling: %v", err)
			}
			calls := api.byMethod("deleteWebhook")
			if len(calls) != 1 || !strings.Contains(calls[0].raw, tt.wantDrop) {
				t.Fatalf("unexpected deleteWebhook calls: %#v", calls)
			}
		})
	}
}

func TestTelegramPollingOffset_MissingFile(t *testing.T) {
	t.Parallel()

	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}

	dir := t.TempDir()
	bot.pollingOffsetFile = filepath.Join(dir, "telegram.offset")

	if err := bot.loadPollingOffset(); err != nil {
		t.Fatalf("loadPollingOffset: %v", err)
	}
	if bot.nextUpdateID != 0 {
		t.Fatalf("expected nextUpdateID=0, got %d", bot.nextUpdateID)
	}
}

func TestTelegramPollingOffset_LoadsValue(t *testing.T) {
	t.Parallel()

	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}

	dir := t.TempDir()
	offsetPath := filepath.Join(dir, "telegram.offset")
	if err := os.WriteFile(offsetPath, []byte("42\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	bot.pollingOffsetFile = offsetPath

	if err := bot.loadPollingOffset(); err != nil {
		t.Fatalf("loadPollingOffset: %v", err)
	}
	if bot.nextUpdateID != 42 {
		t.Fatalf("expected nextUpdateID=42, got %d", bot.nextUpdateID)
	}
}

func TestTelegramPollingOffset_InvalidValue(t *testing.T) {
	t.Parallel()

	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}
	offsetPath := filepath.Join(t.TempDir(), "telegram.offset")
	if err := os.WriteFile(offsetPath, []byte("forty-two"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	bot.pollingOffsetFile = offsetPath

	if err := bot.loadPollingOffset(); err == nil {
		t.Fatalf("expected error for invalid offset")
	}
}

func TestTelegramPollingOffset_PersistsValue(t *testing.T) {
	t.Parallel()

	bot, err := NewTelegramBot("token", "", nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramBot: %v", err)
	}

	dir := t.TempDir()
	offsetPath := filepath.Join(dir, "state", "telegram.offset")
	bot.pollingOffsetFile = offsetPath
	bot.nextUpdateID = 99

	if err := bot.persistPollingOffset(); err != nil {
		t.Fatalf("persistPollingOffset: %v", err)
	}

	data, err := os.ReadFile(offsetPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got := string(data)
	if got != "99\n" {
		t.Fatalf("expected file content %q, got %q", "99\n", got)
	}
}
