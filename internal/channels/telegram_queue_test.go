package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fractalmind-ai/translatebot/internal/pipeline"
)

func waitForCalls(t *testing.T, api *telegramRecorder, method string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(api.byMethod(method)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %s calls, got %d", n, method, len(api.byMethod(method)))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTelegramPollingKeepsLatestTranslationPending(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, nil)
	f.translator.format = "ES(%s)"
	f.translator.hook = func(text string) {
		if strings.HasPrefix(text, "First") {
			time.Sleep(200 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.bot.ctx = ctx
	f.bot.cancel = cancel
	f.bot.sleeper = func(time.Duration) {}

	batch, err := json.Marshal(map[string]interface{}{"ok": true, "result": []telegramUpdate{
		textUpdate(1, 5, 7, "First english message here"),
		textUpdate(2, 5, 7, "Second english message here"),
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	recorder := f.api.client().Transport
	var polls int32
	f.bot.httpClient = &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if path.Base(req.URL.Path) != "getUpdates" {
			return recorder.RoundTrip(req)
		}
		if atomic.AddInt32(&polls, 1) == 1 {
			return jsonResponse(string(batch)), nil
		}
		<-req.Context().Done()
		return nil, req.Context().Err()
	})}

	f.bot.startPollingLoop()
	waitForCalls(t, f.api, "editMessageText", 2)
	cancel()
	f.bot.wg.Wait()

	pending, ok := f.store.Peek("5:7")
	if !ok || pending.TranslatedText != "ES(Second english message here)" {
		t.Fatalf("latest message should be pending, got %q (ok=%t)", pending.TranslatedText, ok)
	}
	edits := f.api.byMethod("editMessageText")
	if !strings.Contains(edits[1].text(), pipeline.ReplyReplaced) {
		t.Fatalf("second prompt should announce the replacement: %q", edits[1].text())
	}
}

func TestTelegramWebhookKeepsArrivalOrderPerConversation(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmText, nil)
	f.translator.format = "ES(%s)"
	f.translator.hook = func(text string) {
		if strings.HasPrefix(text, "First") {
			time.Sleep(100 * time.Millisecond)
		}
	}
	handler := NewWebhookHandler(f.bot)

	for _, u := range []telegramUpdate{
		textUpdate(1, 5, 7, "First english message here"),
		textUpdate(2, 5, 7, "SÍ"),
	} {
		body, err := json.Marshal(u)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", bytes.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}
	f.bot.wg.Wait()

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	if len(f.sink.texts) != 1 || f.sink.texts[0] != "ES(First english message here)" {
		t.Fatalf("confirmation should share the translation it answers, got %v", f.sink.texts)
	}
}

func TestTelegramConversationsRunConcurrently(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, nil)
	f.translator.format = "ES(%s)"
	release := make(chan struct{})
	var blocked atomic.Bool
	f.translator.hook = func(text string) {
		switch {
		case strings.HasPrefix(text, "Alpha"):
			select {
			case <-release:
			case <-time.After(2 * time.Second):
				blocked.Store(true)
			}
		case strings.HasPrefix(text, "Beta"):
			close(release)
		}
	}

	f.bot.enqueueUpdate(textUpdate(1, 5, 7, "Alpha english message here"))
	f.bot.enqueueUpdate(textUpdate(2, 5, 8, "Beta english message here"))
	f.bot.wg.Wait()

	if blocked.Load() {
		t.Fatalf("one conversation must not wait for another")
	}
	for _, conv := range []string{"5:7", "5:8"} {
		if _, ok := f.store.Peek(conv); !ok {
			t.Fatalf("expected pending translation for %s", conv)
		}
	}
	f.bot.queueMu.Lock()
	defer f.bot.queueMu.Unlock()
	if len(f.bot.queues) != 0 {
		t.Fatalf("idle conversations should release their queue: %v", f.bot.queues)
	}
}
