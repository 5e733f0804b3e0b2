package channels

import (
	"strings"
	"testing"

	"github.com/fractalmind-ai/translatebot/internal/pipeline"
)

func TestParseTelegramCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs int
	}{
		{"/start", "start", 0},
		{"/Help@translate_bot", "help", 0},
		{"  /getid extra args ", "getid", 2},
		{"hello", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		name, args := parseTelegramCommand(tt.text)
		if name != tt.wantName || len(args) != tt.wantArgs {
			t.Fatalf("parseTelegramCommand(%q)=(%q,%v) want (%q,%d args)", tt.text, name, args, tt.wantName, tt.wantArgs)
		}
	}
}

func TestTelegramSafeCommands(t *testing.T) {
	for _, text := range []string{"/start", "/help", "/getid@bot"} {
		if !isTelegramSafeCommand(text) {
			t.Fatalf("%q should be safe", text)
		}
	}
	if isTelegramSafeCommand("/status") {
		t.Fatalf("/status should require authorization")
	}
}

func TestTelegramCommandsAreNotTranslated(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, nil)

	for i, text := range []string{"/start", "/help", "/status", "/getid", "/unknown please translate me"} {
		f.bot.handleUpdate(textUpdate(int64(i+1), -100, 7, text))
	}
	if f.translator.calls != 0 {
		t.Fatalf("commands must not be translated")
	}
	// The unknown command is ignored, the others answer once each.
	if got := len(f.api.byMethod("sendMessage")); got != 4 {
		t.Fatalf("expected 4 replies, got %d", got)
	}
}

func TestTelegramGetIDForUnauthorizedUser(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, []int64{1})

	update := textUpdate(1, -100200, 99, "/getid")
	update.Message.Chat.Title = "Traducciones"
	f.bot.handleUpdate(update)

	sends := f.api.byMethod("sendMessage")
	if len(sends) != 1 {
		t.Fatalf("expected getid reply, got %d", len(sends))
	}
	text := sends[0].text()
	for _, want := range []string{"-100200", "Traducciones", "99", "TELEGRAM_GROUP_ID"} {
		if !strings.Contains(text, want) {
			t.Fatalf("getid reply missing %q: %q", want, text)
		}
	}

	f.bot.handleUpdate(textUpdate(2, -100200, 99, "/status"))
	if got := len(f.api.byMethod("sendMessage")); got != 1 {
		t.Fatalf("/status must not answer unauthorized users, got %d replies", got)
	}
}

func TestTelegramStatusText(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, nil)
	f.bot.markActivity()

	status := f.bot.statusText()
	for _, want := range []string{"📊 Estado del bot", "Grupo: -100500", "Idiomas: en → es", "Confirmación: buttons", "Pendientes: 0", "🐦 X", "Última actividad"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}
}

func TestTelegramHelpTextFollowsConfirmationMode(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmText, nil)
	if !strings.Contains(f.bot.helpText(), "responde SÍ o NO") {
		t.Fatalf("text mode help should mention textual replies")
	}
	f.bot.ConfigureConfirmation(pipeline.ConfirmButtons)
	if !strings.Contains(f.bot.helpText(), "✅ SÍ, Compartir") {
		t.Fatalf("button mode help should mention the buttons")
	}
}

func TestTelegramStartTextNamesLanguages(t *testing.T) {
	f := newTelegramFixture(t, pipeline.ConfirmButtons, nil)
	text := f.bot.startText()
	if !strings.Contains(text, "inglés") || !strings.Contains(text, "español") {
		t.Fatalf("start text should name the languages: %q", text)
	}
}
