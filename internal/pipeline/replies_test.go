package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
)

func TestParseConfirmationReply(t *testing.T) {
	tests := []struct {
		in   string
		want Decision
	}{
		{"SÍ", DecisionConfirm},
		{" si! ", DecisionConfirm},
		{"yes", DecisionConfirm},
		{"No.", DecisionDeny},
		{"cancelar", DecisionDeny},
		{"maybe later", DecisionNone},
		{"", DecisionNone},
	}
	for _, tt := range tests {
		if got := ParseConfirmationReply(tt.in); got != tt.want {
			t.Fatalf("ParseConfirmationReply(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseConfirmationMode(t *testing.T) {
	if m, err := ParseConfirmationMode(""); err != nil || m != ConfirmButtons {
		t.Fatalf("empty mode: %v %v", m, err)
	}
	if m, err := ParseConfirmationMode(" Text "); err != nil || m != ConfirmText {
		t.Fatalf("text mode: %v %v", m, err)
	}
	if _, err := ParseConfirmationMode("voice"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFormatPromptTextMode(t *testing.T) {
	got := FormatPrompt("Hola", ConfirmText, []string{"x", "matrix"})
	if !strings.HasPrefix(got, "📝 Traducción:\n\nHola\n\n") {
		t.Fatalf("unexpected prompt %q", got)
	}
	if !strings.Contains(got, "🐦 X, 🔗 matrix") || !strings.Contains(got, "Responde SÍ") {
		t.Fatalf("unexpected prompt %q", got)
	}
}

func TestFormatOutcome(t *testing.T) {
	outcome := dispatch.Outcome{
		Results: map[string]dispatch.Result{
			"x":        {Platform: "x", Success: true, UnitCount: 3, Threaded: true},
			"telegram": {Platform: "telegram", Success: true, UnitCount: 2},
			"slack":    {Platform: "slack", UnitCount: 1, Error: "channel_not_found"},
			"discord":  {Platform: "discord", Success: true, UnitCount: 1},
		},
		Order: []string{"x", "telegram", "slack", "discord"},
	}
	want := "📊 Resultados:\n\n" +
		"🐦 X: ✅ Hilo publicado (3 publicaciones)\n" +
		"📱 Telegram: ✅ Enviado en 2 mensajes\n" +
		"💬 Slack: ❌ Error - channel_not_found (1 enviados antes del fallo)\n" +
		"🎮 Discord: ✅ Publicado correctamente"
	if got := FormatOutcome(outcome); got != want {
		t.Fatalf("FormatOutcome =\n%s\nwant\n%s", got, want)
	}
	if got := FormatOutcome(dispatch.Outcome{}); !strings.Contains(got, "No hay plataformas") {
		t.Fatalf("unexpected empty outcome reply %q", got)
	}
}

func TestReplyForError(t *testing.T) {
	if ReplyForError(nil) != "" {
		t.Fatalf("nil error has no reply")
	}
	if ReplyForError(&Error{Kind: DetectionFailure}) != "" {
		t.Fatalf("detection failures are silent")
	}
	if ReplyForError(&Error{Kind: RateLimited}) != ReplyRateLimited {
		t.Fatalf("unexpected rate limit reply")
	}
	if ReplyForError(errors.New("boom")) != ReplyUnexpected {
		t.Fatalf("unknown errors still get an acknowledgement")
	}
}
