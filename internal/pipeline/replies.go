package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
	"github.com/fractalmind-ai/translatebot/internal/textchunk"
)

// User-facing acknowledgements.
const (
	ReplyTranslating       = "🔄 Traduciendo automáticamente..."
	ReplyTranslationFailed = "❌ Error en la traducción."
	ReplyNoPending         = "❌ No hay traducción pendiente."
	ReplyCancelled         = "❌ Compartición cancelada."
	ReplySharing           = "📤 Compartiendo..."
	ReplyRateLimited       = "⏳ Demasiadas solicitudes. Inténtalo de nuevo en unos minutos."
	ReplyReplaced          = "♻️ La traducción anterior fue reemplazada."
	ReplyUnexpected        = "❌ Ocurrió un error inesperado."
)

// ConfirmationMode selects how the sender confirms a share.
type ConfirmationMode string

const (
	ConfirmButtons ConfirmationMode = "buttons"
	ConfirmText    ConfirmationMode = "text"
)

// ParseConfirmationMode accepts "buttons" or "text"; empty means buttons.
func ParseConfirmationMode(s string) (ConfirmationMode, error) {
	switch ConfirmationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ConfirmButtons:
		return ConfirmButtons, nil
	case ConfirmText:
		return ConfirmText, nil
	}
	return "", fmt.Errorf("unknown confirmation mode %q", s)
}

// Decision is a sender's answer to a prompt.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionConfirm
	DecisionDeny
)

var (
	confirmWords = map[string]struct{}{"si": {}, "s": {}, "yes": {}, "y": {}, "ok": {}, "vale": {}, "compartir": {}, "confirmar": {}}
	denyWords    = map[string]struct{}{"no": {}, "n": {}, "cancelar": {}, "cancel": {}}
)

// ParseConfirmationReply reads a text-mode answer such as "SÍ" or "no".
func ParseConfirmationReply(text string) Decision {
	word := foldReply(text)
	if _, ok := confirmWords[word]; ok {
		return DecisionConfirm
	}
	if _, ok := denyWords[word]; ok {
		return DecisionDeny
	}
	return DecisionNone
}

func foldReply(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(textchunk.Normalize(text)))
	if err != nil {
		folded = strings.ToLower(text)
	}
	return strings.TrimFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

var platformLabels = map[string]string{
	"x":        "🐦 X",
	"twitter":  "🐦 X",
	"telegram": "📱 Telegram",
	"slack":    "💬 Slack",
	"discord":  "🎮 Discord",
}

// PlatformLabel returns the display label of a sink name.
func PlatformLabel(name string) string {
	if label, ok := platformLabels[strings.ToLower(name)]; ok {
		return label
	}
	return "🔗 " + name
}

// FormatPrompt renders the translation and the question shown before sharing.
func FormatPrompt(translation string, mode ConfirmationMode, platforms []string) string {
	var b strings.Builder
	b.WriteString("📝 Traducción:\n\n")
	b.WriteString(translation)
	b.WriteString("\n\n")

	labels := make([]string, 0, len(platforms))
	for _, p := range platforms {
		labels = append(labels, PlatformLabel(p))
	}
	if len(labels) == 0 {
		b.WriteString("¿Compartir esta traducción?")
	} else {
		b.WriteString("¿Compartir en " + strings.Join(labels, ", ") + "?")
	}
	if mode == ConfirmText {
		b.WriteString("\n\nResponde SÍ para compartir o NO para cancelar.")
	}
	return b.String()
}

// FormatOutcome renders one status line per platform.
func FormatOutcome(outcome dispatch.Outcome) string {
	results := outcome.Ordered()
	if len(results) == 0 {
		return "⚠️ No hay plataformas configuradas para compartir."
	}
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, fmt.Sprintf("%s: %s", PlatformLabel(res.Platform), statusLine(res)))
	}
	return "📊 Resultados:\n\n" + strings.Join(lines, "\n")
}

func statusLine(res dispatch.Result) string {
	if !res.Success {
		line := "❌ Error - " + res.Error
		if res.UnitCount > 0 {
			line += fmt.Sprintf(" (%d enviados antes del fallo)", res.UnitCount)
		}
		return line
	}
	switch {
	case res.Threaded:
		return fmt.Sprintf("✅ Hilo publicado (%d publicaciones)", res.UnitCount)
	case res.UnitCount > 1:
		return fmt.Sprintf("✅ Enviado en %d mensajes", res.UnitCount)
	default:
		return "✅ Publicado correctamente"
	}
}

// ReplyForError returns the acknowledgement for err. Detection failures map
// to "" and stay silent.
func ReplyForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTranslationFailed):
		return ReplyTranslationFailed
	case errors.Is(err, ErrRateLimited):
		return ReplyRateLimited
	case KindOf(err) == NoPendingTranslation:
		return ReplyNoPending
	case errors.Is(err, ErrDetectionFailed):
		return ""
	}
	return ReplyUnexpected
}
