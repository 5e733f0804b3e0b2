package channels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fractalmind-ai/translatebot/internal/langdetect"
	"github.com/fractalmind-ai/translatebot/internal/pipeline"
)

// safe commands answer unauthorized users too; /getid is how they find
// the ID to request access with.
var telegramSafeCommands = map[string]bool{
	"start": true,
	"help":  true,
	"getid": true,
}

// parseTelegramCommand returns the lowercase command name without the
// leading slash or a "@botname" suffix.
func parseTelegramCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}

func isTelegramSafeCommand(text string) bool {
	name, _ := parseTelegramCommand(text)
	return telegramSafeCommands[name]
}

// handleCommand answers a slash command. handled is false for unknown
// commands, which are ignored rather than translated.
func (b *TelegramBot) handleCommand(ctx context.Context, msg *TelegramMessage) (bool, error) {
	name, _ := parseTelegramCommand(msg.Text)
	var reply string
	switch name {
	case "start":
		reply = b.startText()
	case "help":
		reply = b.helpText()
	case "status":
		reply = b.statusText()
	case "getid":
		reply = getIDText(msg)
	default:
		return false, nil
	}
	return true, b.reply(ctx, msg.Chat.ID, reply)
}

func (b *TelegramBot) languages() (string, string) {
	if b.handler == nil {
		return "en", "es"
	}
	st := b.handler.Status()
	return st.SourceLanguage, st.TargetLanguage
}

func (b *TelegramBot) startText() string {
	source, target := b.languages()
	return fmt.Sprintf(`🌐 Bot de traducción

Detecto los mensajes en %s y los traduzco a %s.

Cómo funciona:
• Envía cualquier texto en %s (también reenviados o fotos con pie)
• Te muestro la traducción
• Confirma para publicarla en los canales configurados

Comandos:
• /start - Este mensaje
• /help - Ayuda
• /status - Estado del bot
• /getid - ID del chat actual`,
		langdetect.SpanishName(source), langdetect.SpanishName(target), langdetect.SpanishName(source))
}

func (b *TelegramBot) helpText() string {
	confirm := "pulsa \"✅ SÍ, Compartir\" o \"❌ NO, Cancelar\""
	if b.confirmation == pipeline.ConfirmText {
		confirm = "responde SÍ o NO"
	}
	return fmt.Sprintf(`🆘 Ayuda

1. Envía texto (sin comandos)
2. El bot detecta el idioma y lo traduce
3. Revisa la traducción y %s
4. Los textos largos se publican como hilo

Una traducción nueva reemplaza a la pendiente.

Comandos de diagnóstico:
• /getid - ID del chat (útil para configurar el grupo)
• /status - Estado de los canales`, confirm)
}

func (b *TelegramBot) statusText() string {
	var sb strings.Builder
	sb.WriteString("📊 Estado del bot\n\n")

	if started := b.StartedAt(); !started.IsZero() {
		fmt.Fprintf(&sb, "• En línea desde: %s\n", humanize.RelTime(started, time.Now(), "", ""))
	}
	if last := b.LastActivity(); !last.IsZero() {
		fmt.Fprintf(&sb, "• Última actividad: %s\n", humanize.Time(last))
	}
	if last := b.LastError(); !last.IsZero() {
		fmt.Fprintf(&sb, "• Último error: %s\n", humanize.Time(last))
	}
	fmt.Fprintf(&sb, "• Grupo: %s\n", valueOr(b.groupID, "sin configurar"))

	if b.handler != nil {
		st := b.handler.Status()
		fmt.Fprintf(&sb, "• Idiomas: %s → %s\n", st.SourceLanguage, st.TargetLanguage)
		fmt.Fprintf(&sb, "• Confirmación: %s\n", st.Confirmation)
		fmt.Fprintf(&sb, "• Pendientes: %d\n", st.Pending)
		if len(st.Sinks) > 0 {
			labels := make([]string, 0, len(st.Sinks))
			for _, name := range st.Sinks {
				labels = append(labels, pipeline.PlatformLabel(name))
			}
			fmt.Fprintf(&sb, "• Destinos: %s\n", strings.Join(labels, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func getIDText(msg *TelegramMessage) string {
	title := msg.Chat.Title
	if title == "" {
		title = "Sin título"
	}
	return fmt.Sprintf(`🔍 Información del chat

• ID: %d
• Tipo: %s
• Título: %s

• Usuario: %s
• ID de usuario: %d

Para publicar en este grupo, usa este ID como TELEGRAM_GROUP_ID.`,
		msg.Chat.ID, msg.Chat.Type, title, telegramDisplayName(msg.From), msg.From.ID)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
