package channels

import (
	"strings"

	"github.com/fractalmind-ai/translatebot/internal/textchunk"
)

// TelegramMessageLimit is the Bot API cap on message text, in UTF-16 units.
const TelegramMessageLimit = 4096

const truncateSuffix = "\n…(truncated)"

func truncateReply(text string, maxLen int, unit textchunk.Unit) string {
	text = strings.TrimSpace(text)
	if maxLen <= 0 || unit.Len(text) <= maxLen {
		return text
	}
	keep := maxLen - unit.Len(truncateSuffix)
	if keep < 1 {
		keep = 1
	}
	var sb strings.Builder
	width := 0
	for _, r := range text {
		w := unit.Len(string(r))
		if width+w > keep {
			break
		}
		sb.WriteRune(r)
		width += w
	}
	return strings.TrimSpace(sb.String()) + truncateSuffix
}

// TruncateTelegramReply limits outbound Telegram responses to the max Telegram message size.
func TruncateTelegramReply(text string) string {
	return truncateReply(text, TelegramMessageLimit, textchunk.UTF16)
}
