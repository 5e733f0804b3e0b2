package channels

import (
	"strings"
	"testing"

	"github.com/fractalmind-ai/translatebot/internal/textchunk"
)

func TestTruncateTelegramReply(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		truncated bool
	}{
		{name: "short", text: "hola"},
		{name: "ascii at limit", text: strings.Repeat("a", TelegramMessageLimit)},
		{name: "ascii over limit", text: strings.Repeat("a", TelegramMessageLimit+1), truncated: true},
		{name: "emoji under rune limit", text: strings.Repeat("😀", 3000), truncated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateTelegramReply(tt.text)
			if n := textchunk.UTF16.Len(got); n > TelegramMessageLimit {
				t.Fatalf("reply is %d UTF-16 units, limit %d", n, TelegramMessageLimit)
			}
			if strings.HasSuffix(got, truncateSuffix) != tt.truncated {
				t.Fatalf("truncated=%t, want %t", !tt.truncated, tt.truncated)
			}
			if !tt.truncated && got != tt.text {
				t.Fatalf("short reply should be unchanged")
			}
		})
	}
}
