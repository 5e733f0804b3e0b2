// Package langdetect identifies the language of short chat messages.
package langdetect

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// minLetters is the shortest cleaned text worth detecting.
const minLetters = 3

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// Detector wraps whatlanggo. The zero value is ready to use.
type Detector struct {
	// MinConfidence rejects detections below this score when > 0.
	MinConfidence float64
}

// New returns a detector with no confidence floor.
func New() *Detector {
	return &Detector{}
}

// Detect returns the ISO 639-1 code of text. ok is false when the text is
// too short after cleaning or the language cannot be determined.
func (d *Detector) Detect(text string) (lang string, ok bool) {
	clean := strings.TrimSpace(nonWord.ReplaceAllString(text, ""))
	if utf8.RuneCountInString(clean) < minLetters {
		return "", false
	}

	info := whatlanggo.Detect(clean)
	if d != nil && d.MinConfidence > 0 && info.Confidence < d.MinConfidence {
		return "", false
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", false
	}
	return code, true
}
