package langdetect

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DisplayName returns the English name of a language code, or the upper-cased
// code when it is unknown.
func DisplayName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return strings.ToUpper(code)
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}

// Valid reports whether code parses as a BCP 47 language tag.
func Valid(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	_, err := language.Parse(code)
	return err == nil
}

// SpanishName returns the Spanish name of a language code, used in replies
// shown to users.
func SpanishName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return strings.ToUpper(code)
	}
	name := display.Spanish.Languages().Name(tag)
	if name == "" {
		return DisplayName(code)
	}
	return name
}
