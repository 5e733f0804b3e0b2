package textchunk

import "strings"

// Normalize collapses every run of whitespace into a single space and trims
// the result. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
