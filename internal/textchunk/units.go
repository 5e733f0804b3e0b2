package textchunk

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Unit is how a length limit is measured.
type Unit int

const (
	// Runes counts Unicode code points.
	Runes Unit = iota
	// UTF16 counts UTF-16 code units, the way Telegram bounds message text.
	UTF16
)

// Len returns the length of s in u.
func (u Unit) Len(s string) int {
	if u != UTF16 {
		return utf8.RuneCountInString(s)
	}
	n := 0
	for _, r := range s {
		n += u.runeLen(r)
	}
	return n
}

func (u Unit) runeLen(r rune) int {
	if u == UTF16 && utf16.RuneLen(r) == 2 {
		return 2
	}
	return 1
}
