package textchunk

import "strings"

const (
	// DefaultLongLimit fits one Telegram message with room for a part header.
	DefaultLongLimit = 4000
	// DefaultThreadLimit fits one social post with room for the thread marker.
	DefaultThreadLimit = 270
)

// Chunk is one bounded fragment of a longer text.
type Chunk struct {
	Index int
	Text  string
	// Cut is set when the chunk ends in the middle of a word that was longer
	// than the limit. The next chunk continues that word without a separator.
	Cut bool
}

// Split breaks text into fragments of at most maxLength runes, preferring
// sentence boundaries, then word boundaries, then hard cuts. The input is
// normalized first. Empty input yields no fragments.
func Split(text string, maxLength int) []string {
	return SplitUnits(text, maxLength, Runes)
}

// SplitUnits is Split with maxLength measured in unit.
func SplitUnits(text string, maxLength int, unit Unit) []string {
	chunks := splitChunks(text, maxLength, unit)
	out := make([]string, len(chunks))
	for i, chunk := range chunks {
		out[i] = chunk.Text
	}
	return out
}

// SplitChunks is Split with chunk metadata.
func SplitChunks(text string, maxLength int) []Chunk {
	return splitChunks(text, maxLength, Runes)
}

func splitChunks(text string, maxLength int, unit Unit) []Chunk {
	if maxLength < 1 {
		maxLength = 1
	}
	text = Normalize(text)
	if text == "" {
		return nil
	}
	if unit.Len(text) <= maxLength {
		return []Chunk{{Index: 0, Text: text}}
	}

	s := &splitter{maxLength: maxLength, unit: unit}
	for _, sentence := range splitSentences(text) {
		n := unit.Len(sentence)
		if s.fits(n) {
			s.add(sentence, n)
			continue
		}
		s.flush()
		if n <= s.maxLength {
			s.add(sentence, n)
			continue
		}
		s.splitWords(sentence)
	}
	s.flush()
	return s.chunks
}

// JoinChunks reverses SplitChunks: chunks are joined with single spaces
// except after a hard cut.
func JoinChunks(chunks []Chunk) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 && !chunks[i-1].Cut {
			sb.WriteByte(' ')
		}
		sb.WriteString(chunk.Text)
	}
	return sb.String()
}

type splitter struct {
	maxLength int
	unit      Unit
	chunks    []Chunk

	buf    strings.Builder
	bufLen int
}

// fits reports whether a piece of n units can join the buffer, counting the
// separating space.
func (s *splitter) fits(n int) bool {
	if s.bufLen == 0 {
		return n <= s.maxLength
	}
	return s.bufLen+1+n <= s.maxLength
}

func (s *splitter) add(piece string, n int) {
	if s.bufLen > 0 {
		s.buf.WriteByte(' ')
		s.bufLen++
	}
	s.buf.WriteString(piece)
	s.bufLen += n
}

func (s *splitter) flush() {
	if s.bufLen == 0 {
		return
	}
	s.emit(s.buf.String(), false)
	s.buf.Reset()
	s.bufLen = 0
}

func (s *splitter) emit(text string, cut bool) {
	s.chunks = append(s.chunks, Chunk{Index: len(s.chunks), Text: text, Cut: cut})
}

func (s *splitter) splitWords(sentence string) {
	for _, word := range strings.Split(sentence, " ") {
		n := s.unit.Len(word)
		if s.fits(n) {
			s.add(word, n)
			continue
		}
		s.flush()
		if n <= s.maxLength {
			s.add(word, n)
			continue
		}
		s.cutWord(word)
	}
}

// cutWord emits full-length slices of an oversized word and carries the
// remainder into the (empty) buffer. A single rune wider than the limit is
// emitted on its own.
func (s *splitter) cutWord(word string) {
	runes := []rune(word)
	for s.unit.Len(string(runes)) > s.maxLength {
		n, width := 0, 0
		for n < len(runes) && width+s.unit.runeLen(runes[n]) <= s.maxLength {
			width += s.unit.runeLen(runes[n])
			n++
		}
		if n == 0 {
			n = 1
		}
		s.emit(string(runes[:n]), true)
		runes = runes[n:]
	}
	if len(runes) > 0 {
		rest := string(runes)
		s.add(rest, s.unit.Len(rest))
	}
}

// splitSentences splits normalized text after '.', '!' or '?' when followed
// by a space. The punctuation stays with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] != ' ' {
			continue
		}
		switch text[i-1] {
		case '.', '!', '?':
			sentences = append(sentences, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
