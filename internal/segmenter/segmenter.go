// Package segmenter implements the sentence segmenter (C6): a stateful
// accumulator that splits an incoming LLM token stream at terminal
// punctuation. Adapted from the teacher's prosody planner
// (internal/voice/prosody.go), replacing its comma/length-driven
// chunking with spec.md's strict terminal-punctuation rule.
package segmenter

import (
	"strings"
	"unicode/utf8"

	"github.com/antoniostano/wallace/internal/emotion"
)

// terminals is the fixed set of terminal characters that close a
// sentence: 。！？；\n.
var terminals = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'；': true,
	'\n': true,
}

// Segmenter accumulates token deltas and emits completed sentences.
type Segmenter struct {
	buffer string
}

// New constructs an empty segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Push appends one token delta and returns zero or more completed
// sentences found within it (a single delta may contain more than one
// terminal character).
func (s *Segmenter) Push(delta string) []string {
	s.buffer += delta

	var out []string
	for {
		idx, width := indexOfTerminal(s.buffer)
		if idx < 0 {
			break
		}
		cut := idx + width
		sentence := strings.TrimSpace(s.buffer[:cut])
		s.buffer = s.buffer[cut:]
		if sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

// Flush is called at stream end. Any remaining non-empty buffer is run
// through the emotion parser to strip mood tags and, if still non-empty
// after that, returned as a final sentence.
func (s *Segmenter) Flush() (string, bool) {
	remaining := s.buffer
	s.buffer = ""

	trimmed := strings.TrimSpace(remaining)
	if trimmed == "" {
		return "", false
	}

	_, cleaned := emotion.Extract(trimmed)
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

// indexOfTerminal returns the byte offset of the first terminal rune in
// s and its UTF-8 width, or (-1, 0) if none is present.
func indexOfTerminal(s string) (int, int) {
	for i, r := range s {
		if terminals[r] {
			return i, utf8.RuneLen(r)
		}
	}
	return -1, 0
}
