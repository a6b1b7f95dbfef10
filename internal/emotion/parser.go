// Package emotion implements the emotion tag parser (C5): extracting the
// last recognized [mood:WORD] tag from LLM output and stripping all tags.
package emotion

import (
	"regexp"
	"strings"
)

// Mood is one of the recognized LLM-emitted moods.
type Mood string

const (
	Happy     Mood = "happy"
	Sad       Mood = "sad"
	Thinking  Mood = "thinking"
	Angry     Mood = "angry"
	Sleepy    Mood = "sleepy"
	Surprised Mood = "surprised"
	Tsundere  Mood = "tsundere"
	Neutral   Mood = "neutral"
)

var validMoods = map[string]Mood{
	"happy":     Happy,
	"sad":       Sad,
	"thinking":  Thinking,
	"angry":     Angry,
	"sleepy":    Sleepy,
	"surprised": Surprised,
	"tsundere":  Tsundere,
	"neutral":   Neutral,
}

// moodPattern matches [mood:WORD] with no space after the colon; a
// space (e.g. "[mood: happy]") is deliberately not matched.
var moodPattern = regexp.MustCompile(`\[mood:(\S+?)\]`)

// Extract returns the mood of the last matching tag (Neutral if none
// matched or the word isn't recognized) and the text with every
// matching tag removed and surrounding whitespace trimmed.
func Extract(text string) (Mood, string) {
	matches := moodPattern.FindAllStringSubmatch(text, -1)
	cleaned := strings.TrimSpace(moodPattern.ReplaceAllString(text, ""))

	if len(matches) == 0 {
		return Neutral, cleaned
	}

	last := matches[len(matches)-1][1]
	if mood, ok := validMoods[last]; ok {
		return mood, cleaned
	}
	return Neutral, cleaned
}
