// Package respond handles what happens after transcription: normalising the
// raw transcript, finding the trigger phrase that addresses the assistant
// (with phonetic tolerance for STT mishearings), and producing the spoken
// reply text.
package respond

import (
	"strings"
	"unicode"
)

// Clean normalises a raw transcript for trigger matching: lowercase, letters
// and digits and spaces only, runs of whitespace collapsed to single spaces.
// STT output often carries punctuation and bracketed annotations like
// "[BLANK_AUDIO]" that would otherwise break token comparison.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
