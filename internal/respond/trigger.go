package respond

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// TriggerMatcher locates the assistant's trigger phrase inside a cleaned
// transcript. Matching is phonetically tolerant: Double Metaphone codes catch
// mishearings that sound alike ("alexa" vs "alexer"), with Jaro-Winkler
// similarity as the ranking gate, so STT spelling wobble does not make the
// assistant deaf to its own name.
//
// A TriggerMatcher is read-only after construction and safe for concurrent
// use.
type TriggerMatcher struct {
	tokens            []string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// TriggerOption is a functional option for configuring a TriggerMatcher.
type TriggerOption func(*TriggerMatcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched token to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) TriggerOption {
	return func(m *TriggerMatcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// tokens do not share a phonetic code. Default: 0.85.
func WithFuzzyThreshold(threshold float64) TriggerOption {
	return func(m *TriggerMatcher) { m.fuzzyThreshold = threshold }
}

// NewTriggerMatcher creates a matcher for the given trigger phrase. The
// phrase may contain several words ("hey computer"); it is cleaned with the
// same normalisation applied to transcripts.
func NewTriggerMatcher(phrase string, opts ...TriggerOption) *TriggerMatcher {
	m := &TriggerMatcher{
		tokens:            strings.Fields(Clean(phrase)),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match scans the cleaned transcript for the trigger phrase. On a match it
// returns the command text (everything after the trigger) and true; the
// transcript up to and including the trigger is stripped. Without a match it
// returns "", false.
//
// The earliest occurrence wins, so "alexa turn alexa off" yields
// "turn alexa off".
func (m *TriggerMatcher) Match(cleaned string) (command string, matched bool) {
	if len(m.tokens) == 0 {
		return "", false
	}
	words := strings.Fields(cleaned)
	for i := 0; i+len(m.tokens) <= len(words); i++ {
		if m.phraseAt(words, i) {
			return strings.Join(words[i+len(m.tokens):], " "), true
		}
	}
	return "", false
}

// phraseAt reports whether every trigger token matches the corresponding
// transcript word starting at index i.
func (m *TriggerMatcher) phraseAt(words []string, i int) bool {
	for j, trig := range m.tokens {
		if !m.tokenMatches(words[i+j], trig) {
			return false
		}
	}
	return true
}

// tokenMatches compares one transcript word against one trigger token:
// exact match, phonetic-code overlap gated by the phonetic threshold, or
// pure string similarity above the stricter fuzzy threshold.
func (m *TriggerMatcher) tokenMatches(word, trig string) bool {
	if word == trig {
		return true
	}
	jw := matchr.JaroWinkler(word, trig, false)
	if codesOverlap(word, trig) {
		return jw >= m.phoneticThreshold
	}
	return jw >= m.fuzzyThreshold
}

// codesOverlap reports whether the two words share a Double Metaphone code.
func codesOverlap(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || (bs != "" && x == bs) {
			return true
		}
	}
	return false
}
