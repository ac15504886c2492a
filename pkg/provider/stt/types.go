package stt

import "time"

// Transcript represents the speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content. Empty when the backend found no
	// recognisable speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// backend does not report confidence.
	Confidence float64

	// AudioDuration is the length of the transcribed audio.
	AudioDuration time.Duration
}
