// Package stt defines the Engine interface for Speech-to-Text backends.
//
// An STT engine wraps a batch transcription backend (a local whisper.cpp
// model, or any service that can turn a complete utterance into text) behind
// a single blocking call. The pipeline hands the engine one sealed utterance
// at a time and waits for the transcript; there is no streaming or partial
// output at this layer.
//
// Implementations must be safe for concurrent use, although the assistant
// core serialises calls so that transcripts come back in capture order.
package stt

import (
	"context"

	"github.com/kpfromer/voice-assistant/pkg/audio"
)

// Engine is the abstraction over any batch STT backend.
type Engine interface {
	// Transcribe converts a complete utterance to text. It blocks until the
	// backend finishes or ctx is done; callers bound each call with a
	// deadline. The utterance is read-only and must not be mutated.
	//
	// A successful call with no recognisable speech returns an empty
	// Transcript and a nil error.
	Transcribe(ctx context.Context, utt audio.Utterance) (Transcript, error)
}
