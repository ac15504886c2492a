// Package tts defines the Engine interface for Text-to-Speech backends.
//
// A TTS engine wraps a speech synthesis service (a local Coqui server, or any
// backend that can turn text into PCM audio) and presents it as a chunked
// [Stream]. Streams begin emitting audio as soon as the first portion of the
// text is synthesised, so playback can start before synthesis of a long
// response finishes.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Engine is the abstraction over any TTS backend.
type Engine interface {
	// Synthesize starts synthesis of text and returns a Stream of PCM chunks.
	// The stream is closed by the implementation when all text has been
	// synthesised, a synthesis error occurs, or ctx is cancelled; cancelling
	// ctx is how the caller abandons an in-flight synthesis. The caller must
	// drain Chunks to avoid blocking the engine's internal goroutines.
	//
	// Returns a non-nil error only if synthesis cannot be started at all.
	Synthesize(ctx context.Context, text string) (*Stream, error)
}
