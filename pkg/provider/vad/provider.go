// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (an energy threshold, the
// Silero ONNX model, or a custom classifier) and surfaces it as a stateful,
// per-stream session. Each session maintains its own internal state (rolling
// windows, model recurrence) so that independent audio streams can be
// processed without interference.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// per-frame decision, making it suitable for the hot capture path that gates
// utterance segmentation.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

import "fmt"

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000.
	SampleRate int

	// FrameMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if a supplied frame does not match.
	FrameMs int

	// SpeechThreshold is the probability (or normalised energy) above which a
	// frame is classified as speech. Range: [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64
}

// Validate reports whether c is a usable session configuration.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("vad: sample rate %d is invalid", c.SampleRate)
	}
	if c.FrameMs <= 0 {
		return fmt.Errorf("vad: frame duration %dms is invalid", c.FrameMs)
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		return fmt.Errorf("vad: speech threshold %.2f is out of range [0, 1]", c.SpeechThreshold)
	}
	return nil
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply scripted implementations
// without a live detector.
type SessionHandle interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian PCM16 mono at the configured SampleRate and FrameMs.
	// Returns an error if the frame size is wrong or the detector fails.
	//
	// This method is called synchronously in the capture loop; it must not
	// block.
	ProcessFrame(frame []byte) (Decision, error)

	// Reset clears all accumulated detection state without closing the
	// session. Use when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions, implemented by each backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a VAD session with the given configuration. The
	// session is immediately ready to accept frames.
	NewSession(cfg Config) (SessionHandle, error)
}
