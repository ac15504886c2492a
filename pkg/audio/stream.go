// Package audio defines the audio data model and the device-boundary
// interfaces of the voice assistant pipeline.
//
// The two primary abstractions are:
//
//   - [Source] — wraps a capture device and produces a continuous stream of
//     fixed-size PCM [Frame] values.
//   - [Sink] — wraps a playback device and plays a chunked PCM stream,
//     cancelable mid-playback via the returned [Handle].
//
// Implementations are provided by device-specific packages (audio/local for
// real microphone and speaker devices via miniaudio, audio/mock for tests).
// The interfaces are intentionally narrow so the assistant core stays
// decoupled from device details.
package audio

import "context"

// Source produces a continuous, effectively infinite sequence of frames at a
// fixed cadence. A source never restarts mid-process: device-open failures
// are reported once at construction, and transient read glitches are papered
// over with silence frames so sequence continuity is preserved.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Frames returns the capture stream. The channel is closed only when the
	// source is closed. The receiver must keep up with the frame cadence;
	// a source may drop frames at the device boundary (with a Seq gap) rather
	// than block its capture callback.
	Frames() <-chan Frame

	// Close stops capture, releases the device, and closes the Frames channel.
	// Safe to call more than once.
	Close() error
}

// Handle represents one in-flight playback operation returned by [Sink.Play].
//
// All methods are safe for concurrent use.
type Handle interface {
	// Cancel stops audio output within one playback chunk's latency and
	// discards any chunks not yet played. Cancel on an already-completed or
	// already-cancelled handle is a no-op.
	Cancel()

	// Done is closed when playback has finished, whether by completion,
	// cancellation, or error.
	Done() <-chan struct{}

	// Err reports how playback ended: nil for normal completion,
	// [context.Canceled] after Cancel, or the device/stream error otherwise.
	// Only valid after Done is closed.
	Err() error
}

// Sink plays a chunked PCM stream to the output device.
//
// Implementations must be safe for concurrent use, but callers must not start
// a second Play while a previous handle is still live — the output device is
// exclusively owned by one playback at a time.
type Sink interface {
	// Play starts playback of the chunk stream and returns immediately with a
	// [Handle]. Chunks are little-endian PCM16 at the given format. The sink
	// drains chunks until the channel closes, playback is cancelled, or ctx is
	// done. On cancellation the remaining chunks are drained and discarded so
	// the producer never blocks.
	Play(ctx context.Context, sampleRate, channels int, chunks <-chan []byte) (Handle, error)
}
