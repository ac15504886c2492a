package audio

import "time"

// Frame represents a single fixed-duration frame of captured audio flowing
// through the pipeline. Frames are the atomic unit of audio transport —
// produced by a [Source], classified by VAD, and accumulated into utterances.
//
// A Frame is immutable once produced; the pipeline never modifies Data in
// place.
type Frame struct {
	// Data is raw little-endian 16-bit signed PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono capture).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo. The capture pipeline is mono.
	Channels int

	// Seq is the monotonic sequence number assigned by the source. Sequence
	// numbers strictly increase across the lifetime of a stream; a gap means
	// frames were dropped at the device boundary.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame derived from its PCM length.
// Returns 0 for a frame with no data or an unset sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Utterance is one contiguous speech segment bounded by silence: the frames
// from the first frame of a confirmed speech run through the seal point
// (speech plus hangover), in capture order.
//
// At most one utterance is open at any time. After sealing, an Utterance is
// read-only; the transcription stage must never mutate it.
type Utterance struct {
	// Frames holds the audio in strictly increasing Seq order.
	Frames []Frame

	// Start and End are the capture timestamps of the first and last frame.
	Start time.Duration
	End   time.Duration
}

// NumFrames returns the number of frames in the utterance.
func (u Utterance) NumFrames() int { return len(u.Frames) }

// Duration returns the total span of audio the utterance covers: End-Start
// plus the duration of the final frame.
func (u Utterance) Duration() time.Duration {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.End - u.Start + u.Frames[len(u.Frames)-1].Duration()
}

// SampleRate returns the sample rate of the utterance audio, taken from the
// first frame. Returns 0 for an empty utterance.
func (u Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// PCM flattens the utterance into a single contiguous PCM16 byte slice.
// The result is a copy; the utterance frames remain untouched.
func (u Utterance) PCM() []byte {
	var n int
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}
