// Package listener turns the raw frame stream from a capture source into
// discrete utterances using per-frame VAD decisions.
//
// The segmentation rules:
//
//   - A speech run opens a tentative utterance on its first frame. The run
//     must survive a debounce of K consecutive speech frames before the
//     utterance is confirmed; shorter runs are discarded as noise blips.
//   - Once confirmed, silence does not end the utterance until H consecutive
//     silence frames (the hangover) have elapsed, so natural mid-sentence
//     pauses stay inside one utterance. Hangover frames are part of the
//     sealed audio.
//   - A sealed utterance whose speech content is below the minimum duration
//     is discarded rather than sent to transcription.
//   - An utterance reaching the maximum duration is force-sealed immediately,
//     mid-speech if necessary.
package listener

import (
	"time"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
)

// EventType classifies segmenter events.
type EventType int

const (
	// EventSpeechConfirmed fires once per utterance when the debounce
	// threshold is met. This is the barge-in trigger: the assistant reacts to
	// it even while speaking.
	EventSpeechConfirmed EventType = iota

	// EventSealed carries a complete utterance ready for transcription.
	EventSealed

	// EventDiscarded reports that a tentative or too-short utterance was
	// dropped. Informational only.
	EventDiscarded
)

// String returns the event type name for logs.
func (t EventType) String() string {
	switch t {
	case EventSpeechConfirmed:
		return "speech_confirmed"
	case EventSealed:
		return "sealed"
	case EventDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// DiscardReason explains an EventDiscarded.
type DiscardReason int

const (
	// DiscardNone is the zero value for non-discard events.
	DiscardNone DiscardReason = iota

	// DiscardFalseStart means the speech run ended before the debounce
	// threshold was reached.
	DiscardFalseStart

	// DiscardTooShort means the utterance sealed with less speech than the
	// configured minimum.
	DiscardTooShort
)

// String returns the reason name for logs.
func (r DiscardReason) String() string {
	switch r {
	case DiscardFalseStart:
		return "false_start"
	case DiscardTooShort:
		return "too_short"
	default:
		return "none"
	}
}

// Event is one segmenter output.
type Event struct {
	Type EventType

	// Utterance is set for EventSealed.
	Utterance audio.Utterance

	// Forced is true when a sealed utterance hit the maximum duration cap.
	Forced bool

	// Reason is set for EventDiscarded.
	Reason DiscardReason
}

// SegmenterConfig holds the utterance segmentation parameters.
type SegmenterConfig struct {
	// DebounceFrames is the number of consecutive speech frames required to
	// confirm an utterance start.
	DebounceFrames int

	// HangoverFrames is the number of consecutive silence frames after
	// confirmed speech that seals the utterance.
	HangoverFrames int

	// MinUtterance is the minimum total duration of speech-classified frames
	// an utterance must contain to be emitted.
	MinUtterance time.Duration

	// MaxUtterance caps the total utterance duration; reaching it forces an
	// immediate seal.
	MaxUtterance time.Duration
}

// segState is the segmenter's position in the utterance lifecycle.
type segState int

const (
	segIdle    segState = iota // waiting for speech
	segPending                 // tentative run, debounce not yet met
	segActive                  // confirmed utterance accumulating
)

// Segmenter is the utterance segmentation state machine. It is driven one
// frame at a time by the capture loop and is deliberately free of channels
// and goroutines so its behaviour is directly testable.
//
// Not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig
	buf Buffer

	state      segState
	speechRun  int           // consecutive speech frames (debounce)
	silenceRun int           // consecutive silence frames (hangover)
	speechDur  time.Duration // accumulated speech-frame audio
	totalDur   time.Duration // accumulated utterance audio
}

// NewSegmenter creates a segmenter with the given parameters.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Process advances the state machine by one classified frame and returns any
// events it produced, in order.
func (s *Segmenter) Process(frame audio.Frame, d vad.Decision) []Event {
	switch s.state {
	case segIdle:
		if !d.Speech {
			return nil
		}
		s.buf.Open(frame)
		s.state = segPending
		s.speechRun = 1
		s.silenceRun = 0
		s.speechDur = frame.Duration()
		s.totalDur = frame.Duration()
		return s.maybeConfirm()

	case segPending:
		if !d.Speech {
			// Run died before the debounce threshold: noise blip.
			s.buf.Discard()
			s.state = segIdle
			return []Event{{Type: EventDiscarded, Reason: DiscardFalseStart}}
		}
		s.buf.Append(frame)
		s.speechRun++
		s.speechDur += frame.Duration()
		s.totalDur += frame.Duration()
		return s.maybeConfirm()

	case segActive:
		s.buf.Append(frame)
		s.totalDur += frame.Duration()
		if d.Speech {
			s.speechRun++
			s.silenceRun = 0
			s.speechDur += frame.Duration()
		} else {
			s.silenceRun++
			s.speechRun = 0
			if s.silenceRun >= s.cfg.HangoverFrames {
				return s.seal(false)
			}
		}
		if s.cfg.MaxUtterance > 0 && s.totalDur >= s.cfg.MaxUtterance {
			return s.seal(true)
		}
		return nil
	}
	return nil
}

// maybeConfirm promotes a pending run to an active utterance once the
// debounce threshold is met.
func (s *Segmenter) maybeConfirm() []Event {
	if s.speechRun < s.cfg.DebounceFrames {
		return nil
	}
	s.state = segActive
	events := []Event{{Type: EventSpeechConfirmed}}
	// A tiny MaxUtterance can trigger before the debounce completes.
	if s.cfg.MaxUtterance > 0 && s.totalDur >= s.cfg.MaxUtterance {
		events = append(events, s.seal(true)...)
	}
	return events
}

// seal closes the current utterance, applying the minimum-duration filter,
// and resets the state machine to idle.
func (s *Segmenter) seal(forced bool) []Event {
	utt := s.buf.Seal()
	s.state = segIdle
	speech := s.speechDur
	s.speechRun = 0
	s.silenceRun = 0
	s.speechDur = 0
	s.totalDur = 0

	if speech < s.cfg.MinUtterance {
		return []Event{{Type: EventDiscarded, Reason: DiscardTooShort}}
	}
	return []Event{{Type: EventSealed, Utterance: utt, Forced: forced}}
}

// Reset abandons any in-progress utterance and returns to idle. Used when
// the stream is interrupted.
func (s *Segmenter) Reset() {
	s.buf.Discard()
	s.state = segIdle
	s.speechRun = 0
	s.silenceRun = 0
	s.speechDur = 0
	s.totalDur = 0
}

// Capturing reports whether an utterance (tentative or confirmed) is
// currently accumulating.
func (s *Segmenter) Capturing() bool { return s.state != segIdle }
