package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
)

// ErrSourceClosed is returned by Run when the capture source's frame channel
// closes while the listener is still wanted. A closed source cannot recover,
// so the caller should shut the pipeline down.
var ErrSourceClosed = errors.New("listener: capture source closed")

// maxConsecutiveVADErrors bounds how long the listener tolerates a failing
// detector before giving up. Isolated failures are treated as silence frames;
// a solid run of them means the engine is gone.
const maxConsecutiveVADErrors = 25

// eventChanBuf is the depth of the event channel. Events are small and the
// driver consumes them promptly; the buffer only absorbs scheduling jitter.
const eventChanBuf = 16

// maxGapFrames caps how many dropped capture frames get patched with silence.
// A longer stall is a device stutter rather than a glitch; segmentation
// restarts instead of fabricating that much audio.
const maxGapFrames = 10

// Listener runs the capture loop: it drains the source's frame stream,
// classifies each frame with the VAD session, feeds the segmenter, and
// publishes the resulting events.
type Listener struct {
	src    audio.Source
	sess   vad.SessionHandle
	seg    *Segmenter
	events chan Event
	logger *slog.Logger
}

// Option is a functional option for configuring a Listener.
type Option func(*Listener)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ln *Listener) { ln.logger = l }
}

// New creates a listener over the given source and VAD session. The caller
// retains ownership of both and closes them after Run returns.
func New(src audio.Source, sess vad.SessionHandle, cfg SegmenterConfig, opts ...Option) *Listener {
	ln := &Listener{
		src:    src,
		sess:   sess,
		seg:    NewSegmenter(cfg),
		events: make(chan Event, eventChanBuf),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(ln)
	}
	return ln
}

// Events returns the segmentation event stream. Closed when Run returns.
func (l *Listener) Events() <-chan Event { return l.events }

// Run drives the capture loop until ctx is cancelled or the source fails.
// It returns nil on cancellation and ErrSourceClosed (or a VAD failure) when
// the loop cannot continue.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.events)

	var (
		vadErrs int
		nextSeq uint64
		haveSeq bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-l.src.Frames():
			if !ok {
				return ErrSourceClosed
			}

			// Capture devices drop frames under backpressure, leaving gaps in
			// the sequence numbers. Short gaps are patched with silence so
			// utterance timing stays contiguous.
			if haveSeq && frame.Seq > nextSeq {
				gap := frame.Seq - nextSeq
				if gap <= maxGapFrames {
					l.logger.Warn("capture gap, patching with silence",
						"missing", gap, "first_seq", nextSeq)
					for i := range gap {
						if !l.processFrame(ctx, silenceFill(frame, nextSeq+i), vad.Decision{}) {
							return nil
						}
					}
				} else {
					l.logger.Warn("capture gap too large to patch, restarting segmentation",
						"missing", gap)
					l.sess.Reset()
					l.seg.Reset()
				}
			}
			haveSeq = true
			nextSeq = frame.Seq + 1

			decision, err := l.sess.ProcessFrame(frame.Data)
			if err != nil {
				vadErrs++
				l.logger.Warn("vad classification failed, treating frame as silence",
					"error", err, "seq", frame.Seq, "consecutive", vadErrs)
				if vadErrs >= maxConsecutiveVADErrors {
					return fmt.Errorf("listener: vad failed %d frames in a row: %w", vadErrs, err)
				}
				decision = vad.Decision{}
			} else {
				vadErrs = 0
			}

			if !l.processFrame(ctx, frame, decision) {
				return nil
			}
		}
	}
}

// processFrame feeds one classified frame through the segmenter and forwards
// the resulting events. Returns false when ctx ended mid-publish.
func (l *Listener) processFrame(ctx context.Context, frame audio.Frame, decision vad.Decision) bool {
	for _, ev := range l.seg.Process(frame, decision) {
		switch ev.Type {
		case EventSpeechConfirmed:
			l.logger.Debug("speech confirmed", "seq", frame.Seq)
		case EventSealed:
			l.logger.Info("utterance sealed",
				"frames", ev.Utterance.NumFrames(),
				"duration", ev.Utterance.Duration(),
				"forced", ev.Forced)
		case EventDiscarded:
			l.logger.Debug("utterance discarded", "reason", ev.Reason.String())
		}
		select {
		case l.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// silenceFill fabricates a silent stand-in for a dropped capture frame,
// matching the format and cadence of the frame that arrived after the gap.
func silenceFill(after audio.Frame, seq uint64) audio.Frame {
	dur := after.Duration()
	return audio.Frame{
		Data:       audio.SilenceFrame(after.SampleRate, after.Channels, int(dur.Milliseconds())),
		SampleRate: after.SampleRate,
		Channels:   after.Channels,
		Seq:        seq,
		Timestamp:  after.Timestamp - time.Duration(after.Seq-seq)*dur,
	}
}
