package listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kpfromer/voice-assistant/internal/listener"
	"github.com/kpfromer/voice-assistant/pkg/audio"
	audiomock "github.com/kpfromer/voice-assistant/pkg/audio/mock"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
	vadmock "github.com/kpfromer/voice-assistant/pkg/provider/vad/mock"
)

// script builds a per-frame decision script: n entries of the given class.
func script(n int, speech bool) []vad.Decision {
	out := make([]vad.Decision, n)
	for i := range out {
		out[i] = vad.Decision{Speech: speech}
		if speech {
			out[i].Probability = 0.9
		}
	}
	return out
}

func collectEvents(t *testing.T, events <-chan listener.Event, want int) []listener.Event {
	t.Helper()
	var got []listener.Event
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed after %d events, want %d", len(got), want)
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(got), want)
		}
	}
	return got
}

func TestListenerEmitsConfirmAndSeal(t *testing.T) {
	t.Parallel()

	var frames []audio.Frame
	for i := range 50 {
		frames = append(frames, makeFrame(uint64(i)))
	}
	src := audiomock.NewSource(frames...)
	defer src.Close()

	sess := &vadmock.Session{
		Script: append(script(30, true), script(20, false)...),
	}
	ln := listener.New(src, sess, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- ln.Run(ctx) }()

	events := collectEvents(t, ln.Events(), 2)
	if events[0].Type != listener.EventSpeechConfirmed {
		t.Errorf("first event = %v, want speech_confirmed", events[0].Type)
	}
	if events[1].Type != listener.EventSealed {
		t.Fatalf("second event = %v, want sealed", events[1].Type)
	}
	if got := events[1].Utterance.NumFrames(); got != 50 {
		t.Errorf("utterance has %d frames, want 50", got)
	}

	cancel()
	if err := <-runErr; err != nil {
		t.Errorf("Run() = %v, want nil on cancellation", err)
	}
}

func TestListenerReturnsErrSourceClosed(t *testing.T) {
	t.Parallel()

	src := audiomock.NewSource()
	src.Close()
	ln := listener.New(src, &vadmock.Session{}, testConfig())

	if err := ln.Run(context.Background()); !errors.Is(err, listener.ErrSourceClosed) {
		t.Errorf("Run() = %v, want ErrSourceClosed", err)
	}
}

func TestListenerTreatsVADErrorAsSilence(t *testing.T) {
	t.Parallel()

	// 15 speech frames, one failing frame mid-stream, then more speech and a
	// hangover. The failing frame counts as silence but must not split the
	// utterance because it is far below the hangover threshold.
	var frames []audio.Frame
	for i := range 60 {
		frames = append(frames, makeFrame(uint64(i)))
	}
	src := audiomock.NewSource(frames...)
	defer src.Close()

	decisions := append(script(15, true), vad.Decision{})
	decisions = append(decisions, script(15, true)...)
	decisions = append(decisions, script(20, false)...)

	sess := &flakySession{script: decisions, failAt: 15}
	ln := listener.New(src, sess, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Run(ctx)

	events := collectEvents(t, ln.Events(), 2)
	if events[1].Type != listener.EventSealed {
		t.Fatalf("second event = %v, want sealed", events[1].Type)
	}
	if got := events[1].Utterance.NumFrames(); got != 51 {
		t.Errorf("utterance has %d frames, want 51 (15+1+15 + 20 hangover)", got)
	}
}

func TestListenerPatchesShortCaptureGapWithSilence(t *testing.T) {
	t.Parallel()

	// The device drops frames 15 and 16 mid-utterance. The listener must
	// patch the gap with silence so the sealed utterance stays contiguous.
	var frames []audio.Frame
	for i := range 15 {
		frames = append(frames, makeFrame(uint64(i)))
	}
	for i := 17; i < 50; i++ {
		frames = append(frames, makeFrame(uint64(i)))
	}
	src := audiomock.NewSource(frames...)
	defer src.Close()

	sess := &vadmock.Session{
		Script: append(script(28, true), script(20, false)...),
	}
	ln := listener.New(src, sess, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Run(ctx)

	events := collectEvents(t, ln.Events(), 2)
	if events[1].Type != listener.EventSealed {
		t.Fatalf("second event = %v, want sealed", events[1].Type)
	}
	utt := events[1].Utterance
	if got := utt.NumFrames(); got != 50 {
		t.Fatalf("utterance has %d frames, want 50 (gap patched with silence)", got)
	}
	for i, f := range utt.Frames {
		if f.Seq != uint64(i) {
			t.Fatalf("frame %d has seq %d, want contiguous sequence", i, f.Seq)
		}
	}
	for _, seq := range []uint64{15, 16} {
		for _, b := range utt.Frames[seq].Data {
			if b != 0 {
				t.Fatalf("patched frame %d is not silent", seq)
			}
		}
		if got := len(utt.Frames[seq].Data); got != 640 {
			t.Errorf("patched frame %d has %d bytes, want 640", seq, got)
		}
	}
}

func TestListenerRestartsSegmentationOnLargeCaptureGap(t *testing.T) {
	t.Parallel()

	// The stream stalls for 100 frames mid-utterance. That is too long to
	// patch: the in-progress utterance is abandoned and the detector reset,
	// but the next utterance comes through clean.
	var frames []audio.Frame
	for i := range 10 {
		frames = append(frames, makeFrame(uint64(i)))
	}
	for i := 110; i < 160; i++ {
		frames = append(frames, makeFrame(uint64(i)))
	}
	src := audiomock.NewSource(frames...)
	defer src.Close()

	decisions := append(script(40, true), script(20, false)...)
	sess := &vadmock.Session{Script: decisions}
	ln := listener.New(src, sess, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Run(ctx)

	events := collectEvents(t, ln.Events(), 3)
	if events[0].Type != listener.EventSpeechConfirmed ||
		events[1].Type != listener.EventSpeechConfirmed {
		t.Fatalf("events = %v, %v, want two speech-confirmed (one per side of the gap)",
			events[0].Type, events[1].Type)
	}
	if events[2].Type != listener.EventSealed {
		t.Fatalf("third event = %v, want sealed", events[2].Type)
	}
	utt := events[2].Utterance
	if got := utt.NumFrames(); got != 50 {
		t.Errorf("utterance has %d frames, want 50 (pre-gap audio abandoned)", got)
	}
	if got := utt.Frames[0].Seq; got != 110 {
		t.Errorf("utterance starts at seq %d, want 110", got)
	}
	if sess.ResetCallCount == 0 {
		t.Error("detector was not reset after the large gap")
	}
}

func TestListenerGivesUpOnPersistentVADFailure(t *testing.T) {
	t.Parallel()

	var frames []audio.Frame
	for i := range 100 {
		frames = append(frames, makeFrame(uint64(i)))
	}
	src := audiomock.NewSource(frames...)
	defer src.Close()

	sess := &vadmock.Session{ProcessFrameErr: errors.New("model exploded")}
	ln := listener.New(src, sess, testConfig())

	err := ln.Run(context.Background())
	if err == nil || errors.Is(err, listener.ErrSourceClosed) {
		t.Errorf("Run() = %v, want persistent-failure error", err)
	}
}

// flakySession wraps a scripted session but fails exactly one ProcessFrame
// call.
type flakySession struct {
	script []vad.Decision
	failAt int
	calls  int
}

func (s *flakySession) ProcessFrame(frame []byte) (vad.Decision, error) {
	idx := s.calls
	s.calls++
	if idx == s.failAt {
		return vad.Decision{}, errors.New("transient detector failure")
	}
	if idx >= len(s.script) {
		return vad.Decision{}, nil
	}
	return s.script[idx], nil
}

func (s *flakySession) Reset()       {}
func (s *flakySession) Close() error { return nil }
