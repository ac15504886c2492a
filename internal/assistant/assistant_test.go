package assistant_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kpfromer/voice-assistant/internal/assistant"
	"github.com/kpfromer/voice-assistant/internal/listener"
	"github.com/kpfromer/voice-assistant/internal/observe"
	"github.com/kpfromer/voice-assistant/internal/respond"
	"github.com/kpfromer/voice-assistant/pkg/audio"
	audiomock "github.com/kpfromer/voice-assistant/pkg/audio/mock"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
	sttmock "github.com/kpfromer/voice-assistant/pkg/provider/stt/mock"
	ttsmock "github.com/kpfromer/voice-assistant/pkg/provider/tts/mock"
)

const waitTimeout = 2 * time.Second

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// utteranceOf builds an utterance of n 20 ms frames so tests can tell
// queued utterances apart by frame count.
func utteranceOf(n int) audio.Utterance {
	frames := make([]audio.Frame, n)
	for i := range frames {
		frames[i] = audio.Frame{
			Data:       make([]byte, 640),
			SampleRate: 16000,
			Channels:   1,
			Seq:        uint64(i),
			Timestamp:  time.Duration(i) * 20 * time.Millisecond,
		}
	}
	u := audio.Utterance{Frames: frames}
	if n > 0 {
		u.End = frames[n-1].Timestamp
	}
	return u
}

type fixture struct {
	events chan listener.Event
	stt    *sttmock.Engine
	tts    *ttsmock.Engine
	sink   *audiomock.Sink
	a      *assistant.Assistant
	done   chan struct{}
}

func newFixture(t *testing.T, sink *audiomock.Sink, sttEngine *sttmock.Engine, opts ...assistant.Option) *fixture {
	t.Helper()
	f := &fixture{
		events: make(chan listener.Event, 16),
		stt:    sttEngine,
		tts:    &ttsmock.Engine{Chunks: [][]byte{{1, 2}, {3, 4}}},
		sink:   sink,
		done:   make(chan struct{}),
	}
	opts = append([]assistant.Option{
		assistant.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	f.a = assistant.New(
		f.events,
		f.stt,
		f.tts,
		f.sink,
		respond.NewTriggerMatcher("computer"),
		respond.Echo{},
		opts...,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(f.done)
		_ = f.a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(waitTimeout):
			t.Error("Run did not stop after cancel")
		}
	})
	return f
}

func (f *fixture) seal(u audio.Utterance) {
	f.events <- listener.Event{Type: listener.EventSealed, Utterance: u}
}

func (f *fixture) confirm() {
	f.events <- listener.Event{Type: listener.EventSpeechConfirmed}
}

func TestFullCycleSpeaksReply(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "Computer hello"},
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "playback", func() bool { return len(f.sink.Handles()) == 1 })
	h := f.sink.Handles()[0]
	select {
	case <-h.Done():
	case <-time.After(waitTimeout):
		t.Fatal("playback never finished")
	}

	if got := len(h.Chunks()); got != 2 {
		t.Errorf("played %d chunks, want 2", got)
	}
	calls := f.tts.Calls()
	if len(calls) != 1 || calls[0].Text != "You said: hello." {
		t.Errorf("tts calls = %+v, want one call with the echo reply", calls)
	}
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})
}

func TestBargeInCancelsPlaybackAndCaptures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{Hold: true}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "computer tell me something"},
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "playback to start", func() bool { return len(f.sink.Handles()) == 1 })
	waitFor(t, "responding state", func() bool {
		return f.a.State() == assistant.StateResponding
	})

	f.confirm()

	h := f.sink.Handles()[0]
	select {
	case <-h.Done():
	case <-time.After(waitTimeout):
		t.Fatal("playback was not cancelled after barge-in")
	}
	if !h.Cancelled() {
		t.Error("handle was not cancelled")
	}
	if !errors.Is(h.Err(), context.Canceled) {
		t.Errorf("handle err = %v, want context.Canceled", h.Err())
	}
	waitFor(t, "capturing state", func() bool {
		return f.a.State() == assistant.StateCapturing
	})
}

func TestTranscriptWithoutTriggerStaysQuiet(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "just people talking nearby"},
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "transcription", func() bool { return len(f.stt.Calls()) == 1 })
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})
	if got := len(f.tts.Calls()); got != 0 {
		t.Errorf("tts was called %d times, want 0", got)
	}
	if got := len(f.sink.Calls()); got != 0 {
		t.Errorf("sink was called %d times, want 0", got)
	}
}

func TestNewerUtteranceDisplacesPending(t *testing.T) {
	t.Parallel()

	// No trigger phrase in the transcript so processing is STT only, and the
	// delay keeps the worker busy while more utterances seal.
	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "no trigger here"},
		Delay:      100 * time.Millisecond,
	})

	f.seal(utteranceOf(1))
	waitFor(t, "first dispatch", func() bool { return len(f.stt.Calls()) == 1 })
	f.seal(utteranceOf(2))
	f.seal(utteranceOf(3))

	waitFor(t, "second dispatch", func() bool { return len(f.stt.Calls()) == 2 })
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})

	calls := f.stt.Calls()
	if len(calls) != 2 {
		t.Fatalf("transcribed %d utterances, want 2", len(calls))
	}
	if got := calls[0].Utterance.NumFrames(); got != 1 {
		t.Errorf("first transcribed utterance has %d frames, want 1", got)
	}
	if got := calls[1].Utterance.NumFrames(); got != 3 {
		t.Errorf("second transcribed utterance has %d frames, want 3 (middle one displaced)", got)
	}
}

func TestProcessingFollowsCaptureOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "no trigger here"},
		Delay:      50 * time.Millisecond,
	})

	f.seal(utteranceOf(1))
	waitFor(t, "first dispatch", func() bool { return len(f.stt.Calls()) == 1 })
	f.seal(utteranceOf(2))
	waitFor(t, "second dispatch", func() bool { return len(f.stt.Calls()) == 2 })

	calls := f.stt.Calls()
	if calls[0].Utterance.NumFrames() != 1 || calls[1].Utterance.NumFrames() != 2 {
		t.Errorf("utterances processed out of capture order: %d then %d frames",
			calls[0].Utterance.NumFrames(), calls[1].Utterance.NumFrames())
	}
}

func TestEngineErrorReturnsToListening(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{
		TranscribeErr: errors.New("model crashed"),
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})
	if got := len(f.tts.Calls()); got != 0 {
		t.Errorf("tts was called %d times after an stt failure, want 0", got)
	}

	// The assistant keeps accepting work after an engine failure.
	f.confirm()
	f.seal(utteranceOf(10))
	waitFor(t, "second transcription attempt", func() bool {
		return len(f.stt.Calls()) == 2
	})
}

func TestEmptyTranscriptIsSilentlyDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "transcription", func() bool { return len(f.stt.Calls()) == 1 })
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})
	if got := len(f.tts.Calls()); got != 0 {
		t.Errorf("tts was called %d times for an empty transcript, want 0", got)
	}
}

func TestStateFollowsTheCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{Hold: true}, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "computer status"},
		Delay:      50 * time.Millisecond,
	})

	if got := f.a.State(); got != assistant.StateListening {
		t.Fatalf("initial state = %v, want listening", got)
	}

	f.confirm()
	waitFor(t, "capturing", func() bool { return f.a.State() == assistant.StateCapturing })

	f.seal(utteranceOf(10))
	waitFor(t, "transcribing", func() bool { return f.a.State() == assistant.StateTranscribing })

	waitFor(t, "responding", func() bool { return f.a.State() == assistant.StateResponding })

	f.sink.Handles()[0].Cancel()
	waitFor(t, "listening again", func() bool { return f.a.State() == assistant.StateListening })
}

// newMeteredFixture wires a fixture to a ManualReader-backed Metrics so tests
// can inspect recorded instruments.
func newMeteredFixture(t *testing.T, sttEngine *sttmock.Engine) (*fixture, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return newFixture(t, &audiomock.Sink{}, sttEngine, assistant.WithMetrics(m)), reader
}

// histogramCount sums the data-point counts of the named float64 histogram.
func histogramCount(t *testing.T, reader *sdkmetric.ManualReader, name string) uint64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a float64 histogram", name)
			}
			var n uint64
			for _, dp := range hist.DataPoints {
				n += dp.Count
			}
			return n
		}
	}
	return 0
}

func TestDurationMetricsRecordedPerSpokenReply(t *testing.T) {
	t.Parallel()

	f, reader := newMeteredFixture(t, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "Computer hello"},
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "playback", func() bool { return len(f.sink.Handles()) == 1 })
	<-f.sink.Handles()[0].Done()
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})

	if got := histogramCount(t, reader, "assistant.stt.duration"); got != 1 {
		t.Errorf("stt duration samples = %d, want 1", got)
	}
	// One sample each: seal-to-playback-start and synthesis-through-playback.
	if got := histogramCount(t, reader, "assistant.response.duration"); got != 1 {
		t.Errorf("response duration samples = %d, want 1", got)
	}
	if got := histogramCount(t, reader, "assistant.tts.duration"); got != 1 {
		t.Errorf("tts duration samples = %d, want 1", got)
	}
}

func TestDurationMetricsSkippedWithoutPlayback(t *testing.T) {
	t.Parallel()

	f, reader := newMeteredFixture(t, &sttmock.Engine{
		Transcript: stt.Transcript{Text: "no trigger phrase here"},
	})

	f.confirm()
	f.seal(utteranceOf(10))

	waitFor(t, "transcription", func() bool { return len(f.stt.Calls()) == 1 })
	waitFor(t, "return to listening", func() bool {
		return f.a.State() == assistant.StateListening
	})

	if got := histogramCount(t, reader, "assistant.stt.duration"); got != 1 {
		t.Errorf("stt duration samples = %d, want 1", got)
	}
	// No reply was played, so neither playback histogram gains a sample.
	if got := histogramCount(t, reader, "assistant.response.duration"); got != 0 {
		t.Errorf("response duration samples = %d, want 0", got)
	}
	if got := histogramCount(t, reader, "assistant.tts.duration"); got != 0 {
		t.Errorf("tts duration samples = %d, want 0", got)
	}
}

func TestRunStopsWhenEventStreamCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{})
	close(f.events)
	select {
	case <-f.done:
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after the event stream closed")
	}
}

func TestDiscardedEventKeepsListening(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &audiomock.Sink{}, &sttmock.Engine{})
	f.events <- listener.Event{Type: listener.EventDiscarded, Reason: listener.DiscardFalseStart}
	f.events <- listener.Event{Type: listener.EventDiscarded, Reason: listener.DiscardTooShort}

	time.Sleep(50 * time.Millisecond)
	if got := f.a.State(); got != assistant.StateListening {
		t.Errorf("state = %v, want listening", got)
	}
	if got := len(f.stt.Calls()); got != 0 {
		t.Errorf("stt was called %d times, want 0", got)
	}
}
