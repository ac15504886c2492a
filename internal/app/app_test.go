package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/kpfromer/voice-assistant/internal/app"
	"github.com/kpfromer/voice-assistant/internal/assistant"
	"github.com/kpfromer/voice-assistant/internal/config"
	"github.com/kpfromer/voice-assistant/internal/respond"
	"github.com/kpfromer/voice-assistant/pkg/audio"
	audiomock "github.com/kpfromer/voice-assistant/pkg/audio/mock"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
	sttmock "github.com/kpfromer/voice-assistant/pkg/provider/stt/mock"
	ttsmock "github.com/kpfromer/voice-assistant/pkg/provider/tts/mock"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
	vadmock "github.com/kpfromer/voice-assistant/pkg/provider/vad/mock"
)

const waitTimeout = 2 * time.Second

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

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.STT.ModelPath = "/models/ggml-base.en.bin"
	cfg.TTS.URL = "http://localhost:5002"
	cfg.Server.ListenAddr = "" // no diagnostics server in tests
	cfg.VAD.MinUtteranceMs = 0
	return cfg
}

// captureFrames builds n sequential 20 ms frames.
func captureFrames(n int) []audio.Frame {
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
	return frames
}

// vadScript returns a decision script: speech speech frames then silence.
func vadScript(speech, silence int) []vad.Decision {
	script := make([]vad.Decision, 0, speech+silence)
	for range speech {
		script = append(script, vad.Decision{Speech: true, Probability: 0.9})
	}
	for range silence {
		script = append(script, vad.Decision{Speech: false, Probability: 0.1})
	}
	return script
}

// TestEndToEnd drives scripted microphone audio through the whole pipeline:
// segmentation, transcription, trigger match, reply synthesis, playback.
func TestEndToEnd(t *testing.T) {
	t.Parallel()

	// 40 speech frames then enough silence to seal.
	source := audiomock.NewSource(captureFrames(80)...)
	sess := &vadmock.Session{Script: vadScript(40, 40)}
	sink := &audiomock.Sink{}
	sttEngine := &sttmock.Engine{Transcript: stt.Transcript{Text: "computer what time is it"}}
	ttsEngine := &ttsmock.Engine{Chunks: [][]byte{{1, 2, 3, 4}}, SampleRate: 22050}

	a, err := app.New(testConfig(),
		app.WithSource(source),
		app.WithSink(sink),
		app.WithVADEngine(&vadmock.Engine{Session: sess}),
		app.WithSTTEngine(sttEngine),
		app.WithTTSEngine(ttsEngine),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	waitFor(t, "transcription", func() bool { return len(sttEngine.Calls()) == 1 })
	waitFor(t, "playback", func() bool { return len(sink.Handles()) == 1 })

	h := sink.Handles()[0]
	select {
	case <-h.Done():
	case <-time.After(waitTimeout):
		t.Fatal("playback never finished")
	}
	if got := len(h.Chunks()); got != 1 {
		t.Errorf("played %d chunks, want 1", got)
	}

	ttsCalls := ttsEngine.Calls()
	if len(ttsCalls) != 1 || ttsCalls[0].Text != "You said: what time is it." {
		t.Errorf("tts calls = %+v", ttsCalls)
	}

	utt := sttEngine.Calls()[0].Utterance
	if utt.NumFrames() < 40 {
		t.Errorf("transcribed utterance has %d frames, want at least the 40 speech frames", utt.NumFrames())
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Run did not stop after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if sess.CloseCallCount == 0 {
		t.Error("vad session was not closed during shutdown")
	}
}

func TestCustomResponderIsUsed(t *testing.T) {
	t.Parallel()

	source := audiomock.NewSource(captureFrames(80)...)
	sink := &audiomock.Sink{}
	sttEngine := &sttmock.Engine{Transcript: stt.Transcript{Text: "computer lights on"}}
	ttsEngine := &ttsmock.Engine{Chunks: [][]byte{{1, 2}}}

	a, err := app.New(testConfig(),
		app.WithSource(source),
		app.WithSink(sink),
		app.WithVADEngine(&vadmock.Engine{Session: &vadmock.Session{Script: vadScript(40, 40)}}),
		app.WithSTTEngine(sttEngine),
		app.WithTTSEngine(ttsEngine),
		app.WithResponder(respond.ResponderFunc(func(_ context.Context, command string) (string, error) {
			return "Turning on the lights.", nil
		})),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	waitFor(t, "synthesis of the custom reply", func() bool {
		calls := ttsEngine.Calls()
		return len(calls) == 1 && calls[0].Text == "Turning on the lights."
	})
}

func TestNewFailsOnUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VAD.Backend = "webrtc"

	_, err := app.New(cfg,
		app.WithSource(audiomock.NewSource()),
		app.WithSink(&audiomock.Sink{}),
		app.WithSTTEngine(&sttmock.Engine{}),
		app.WithTTSEngine(&ttsmock.Engine{}),
	)
	if err == nil {
		t.Fatal("New accepted an unknown vad backend")
	}
}

func TestStateIsExposed(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(),
		app.WithSource(audiomock.NewSource()),
		app.WithSink(&audiomock.Sink{}),
		app.WithVADEngine(&vadmock.Engine{}),
		app.WithSTTEngine(&sttmock.Engine{}),
		app.WithTTSEngine(&ttsmock.Engine{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	if got := a.State(); got != assistant.StateListening {
		t.Errorf("initial state = %v, want listening", got)
	}
}
