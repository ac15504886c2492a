// Package app wires all assistant subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithSTTEngine, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kpfromer/voice-assistant/internal/assistant"
	"github.com/kpfromer/voice-assistant/internal/config"
	"github.com/kpfromer/voice-assistant/internal/health"
	"github.com/kpfromer/voice-assistant/internal/listener"
	"github.com/kpfromer/voice-assistant/internal/observe"
	"github.com/kpfromer/voice-assistant/internal/respond"
	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/audio/local"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt/whisper"
	"github.com/kpfromer/voice-assistant/pkg/provider/tts"
	"github.com/kpfromer/voice-assistant/pkg/provider/tts/coqui"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad/energy"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad/silero"
)

// httpShutdownTimeout bounds the graceful drain of the diagnostics server.
const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg *config.Config

	source    audio.Source
	sink      audio.Sink
	vadEngine vad.Engine
	sttEngine stt.Engine
	ttsEngine tts.Engine
	responder respond.Responder
	metrics   *observe.Metrics

	vadSession vad.SessionHandle
	listener   *listener.Listener
	assistant  *assistant.Assistant
	httpSrv    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a capture source instead of opening the microphone.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a playback sink instead of opening the speaker.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithVADEngine injects a VAD engine instead of creating one from config.
func WithVADEngine(e vad.Engine) Option {
	return func(a *App) { a.vadEngine = e }
}

// WithSTTEngine injects an STT engine instead of loading the Whisper model.
func WithSTTEngine(e stt.Engine) Option {
	return func(a *App) { a.sttEngine = e }
}

// WithTTSEngine injects a TTS engine instead of creating a Coqui client.
func WithTTSEngine(e tts.Engine) Option {
	return func(a *App) { a.ttsEngine = e }
}

// WithResponder injects a responder instead of the built-in echo.
func WithResponder(r respond.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: audio devices are opened,
// the VAD session is created, and the Whisper model is loaded, so a
// misconfigured system fails here rather than mid-conversation.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.responder == nil {
		a.responder = respond.Echo{}
	}

	// ── 1. Audio devices ─────────────────────────────────────────────────
	if err := a.initAudio(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 2. VAD session ───────────────────────────────────────────────────
	if err := a.initVAD(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init vad: %w", err)
	}

	// ── 3. STT + TTS engines ─────────────────────────────────────────────
	if err := a.initEngines(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init engines: %w", err)
	}

	// ── 4. Listener + assistant ──────────────────────────────────────────
	a.listener = listener.New(a.source, a.vadSession, listener.SegmenterConfig{
		DebounceFrames: cfg.VAD.DebounceFrames,
		HangoverFrames: cfg.VAD.HangoverFrames,
		MinUtterance:   time.Duration(cfg.VAD.MinUtteranceMs) * time.Millisecond,
		MaxUtterance:   time.Duration(cfg.VAD.MaxUtteranceMs) * time.Millisecond,
	})

	assistantOpts := []assistant.Option{assistant.WithMetrics(a.metrics)}
	if cfg.STT.TimeoutMs > 0 {
		assistantOpts = append(assistantOpts, assistant.WithSTTTimeout(time.Duration(cfg.STT.TimeoutMs)*time.Millisecond))
	}
	if cfg.TTS.TimeoutMs > 0 {
		assistantOpts = append(assistantOpts, assistant.WithTTSTimeout(time.Duration(cfg.TTS.TimeoutMs)*time.Millisecond))
	}
	if cfg.Assistant.RespondTimeoutMs > 0 {
		assistantOpts = append(assistantOpts, assistant.WithRespondTimeout(time.Duration(cfg.Assistant.RespondTimeoutMs)*time.Millisecond))
	}
	a.assistant = assistant.New(
		a.listener.Events(),
		a.sttEngine,
		a.ttsEngine,
		a.sink,
		respond.NewTriggerMatcher(cfg.Assistant.TriggerPhrase),
		a.responder,
		assistantOpts...,
	)

	// ── 5. Diagnostics server ────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAudio opens the microphone and speaker unless test doubles were
// injected.
func (a *App) initAudio() error {
	if a.source == nil {
		mic, err := local.NewMicrophone(
			local.WithMicSampleRate(a.cfg.Audio.SampleRate),
			local.WithMicFrameDuration(a.cfg.Audio.FrameMs),
		)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		a.source = mic
		a.closers = append(a.closers, mic.Close)
	}

	if a.sink == nil {
		spk, err := local.NewSpeaker()
		if err != nil {
			return fmt.Errorf("open speaker: %w", err)
		}
		a.sink = spk
		a.closers = append(a.closers, spk.Close)
	}

	return nil
}

// initVAD builds the configured detector backend and opens its session.
func (a *App) initVAD() error {
	if a.vadEngine == nil {
		switch a.cfg.VAD.Backend {
		case config.VADSilero:
			a.vadEngine = silero.New(a.cfg.VAD.ModelPath)
		case config.VADEnergy, "":
			a.vadEngine = energy.New()
		default:
			return fmt.Errorf("unknown vad backend %q", a.cfg.VAD.Backend)
		}
	}

	sess, err := a.vadEngine.NewSession(vad.Config{
		SampleRate:      a.cfg.Audio.SampleRate,
		FrameMs:         a.cfg.Audio.FrameMs,
		SpeechThreshold: a.cfg.VAD.SpeechThreshold,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	a.vadSession = sess
	a.closers = append(a.closers, sess.Close)
	return nil
}

// initEngines loads the Whisper model and creates the Coqui client unless
// test doubles were injected.
func (a *App) initEngines() error {
	if a.sttEngine == nil {
		opts := []whisper.Option{}
		if a.cfg.STT.Language != "" {
			opts = append(opts, whisper.WithLanguage(a.cfg.STT.Language))
		}
		eng, err := whisper.New(a.cfg.STT.ModelPath, opts...)
		if err != nil {
			return fmt.Errorf("load whisper model: %w", err)
		}
		a.sttEngine = eng
		a.closers = append(a.closers, eng.Close)
	}

	if a.ttsEngine == nil {
		opts := []coqui.Option{}
		if a.cfg.TTS.Language != "" {
			opts = append(opts, coqui.WithLanguage(a.cfg.TTS.Language))
		}
		if a.cfg.TTS.Mode == config.TTSXTTS {
			opts = append(opts, coqui.WithAPIMode(coqui.APIModeXTTS))
		}
		if a.cfg.TTS.Voice != "" {
			opts = append(opts, coqui.WithVoice(a.cfg.TTS.Voice))
		}
		if a.cfg.TTS.OutputSampleRate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(a.cfg.TTS.OutputSampleRate))
		}
		if a.cfg.TTS.TimeoutMs > 0 {
			opts = append(opts, coqui.WithTimeout(time.Duration(a.cfg.TTS.TimeoutMs)*time.Millisecond))
		}
		eng, err := coqui.New(a.cfg.TTS.URL, opts...)
		if err != nil {
			return fmt.Errorf("create coqui client: %w", err)
		}
		a.ttsEngine = eng
	}

	return nil
}

// initHTTP sets up the diagnostics server with health, state, and metrics
// endpoints. Disabled when server.listen_addr is empty.
func (a *App) initHTTP() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	var checkers []health.Checker
	if ce, ok := a.ttsEngine.(*coqui.Engine); ok {
		checkers = append(checkers, health.Checker{
			Name: "tts-server",
			Check: func(ctx context.Context) error {
				_, err := ce.ListVoices(ctx)
				return err
			},
		})
	}

	h := health.New(func() string { return a.assistant.State().String() }, checkers...)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and blocks until ctx is cancelled or a fatal error
// occurs. The capture loop, the assistant core, and the diagnostics server
// run as one errgroup: any fatal failure tears the others down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.listener.Run(ctx); err != nil && !errors.Is(err, listener.ErrSourceClosed) {
			return fmt.Errorf("app: listener: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.assistant.Run(ctx)
	})

	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("assistant running",
		"vad_backend", a.cfg.VAD.Backend,
		"trigger_phrase", a.cfg.Assistant.TriggerPhrase,
	)
	return g.Wait()
}

// State reports the assistant's current pipeline state.
func (a *App) State() assistant.State {
	return a.assistant.State()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the collected closers, used to unwind a failed New.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error during init unwind", "err", err)
		}
	}
	a.closers = nil
}
