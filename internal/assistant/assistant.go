// Package assistant implements the interaction core: a single-goroutine
// state machine that consumes segmentation events, hands sealed utterances
// to a worker for transcription and reply synthesis, and cancels playback
// the moment the user talks over it.
//
// Concurrency model: the driver goroutine owns all state and is the only
// writer. The worker goroutine runs the slow pipeline (STT, responder, TTS,
// playback) one utterance at a time, reporting progress back over a channel.
// Sealed utterances queue in a pending slot of depth one; a newer utterance
// displaces an older unprocessed one, and processing always happens in
// capture order.
package assistant

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kpfromer/voice-assistant/internal/listener"
	"github.com/kpfromer/voice-assistant/internal/observe"
	"github.com/kpfromer/voice-assistant/internal/respond"
	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
	"github.com/kpfromer/voice-assistant/pkg/provider/tts"
)

const (
	defaultSTTTimeout     = 30 * time.Second
	defaultRespondTimeout = 10 * time.Second
	defaultTTSTimeout     = 30 * time.Second
)

// Assistant drives the interaction cycle. Create with New, start with Run.
type Assistant struct {
	events    <-chan listener.Event
	sttEngine stt.Engine
	ttsEngine tts.Engine
	sink      audio.Sink
	trigger   *respond.TriggerMatcher
	responder respond.Responder

	sttTimeout     time.Duration
	respondTimeout time.Duration
	ttsTimeout     time.Duration

	metrics *observe.Metrics
	logger  *slog.Logger

	state atomic.Int64

	jobs    chan job
	results chan result
}

// Option is a functional option for configuring an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithSTTTimeout bounds each transcription call. Defaults to 30 s.
func WithSTTTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.sttTimeout = d }
}

// WithRespondTimeout bounds each responder call. Defaults to 10 s.
func WithRespondTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.respondTimeout = d }
}

// WithTTSTimeout bounds each synthesis, from request to last chunk.
// Defaults to 30 s.
func WithTTSTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.ttsTimeout = d }
}

// New creates an assistant consuming segmentation events from events and
// responding through the given engines and sink.
func New(
	events <-chan listener.Event,
	sttEngine stt.Engine,
	ttsEngine tts.Engine,
	sink audio.Sink,
	trigger *respond.TriggerMatcher,
	responder respond.Responder,
	opts ...Option,
) *Assistant {
	a := &Assistant{
		events:         events,
		sttEngine:      sttEngine,
		ttsEngine:      ttsEngine,
		sink:           sink,
		trigger:        trigger,
		responder:      responder,
		sttTimeout:     defaultSTTTimeout,
		respondTimeout: defaultRespondTimeout,
		ttsTimeout:     defaultTTSTimeout,
		logger:         slog.Default(),
		jobs:           make(chan job, 1),
		results:        make(chan result, 8),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.state.Store(int64(StateListening))
	return a
}

// State returns the current interaction state. Safe for concurrent use;
// intended for diagnostics endpoints.
func (a *Assistant) State() State {
	return State(a.state.Load())
}

// job is one sealed utterance queued for the worker.
type job struct {
	utterance audio.Utterance
	sealedAt  time.Time
}

// result messages flow from the worker back to the driver.
type resultKind int

const (
	// resultPlaying reports that playback started; carries the handle and
	// the synthesis cancel so the driver can barge in.
	resultPlaying resultKind = iota

	// resultDone reports that the job finished, with or without audio.
	resultDone
)

type result struct {
	kind        resultKind
	handle      audio.Handle
	synthCancel context.CancelFunc
}

// Run drives the assistant until ctx is cancelled or the event stream
// closes. It blocks; run it in its own goroutine. Always returns nil after
// an orderly wind-down so callers can treat it as a lifecycle function.
func (a *Assistant) Run(ctx context.Context) error {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker(ctx)
	}()
	defer func() {
		close(a.jobs)
		<-workerDone
	}()

	var (
		pending     *job         // sealed utterance waiting for the worker
		inflight    bool         // worker busy with a job
		capturing   bool         // segmenter currently accumulating
		playing     audio.Handle // live playback handle, nil otherwise
		synthCancel context.CancelFunc
	)

	dispatch := func() {
		if pending == nil || inflight {
			return
		}
		a.jobs <- *pending
		pending = nil
		inflight = true
	}

	for {
		select {
		case <-ctx.Done():
			if playing != nil {
				playing.Cancel()
			}
			if synthCancel != nil {
				synthCancel()
			}
			return nil

		case ev, ok := <-a.events:
			if !ok {
				if synthCancel != nil {
					synthCancel()
				}
				if playing != nil {
					playing.Cancel()
				}
				return nil
			}
			switch ev.Type {
			case listener.EventSpeechConfirmed:
				capturing = true
				if playing != nil {
					// Barge-in: stop talking immediately, keep every frame.
					a.logger.Info("barge-in, cancelling playback")
					a.metrics.RecordBargeIn(ctx)
					if synthCancel != nil {
						synthCancel()
					}
					playing.Cancel()
				}
				a.transition(ctx, StateCapturing)

			case listener.EventSealed:
				capturing = false
				a.metrics.RecordSealed(ctx, ev.Forced)
				if pending != nil {
					// Depth-one queue: the newer utterance wins.
					a.logger.Warn("pending utterance displaced by a newer one")
					a.metrics.UtterancesDropped.Add(ctx, 1)
				}
				pending = &job{utterance: ev.Utterance, sealedAt: time.Now()}
				dispatch()
				a.transition(ctx, StateTranscribing)

			case listener.EventDiscarded:
				if ev.Reason != listener.DiscardFalseStart {
					capturing = false
				}
				a.metrics.RecordDiscarded(ctx, ev.Reason.String())
				if !capturing && !inflight && playing == nil {
					a.transition(ctx, StateListening)
				}
			}

		case res := <-a.results:
			switch res.kind {
			case resultPlaying:
				playing = res.handle
				synthCancel = res.synthCancel
				if !capturing {
					a.transition(ctx, StateResponding)
				}

			case resultDone:
				inflight = false
				if synthCancel != nil {
					synthCancel()
					synthCancel = nil
				}
				playing = nil
				dispatch()
				switch {
				case capturing:
					a.transition(ctx, StateCapturing)
				case inflight:
					a.transition(ctx, StateTranscribing)
				default:
					a.transition(ctx, StateListening)
				}
			}
		}
	}
}

// transition records a state change. Driver goroutine only.
func (a *Assistant) transition(ctx context.Context, to State) {
	from := a.State()
	if from == to {
		return
	}
	a.state.Store(int64(to))
	a.metrics.RecordTransition(ctx, from.String(), to.String())
	a.logger.Debug("state transition", "from", from.String(), "to", to.String())
}
