package assistant

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kpfromer/voice-assistant/internal/observe"
	"github.com/kpfromer/voice-assistant/internal/respond"
)

// worker drains the job channel and runs the slow half of the pipeline:
// transcription, trigger matching, reply generation, synthesis, playback.
// One job at a time, in arrival order. Exits when the jobs channel closes.
func (a *Assistant) worker(ctx context.Context) {
	for j := range a.jobs {
		a.process(ctx, j)
		select {
		case a.results <- result{kind: resultDone}:
		case <-ctx.Done():
			return
		}
	}
}

// process runs a single utterance through the pipeline. Errors are logged
// and counted, never fatal: the assistant returns to listening after any
// stage fails.
func (a *Assistant) process(ctx context.Context, j job) {
	ctx, span := observe.StartSpan(ctx, "assistant.utterance",
		trace.WithAttributes(
			attribute.Int("frames", j.utterance.NumFrames()),
			attribute.Int64("audio_duration_ms", j.utterance.Duration().Milliseconds()),
		),
	)
	defer span.End()

	log := a.logger.With(
		"trace_id", observe.CorrelationID(ctx),
		"frames", j.utterance.NumFrames(),
		"audio_duration", j.utterance.Duration(),
	)

	transcript, err := a.transcribe(ctx, j)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("transcription failed", "error", err)
		a.metrics.RecordEngineError(ctx, "stt")
		return
	}
	if transcript == "" {
		log.Debug("empty transcript, nothing to do")
		return
	}
	log.Info("transcribed utterance", "text", transcript)

	command, matched := a.trigger.Match(respond.Clean(transcript))
	if !matched {
		log.Debug("no trigger phrase in transcript")
		return
	}

	reply, err := a.respond(ctx, command)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error("responder failed", "error", err)
		a.metrics.RecordEngineError(ctx, "responder")
		return
	}
	if reply == "" {
		return
	}

	if err := a.speak(ctx, j.sealedAt, reply); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("playback failed", "error", err)
		a.metrics.RecordEngineError(ctx, "tts")
	}
}

func (a *Assistant) transcribe(ctx context.Context, j job) (string, error) {
	sttCtx, cancel := context.WithTimeout(ctx, a.sttTimeout)
	defer cancel()

	start := time.Now()
	transcript, err := a.sttEngine.Transcribe(sttCtx, j.utterance)
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return transcript.Text, nil
}

func (a *Assistant) respond(ctx context.Context, command string) (string, error) {
	resCtx, cancel := context.WithTimeout(ctx, a.respondTimeout)
	defer cancel()

	return a.responder.Respond(resCtx, command)
}

// speak synthesises reply and plays it, blocking until playback ends. The
// synthesis context is handed to the driver so barge-in can tear down both
// the HTTP stream and the device output.
func (a *Assistant) speak(ctx context.Context, sealedAt time.Time, reply string) error {
	synthCtx, synthCancel := context.WithCancel(ctx)
	ttsCtx, ttsCancel := context.WithTimeout(synthCtx, a.ttsTimeout)
	defer ttsCancel()

	start := time.Now()
	stream, err := a.ttsEngine.Synthesize(ttsCtx, reply)
	if err != nil {
		synthCancel()
		return err
	}

	handle, err := a.sink.Play(ctx, stream.SampleRate(), stream.Channels(), stream.Chunks())
	if err != nil {
		synthCancel()
		return err
	}
	a.metrics.ResponseDuration.Record(ctx, time.Since(sealedAt).Seconds())

	select {
	case a.results <- result{kind: resultPlaying, handle: handle, synthCancel: synthCancel}:
	case <-ctx.Done():
		synthCancel()
		handle.Cancel()
		<-handle.Done()
		return ctx.Err()
	}

	<-handle.Done()
	a.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())

	if err := handle.Err(); err != nil {
		return err
	}
	return stream.Err()
}
