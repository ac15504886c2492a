// Package whisper implements the STT engine backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all Transcribe
// calls; each call creates its own whisper context, which is cheap relative
// to inference and keeps the model usable from concurrent callers.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
)

const (
	defaultLanguage = "en"

	// requiredSampleRate is the only input rate whisper.cpp accepts.
	requiredSampleRate = 16000
)

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Engine implements stt.Engine using whisper.cpp Go bindings (CGO).
type Engine struct {
	model    whisperlib.Model
	language string
	logger   *slog.Logger
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithLogger sets the logger used for non-fatal inference warnings.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine that loads the whisper.cpp model from the given file
// path. The caller must call Close when the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:    model,
		language: defaultLanguage,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model. Must be called when the engine is no
// longer needed.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the complete utterance.
//
// Inference happens on a separate goroutine so that ctx deadlines are
// honoured: on cancellation Transcribe returns immediately with ctx's error
// while the native call runs to completion in the background. The abandoned
// context is discarded when it finishes.
func (e *Engine) Transcribe(ctx context.Context, utt audio.Utterance) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: context already done: %w", err)
	}
	if utt.NumFrames() == 0 {
		return stt.Transcript{}, nil
	}
	if sr := utt.SampleRate(); sr != requiredSampleRate {
		return stt.Transcript{}, fmt.Errorf("whisper: utterance sample rate %d Hz, model requires %d Hz", sr, requiredSampleRate)
	}

	samples := audio.PCMToFloat32(utt.PCM())

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := e.infer(samples)
		resCh <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("whisper: transcription aborted: %w", ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			return stt.Transcript{}, res.err
		}
		return stt.Transcript{
			Text:          res.text,
			AudioDuration: utt.Duration(),
		}, nil
	}
}

// infer creates a fresh whisper context, runs inference, and returns the
// concatenated segment text. Contexts are not thread-safe; the shared model
// is.
func (e *Engine) infer(samples []float32) (string, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		e.logger.Warn("whisper: failed to set language, using default", "language", e.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
