// Package mock provides a test double for the tts package interface.
//
// Use Engine to script synthesis output and inspect the text that was
// submitted for synthesis.
package mock

import (
	"context"
	"sync"

	"github.com/kpfromer/voice-assistant/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Engine.Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
}

// Engine is a mock implementation of tts.Engine. Each Synthesize call emits
// Chunks on a fresh stream and closes it.
type Engine struct {
	mu sync.Mutex

	// Chunks are the PCM chunks emitted on every returned stream.
	Chunks [][]byte

	// SampleRate and Channels describe the stream format. Zero values default
	// to 22050 Hz mono.
	SampleRate int
	Channels   int

	// SynthesizeErr, if non-nil, is returned by Synthesize itself.
	SynthesizeErr error

	// StreamErr, if non-nil, ends every returned stream with this error after
	// the chunks are emitted.
	StreamErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns a stream carrying Chunks. The
// stream respects ctx: cancellation ends it early with ctx's error.
func (e *Engine) Synthesize(ctx context.Context, text string) (*tts.Stream, error) {
	e.mu.Lock()
	e.SynthesizeCalls = append(e.SynthesizeCalls, SynthesizeCall{Text: text})
	chunks := e.Chunks
	sr, ch := e.SampleRate, e.Channels
	synthErr, streamErr := e.SynthesizeErr, e.StreamErr
	e.mu.Unlock()

	if synthErr != nil {
		return nil, synthErr
	}
	if sr == 0 {
		sr = 22050
	}
	if ch == 0 {
		ch = 1
	}

	stream := tts.NewStream(sr, ch, len(chunks)+1)
	go func() {
		for _, chunk := range chunks {
			if err := stream.Send(ctx, chunk); err != nil {
				stream.CloseSend(err)
				return
			}
		}
		stream.CloseSend(streamErr)
	}()
	return stream, nil
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (e *Engine) Calls() []SynthesizeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SynthesizeCall, len(e.SynthesizeCalls))
	copy(out, e.SynthesizeCalls)
	return out
}

// ResetCalls clears all recorded call history. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SynthesizeCalls = nil
}

// Ensure Engine implements tts.Engine at compile time.
var _ tts.Engine = (*Engine)(nil)
