// Package mock provides a test double for the stt package interface.
//
// Use Engine to script Transcribe results and inspect the utterances that
// were submitted for transcription.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// Utterance is the utterance passed to Transcribe.
	Utterance audio.Utterance
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Script, if non-empty, supplies Transcript results one per Transcribe
	// call, in order. When the script is exhausted the last entry repeats.
	Script []stt.Transcript

	// Transcript is returned by every Transcribe call when Script is empty.
	Transcript stt.Transcript

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Delay, if non-zero, makes Transcribe block for the given duration or
	// until ctx is done, whichever comes first. Use it to exercise timeout
	// paths.
	Delay time.Duration

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call, optionally waits for Delay, and returns the
// next scripted Transcript (or the static Transcript) together with
// TranscribeErr.
func (e *Engine) Transcribe(ctx context.Context, utt audio.Utterance) (stt.Transcript, error) {
	e.mu.Lock()
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{Utterance: utt})
	idx := len(e.TranscribeCalls) - 1
	tr := e.Transcript
	if len(e.Script) > 0 {
		if idx >= len(e.Script) {
			idx = len(e.Script) - 1
		}
		tr = e.Script[idx]
	}
	err := e.TranscribeErr
	delay := e.Delay
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return tr, nil
}

// Calls returns a copy of the recorded Transcribe calls. Thread-safe.
func (e *Engine) Calls() []TranscribeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TranscribeCall, len(e.TranscribeCalls))
	copy(out, e.TranscribeCalls)
	return out
}

// ResetCalls clears all recorded call history. Thread-safe.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TranscribeCalls = nil
}

// Ensure Engine implements stt.Engine at compile time.
var _ stt.Engine = (*Engine)(nil)
