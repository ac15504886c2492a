// Package mock provides test doubles for the audio package interfaces.
//
// Source emits a scripted or dynamically-fed sequence of frames. Sink records
// every Play call and the chunks it received, with optional hold-open
// behaviour so tests can exercise cancellation mid-playback.
package mock

import (
	"context"
	"sync"

	"github.com/kpfromer/voice-assistant/pkg/audio"
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock implementation of audio.Source. Frames are fed either
// up-front via NewSource or dynamically via Emit.
type Source struct {
	frames    chan audio.Frame
	closeOnce sync.Once
}

// NewSource creates a source pre-loaded with the given frames. The channel
// stays open after the script is consumed; call Close to end the stream.
func NewSource(frames ...audio.Frame) *Source {
	buf := len(frames) + 64
	s := &Source{frames: make(chan audio.Frame, buf)}
	for _, f := range frames {
		s.frames <- f
	}
	return s
}

// Emit feeds one more frame into the stream. Panics if the source is closed,
// same as a send on a closed channel would.
func (s *Source) Emit(f audio.Frame) { s.frames <- f }

// Frames returns the scripted stream.
func (s *Source) Frames() <-chan audio.Frame { return s.frames }

// Close ends the stream. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() { close(s.frames) })
	return nil
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// ─── Sink ────────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of Sink.Play.
type PlayCall struct {
	// SampleRate and Channels are the format passed to Play.
	SampleRate int
	Channels   int
}

// Sink is a mock implementation of audio.Sink.
type Sink struct {
	mu sync.Mutex

	// Hold, when true, keeps each handle live after its chunk stream ends
	// until it is cancelled. Use it to test barge-in during playback.
	Hold bool

	// PlayErr, if non-nil, is returned by Play itself.
	PlayErr error

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	// handles holds the handle created for each Play call, same order.
	handles []*Handle
}

// Play records the call and returns a handle that collects the chunk stream.
func (s *Sink) Play(ctx context.Context, sampleRate, channels int, chunks <-chan []byte) (audio.Handle, error) {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{SampleRate: sampleRate, Channels: channels})
	if err := s.PlayErr; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	h := &Handle{
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
	s.handles = append(s.handles, h)
	hold := s.Hold
	s.mu.Unlock()

	go h.run(ctx, chunks, hold)
	return h, nil
}

// Handles returns the handles created so far, in Play order. Thread-safe.
func (s *Sink) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Calls returns a copy of the recorded Play calls. Thread-safe.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

// Ensure Sink implements audio.Sink at compile time.
var _ audio.Sink = (*Sink)(nil)

// Handle is the audio.Handle returned by the mock Sink. It records every
// chunk it receives before completion or cancellation.
type Handle struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error

	done       chan struct{}
	cancel     chan struct{}
	cancelOnce sync.Once
}

func (h *Handle) run(ctx context.Context, chunks <-chan []byte, hold bool) {
	defer close(h.done)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if !hold {
					h.setErr(nil)
					return
				}
				// Stream over but the handle stays live until cancelled,
				// imitating audio still draining out of the device.
				select {
				case <-h.cancel:
					h.setErr(context.Canceled)
				case <-ctx.Done():
					h.setErr(ctx.Err())
				}
				return
			}
			cp := make([]byte, len(chunk))
			copy(cp, chunk)
			h.mu.Lock()
			h.chunks = append(h.chunks, cp)
			h.mu.Unlock()

		case <-h.cancel:
			go audio.Drain(chunks)
			h.setErr(context.Canceled)
			return

		case <-ctx.Done():
			go audio.Drain(chunks)
			h.setErr(ctx.Err())
			return
		}
	}
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Cancel stops the handle. Idempotent.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

// Done is closed when the handle has settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err reports how playback ended. Only valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Chunks returns a copy of the chunks received so far. Thread-safe.
func (h *Handle) Chunks() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.chunks))
	copy(out, h.chunks)
	return out
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	select {
	case <-h.cancel:
		return true
	default:
		return false
	}
}

// Ensure Handle implements audio.Handle at compile time.
var _ audio.Handle = (*Handle)(nil)
