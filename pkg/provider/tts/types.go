package tts

import (
	"context"
	"sync"
)

// Stream carries synthesised PCM audio from an engine to the playback sink.
// Chunks are raw little-endian PCM16 in the stream's format.
//
// A Stream has a producer side (the engine) and a consumer side (the
// caller). The engine sends chunks with Send and finishes with CloseSend;
// the caller ranges over Chunks and inspects Err once the channel closes.
type Stream struct {
	sampleRate int
	channels   int
	chunks     chan []byte

	mu  sync.Mutex
	err error
}

// NewStream creates a stream in the given PCM format with the given channel
// buffer depth. Intended for Engine implementations.
func NewStream(sampleRate, channels, buf int) *Stream {
	return &Stream{
		sampleRate: sampleRate,
		channels:   channels,
		chunks:     make(chan []byte, buf),
	}
}

// SampleRate returns the PCM sample rate in Hz.
func (s *Stream) SampleRate() int { return s.sampleRate }

// Channels returns the PCM channel count.
func (s *Stream) Channels() int { return s.channels }

// Chunks returns the audio channel. It is closed when synthesis completes,
// fails, or is cancelled; check Err afterwards to tell which.
func (s *Stream) Chunks() <-chan []byte { return s.chunks }

// Err reports how the stream ended: nil for normal completion, or the
// synthesis/cancellation error otherwise. Only valid after Chunks is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send delivers a chunk on the stream, blocking until the consumer accepts
// it or ctx is done. Producer side only.
func (s *Stream) Send(ctx context.Context, chunk []byte) error {
	select {
	case s.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend records the terminal error (nil for success) and closes the
// chunk channel. Producer side only; must be called exactly once.
func (s *Stream) CloseSend(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
}
