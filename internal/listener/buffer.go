package listener

import (
	"fmt"

	"github.com/kpfromer/voice-assistant/pkg/audio"
)

// Buffer accumulates the frames of the single in-progress utterance. At most
// one utterance is ever open; the segmenter opens a buffer on the first frame
// of a speech run and either seals it into an [audio.Utterance] or discards
// it.
//
// A Buffer is not safe for concurrent use; it lives entirely on the capture
// goroutine.
type Buffer struct {
	frames []audio.Frame
	open   bool
	sealed bool
}

// Open starts a new utterance with first as its initial frame. Opening an
// already-open buffer is a programming error and panics.
func (b *Buffer) Open(first audio.Frame) {
	if b.open {
		panic("listener: Open on an already-open utterance buffer")
	}
	b.frames = append(b.frames[:0], first)
	b.open = true
	b.sealed = false
}

// Append adds a frame to the open utterance. Appending to a sealed or
// never-opened buffer would silently lose audio, so it panics instead.
func (b *Buffer) Append(f audio.Frame) {
	if b.sealed {
		panic(fmt.Sprintf("listener: Append after Seal (frame seq %d)", f.Seq))
	}
	if !b.open {
		panic(fmt.Sprintf("listener: Append on a buffer that was never opened (frame seq %d)", f.Seq))
	}
	b.frames = append(b.frames, f)
}

// Seal closes the utterance and returns it. The returned utterance owns its
// frame slice; the buffer can be reused with Open afterwards. Sealing a
// closed buffer panics.
func (b *Buffer) Seal() audio.Utterance {
	if !b.open {
		panic("listener: Seal on a buffer that is not open")
	}
	frames := make([]audio.Frame, len(b.frames))
	copy(frames, b.frames)
	b.open = false
	b.sealed = true
	b.frames = b.frames[:0]
	return audio.Utterance{
		Frames: frames,
		Start:  frames[0].Timestamp,
		End:    frames[len(frames)-1].Timestamp,
	}
}

// Discard drops the open utterance without producing anything. Safe to call
// on a buffer that is not open.
func (b *Buffer) Discard() {
	b.frames = b.frames[:0]
	b.open = false
	b.sealed = false
}

// IsOpen reports whether an utterance is currently accumulating.
func (b *Buffer) IsOpen() bool { return b.open }

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return len(b.frames) }
