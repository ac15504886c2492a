package audio_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/kpfromer/voice-assistant/pkg/audio"
)

func TestPCMToFloat32(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 6)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(int16(0)))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(int16(16384)))
	negFull := int16(-32768)
	binary.LittleEndian.PutUint16(pcm[4:6], uint16(negFull))

	got := audio.PCMToFloat32(pcm)
	want := []float32{0, 0.5, -1.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}

	silence := make([]byte, 640)
	if got := audio.RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}

	loud := make([]byte, 640)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:i+2], uint16(int16(16384)))
	}
	if got := audio.RMS(loud); math.Abs(got-0.5) > 0.001 {
		t.Errorf("RMS(half-scale) = %f, want ~0.5", got)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:2], uint16(int16(100))) // L
	binary.LittleEndian.PutUint16(stereo[2:4], uint16(int16(300))) // R
	negL := int16(-200)
	negR := int16(-400)
	binary.LittleEndian.PutUint16(stereo[4:6], uint16(negL)) // L
	binary.LittleEndian.PutUint16(stereo[6:8], uint16(negR)) // R

	mono := audio.StereoToMono(stereo)
	if len(mono) != 4 {
		t.Fatalf("len = %d, want 4", len(mono))
	}
	if v := int16(binary.LittleEndian.Uint16(mono[0:2])); v != 200 {
		t.Errorf("mono[0] = %d, want 200", v)
	}
	if v := int16(binary.LittleEndian.Uint16(mono[2:4])); v != -300 {
		t.Errorf("mono[1] = %d, want -300", v)
	}
}

func TestSilenceFrame(t *testing.T) {
	t.Parallel()

	frame := audio.SilenceFrame(16000, 1, 20)
	if len(frame) != 640 {
		t.Fatalf("len = %d, want 640 (320 samples x 2 bytes)", len(frame))
	}
	for _, b := range frame {
		if b != 0 {
			t.Fatal("silence frame contains non-zero bytes")
		}
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := audio.Frame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", got)
	}

	var empty audio.Frame
	if got := empty.Duration(); got != 0 {
		t.Errorf("empty frame Duration() = %v, want 0", got)
	}
}

func TestUtterancePCMAndDuration(t *testing.T) {
	t.Parallel()

	mkFrame := func(seq uint64, fill byte) audio.Frame {
		data := make([]byte, 640)
		for i := range data {
			data[i] = fill
		}
		return audio.Frame{
			Data:       data,
			SampleRate: 16000,
			Channels:   1,
			Seq:        seq,
			Timestamp:  time.Duration(seq) * 20 * time.Millisecond,
		}
	}

	u := audio.Utterance{
		Frames: []audio.Frame{mkFrame(0, 1), mkFrame(1, 2), mkFrame(2, 3)},
		Start:  0,
		End:    40 * time.Millisecond,
	}

	if got := u.NumFrames(); got != 3 {
		t.Errorf("NumFrames() = %d, want 3", got)
	}
	if got := u.Duration(); got != 60*time.Millisecond {
		t.Errorf("Duration() = %v, want 60ms", got)
	}
	if got := u.SampleRate(); got != 16000 {
		t.Errorf("SampleRate() = %d, want 16000", got)
	}

	pcm := u.PCM()
	if len(pcm) != 3*640 {
		t.Fatalf("PCM() length = %d, want %d", len(pcm), 3*640)
	}
	if pcm[0] != 1 || pcm[640] != 2 || pcm[1280] != 3 {
		t.Error("PCM() frames concatenated out of order")
	}

	// Mutating the flattened copy must not touch the utterance.
	pcm[0] = 99
	if u.Frames[0].Data[0] != 1 {
		t.Error("PCM() aliases the utterance frames")
	}

	var empty audio.Utterance
	if got := empty.Duration(); got != 0 {
		t.Errorf("empty Duration() = %v, want 0", got)
	}
	if got := empty.SampleRate(); got != 0 {
		t.Errorf("empty SampleRate() = %d, want 0", got)
	}
}
