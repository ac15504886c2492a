// Package silero implements the VAD engine backed by the Silero VAD ONNX
// model via silero-vad-go. It is the recommended backend: unlike energy
// thresholding it is trained to tell speech from non-speech noise.
//
// The model operates on fixed 512-sample windows at 16 kHz (256 at 8 kHz),
// so sessions internally re-buffer the pipeline's frames to the model's
// window size. Detection state therefore trails the newest frame by at most
// one model window.
package silero

import (
	"fmt"
	"strings"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
)

// windowSamples returns the model window size for a sample rate. Silero VAD
// supports exactly 8 kHz and 16 kHz.
func windowSamples(sampleRate int) (int, error) {
	switch sampleRate {
	case 8000:
		return 256, nil
	case 16000:
		return 512, nil
	default:
		return 0, fmt.Errorf("silero: unsupported sample rate %d (want 8000 or 16000)", sampleRate)
	}
}

// Engine creates Silero VAD sessions. All sessions share the model file path
// but each owns an independent detector instance, since detector stream state
// is per-session.
type Engine struct {
	modelPath string
}

// New returns a Silero VAD engine loading the ONNX model at modelPath. The
// model file is opened lazily on the first NewSession call.
func New(modelPath string) *Engine {
	return &Engine{modelPath: modelPath}
}

// NewSession creates a detector instance and wraps it as a vad session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("silero: %w", err)
	}
	win, err := windowSamples(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  e.modelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  float32(cfg.SpeechThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("silero: create detector: %w", err)
	}
	return &session{
		cfg:       cfg,
		det:       det,
		window:    win,
		frameSize: cfg.SampleRate * cfg.FrameMs / 1000 * 2,
		buf:       make([]float32, 0, win),
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu sync.Mutex

	cfg       vad.Config
	det       *speech.Detector
	window    int
	frameSize int

	buf      []float32
	inSpeech bool
	closed   bool
}

// ProcessFrame buffers the frame into model-sized windows and runs streaming
// detection on each complete window. The returned decision reflects the
// detector's current in-speech state; because the model window (32 ms at
// 16 kHz) is larger than a typical pipeline frame, state changes land on the
// frame that completes a window.
func (s *session) ProcessFrame(frame []byte) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Decision{}, fmt.Errorf("silero: session is closed")
	}
	if len(frame) != s.frameSize {
		return vad.Decision{}, fmt.Errorf("silero: frame size %d does not match expected %d bytes (%d Hz, %d ms)",
			len(frame), s.frameSize, s.cfg.SampleRate, s.cfg.FrameMs)
	}

	s.buf = append(s.buf, audio.PCMToFloat32(frame)...)
	for len(s.buf) >= s.window {
		window := s.buf[:s.window]
		s.buf = s.buf[s.window:]

		event, err := s.det.DetectStreamFrame(window)
		if err != nil {
			// The detector reports a bogus speech end when its internal state
			// desynchronises; recover by resetting rather than failing the
			// capture loop.
			if strings.Contains(err.Error(), "unexpected speech end") {
				s.det.Reset()
				s.inSpeech = false
				continue
			}
			return vad.Decision{}, fmt.Errorf("silero: detect: %w", err)
		}
		if event != nil {
			if event.IsStart {
				s.inSpeech = true
			}
			if event.IsEnd {
				s.inSpeech = false
			}
		}
	}

	// The streaming detector emits boundary events, not per-window scores, so
	// the probability is the thresholded state.
	p := 0.0
	if s.inSpeech {
		p = 1.0
	}
	return vad.Decision{Speech: s.inSpeech, Probability: p}, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.det.Reset()
	s.buf = s.buf[:0]
	s.inSpeech = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.det.Destroy(); err != nil {
		return fmt.Errorf("silero: destroy detector: %w", err)
	}
	return nil
}

var _ vad.SessionHandle = (*session)(nil)
