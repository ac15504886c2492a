// Package energy implements a dependency-free VAD backend based on smoothed
// RMS energy. It needs no model file, which makes it the fallback for setups
// where the Silero ONNX model is unavailable, and the default for tests that
// want a deterministic detector over synthetic PCM.
//
// Energy detection is cruder than a trained model: it cannot distinguish
// speech from other loud sounds. Tune SpeechThreshold against the ambient
// noise floor of the deployment.
package energy

import (
	"fmt"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
)

// smoothingWindow is the number of recent frames averaged into the reported
// probability. Keeps single-frame clicks from registering as speech.
const smoothingWindow = 3

// Engine creates energy-based VAD sessions.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession creates a session that classifies frames by smoothed RMS energy.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	return &session{
		cfg:       cfg,
		frameSize: cfg.SampleRate * cfg.FrameMs / 1000 * 2,
	}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	cfg       vad.Config
	frameSize int

	history []float64
	closed  bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Decision, error) {
	if s.closed {
		return vad.Decision{}, fmt.Errorf("energy: session is closed")
	}
	if len(frame) != s.frameSize {
		return vad.Decision{}, fmt.Errorf("energy: frame size %d does not match expected %d bytes (%d Hz, %d ms)",
			len(frame), s.frameSize, s.cfg.SampleRate, s.cfg.FrameMs)
	}

	s.history = append(s.history, audio.RMS(frame))
	if len(s.history) > smoothingWindow {
		s.history = s.history[len(s.history)-smoothingWindow:]
	}
	var sum float64
	for _, v := range s.history {
		sum += v
	}
	smoothed := sum / float64(len(s.history))

	return vad.Decision{
		Speech:      smoothed >= s.cfg.SpeechThreshold,
		Probability: smoothed,
	}, nil
}

func (s *session) Reset() {
	s.history = s.history[:0]
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

var _ vad.SessionHandle = (*session)(nil)
