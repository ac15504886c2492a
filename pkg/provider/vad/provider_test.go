package vad_test

import (
	"testing"

	"github.com/kpfromer/voice-assistant/pkg/provider/vad"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := vad.Config{SampleRate: 16000, FrameMs: 20, SpeechThreshold: 0.5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid config returned %v", err)
	}

	cases := []struct {
		name string
		mut  func(*vad.Config)
	}{
		{"zero sample rate", func(c *vad.Config) { c.SampleRate = 0 }},
		{"negative sample rate", func(c *vad.Config) { c.SampleRate = -16000 }},
		{"zero frame duration", func(c *vad.Config) { c.FrameMs = 0 }},
		{"threshold below range", func(c *vad.Config) { c.SpeechThreshold = -0.1 }},
		{"threshold above range", func(c *vad.Config) { c.SpeechThreshold = 1.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error for %s", tc.name)
			}
		})
	}
}
