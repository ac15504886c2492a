package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only, still validated below.
			err = nil
		} else {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMs))
	}

	// VAD and segmentation
	if cfg.VAD.Backend != "" && !cfg.VAD.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("vad.backend %q is invalid; valid values: energy, silero", cfg.VAD.Backend))
	}
	if cfg.VAD.Backend == VADSilero {
		if cfg.VAD.ModelPath == "" {
			errs = append(errs, errors.New("vad.model_path is required for the silero backend"))
		}
		if cfg.Audio.SampleRate != 8000 && cfg.Audio.SampleRate != 16000 {
			errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported by the silero backend; use 8000 or 16000", cfg.Audio.SampleRate))
		}
	}
	if cfg.VAD.SpeechThreshold < 0 || cfg.VAD.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.2f is out of range [0, 1]", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.DebounceFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.debounce_frames %d must be at least 1", cfg.VAD.DebounceFrames))
	}
	if cfg.VAD.HangoverFrames < 1 {
		errs = append(errs, fmt.Errorf("vad.hangover_frames %d must be at least 1", cfg.VAD.HangoverFrames))
	}
	if cfg.VAD.MinUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("vad.min_utterance_ms %d must not be negative", cfg.VAD.MinUtteranceMs))
	}
	if cfg.VAD.MaxUtteranceMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.max_utterance_ms %d must be positive", cfg.VAD.MaxUtteranceMs))
	} else if cfg.VAD.MinUtteranceMs > cfg.VAD.MaxUtteranceMs {
		errs = append(errs, fmt.Errorf("vad.min_utterance_ms %d exceeds vad.max_utterance_ms %d", cfg.VAD.MinUtteranceMs, cfg.VAD.MaxUtteranceMs))
	}

	// STT
	if cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required"))
	}
	if cfg.STT.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("stt.timeout_ms %d must not be negative", cfg.STT.TimeoutMs))
	}
	if cfg.Audio.SampleRate != 16000 {
		slog.Warn("whisper expects 16 kHz input; transcription will fail at other rates",
			"sample_rate", cfg.Audio.SampleRate)
	}

	// TTS
	if cfg.TTS.URL == "" {
		errs = append(errs, errors.New("tts.url is required"))
	}
	if cfg.TTS.Mode != "" && !cfg.TTS.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("tts.mode %q is invalid; valid values: standard, xtts", cfg.TTS.Mode))
	}
	if cfg.TTS.Mode == TTSXTTS && cfg.TTS.Voice == "" {
		errs = append(errs, errors.New("tts.voice is required for xtts mode"))
	}
	if cfg.TTS.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("tts.output_sample_rate %d must not be negative", cfg.TTS.OutputSampleRate))
	}
	if cfg.TTS.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("tts.timeout_ms %d must not be negative", cfg.TTS.TimeoutMs))
	}

	// Assistant
	if cfg.Assistant.TriggerPhrase == "" {
		errs = append(errs, errors.New("assistant.trigger_phrase is required"))
	}
	if cfg.Assistant.RespondTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("assistant.respond_timeout_ms %d must not be negative", cfg.Assistant.RespondTimeoutMs))
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	return errors.Join(errs...)
}
