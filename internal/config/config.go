// Package config provides the configuration schema and loader for the
// voice assistant.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VADBackend selects the voice activity detection implementation.
type VADBackend string

const (
	// VADEnergy is the dependency-free RMS energy detector. Good enough for
	// quiet rooms and for running without a model file.
	VADEnergy VADBackend = "energy"

	// VADSilero runs the Silero ONNX model. Requires vad.model_path.
	VADSilero VADBackend = "silero"
)

// IsValid reports whether b is a recognised VAD backend.
func (b VADBackend) IsValid() bool {
	return b == VADEnergy || b == VADSilero
}

// TTSMode selects the Coqui server API flavour.
type TTSMode string

const (
	// TTSStandard targets the stock Coqui TTS server (GET /api/tts).
	TTSStandard TTSMode = "standard"

	// TTSXTTS targets an XTTS streaming server (POST /tts_to_audio/).
	TTSXTTS TTSMode = "xtts"
)

// IsValid reports whether m is a recognised TTS mode.
func (m TTSMode) IsValid() bool {
	return m == TTSStandard || m == TTSXTTS
}

// Config is the root configuration structure for the assistant.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	STT       STTConfig       `yaml:"stt"`
	TTS       TTSConfig       `yaml:"tts"`
	Assistant AssistantConfig `yaml:"assistant"`
	Server    ServerConfig    `yaml:"server"`
}

// AudioConfig holds capture format settings shared by the microphone and the
// VAD/STT stages.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz. Whisper requires 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the capture frame duration in milliseconds.
	FrameMs int `yaml:"frame_ms"`
}

// VADConfig holds voice activity detection and segmentation settings.
type VADConfig struct {
	// Backend selects the detector implementation.
	Backend VADBackend `yaml:"backend"`

	// ModelPath is the Silero ONNX model file. Required for the silero
	// backend, ignored otherwise.
	ModelPath string `yaml:"model_path"`

	// SpeechThreshold is the per-frame speech probability cutoff in [0, 1].
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// DebounceFrames is the number of consecutive speech frames required
	// before a speech run is confirmed as an utterance.
	DebounceFrames int `yaml:"debounce_frames"`

	// HangoverFrames is the number of consecutive silence frames that seal a
	// confirmed utterance. Larger values tolerate longer mid-sentence pauses.
	HangoverFrames int `yaml:"hangover_frames"`

	// MinUtteranceMs discards sealed utterances with less speech than this.
	MinUtteranceMs int `yaml:"min_utterance_ms"`

	// MaxUtteranceMs force-seals an utterance that reaches this duration.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`
}

// STTConfig holds Whisper transcription settings.
type STTConfig struct {
	// ModelPath is the GGML Whisper model file. Required.
	ModelPath string `yaml:"model_path"`

	// Language hints the spoken language (e.g., "en"). Empty means
	// auto-detect.
	Language string `yaml:"language"`

	// TimeoutMs bounds a single transcription call. 0 uses the built-in
	// default.
	TimeoutMs int `yaml:"timeout_ms"`
}

// TTSConfig holds Coqui speech synthesis settings.
type TTSConfig struct {
	// URL is the base URL of the Coqui TTS server. Required.
	URL string `yaml:"url"`

	// Mode selects the server API flavour.
	Mode TTSMode `yaml:"mode"`

	// Voice is the speaker/voice identifier. Required for xtts mode.
	Voice string `yaml:"voice"`

	// Language is the synthesis language code passed to the server.
	Language string `yaml:"language"`

	// OutputSampleRate resamples synthesised audio to this rate. 0 keeps the
	// server's native rate.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// TimeoutMs bounds a single synthesis request. 0 uses the built-in
	// default.
	TimeoutMs int `yaml:"timeout_ms"`
}

// AssistantConfig holds interaction settings.
type AssistantConfig struct {
	// TriggerPhrase is the wake phrase the assistant listens for. Required.
	TriggerPhrase string `yaml:"trigger_phrase"`

	// RespondTimeoutMs bounds a single responder call. 0 uses the built-in
	// default.
	RespondTimeoutMs int `yaml:"respond_timeout_ms"`
}

// ServerConfig holds the diagnostics HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the health and metrics endpoints
	// (e.g., ":8080"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Default returns a Config populated with the built-in defaults: 16 kHz mono
// capture in 20 ms frames, the energy VAD with moderate segmentation
// settings, and the trigger phrase "computer".
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			FrameMs:    20,
		},
		VAD: VADConfig{
			Backend:         VADEnergy,
			SpeechThreshold: 0.5,
			DebounceFrames:  3,
			HangoverFrames:  30,
			MinUtteranceMs:  200,
			MaxUtteranceMs:  15000,
		},
		STT: STTConfig{
			Language:  "en",
			TimeoutMs: 30000,
		},
		TTS: TTSConfig{
			Mode:      TTSStandard,
			TimeoutMs: 30000,
		},
		Assistant: AssistantConfig{
			TriggerPhrase:    "computer",
			RespondTimeoutMs: 10000,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
	}
}
