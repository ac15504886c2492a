// Command voice-assistant is the main entry point for the local voice
// assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/kpfromer/voice-assistant/internal/app"
	"github.com/kpfromer/voice-assistant/internal/config"
	"github.com/kpfromer/voice-assistant/internal/observe"
	"github.com/kpfromer/voice-assistant/pkg/provider/tts/coqui"
)

// voiceCheckTimeout bounds the startup probe of the TTS server.
const voiceCheckTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "assistant.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voice-assistant: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voice-assistant: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voice-assistant starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voice-assistant",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Voice validation ──────────────────────────────────────────────────────
	// A typo in the voice name otherwise surfaces only on the first reply.
	if cfg.TTS.Voice != "" {
		if err := checkVoice(ctx, cfg); err != nil {
			slog.Warn("could not verify configured voice against the TTS server", "err", err)
		}
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// checkVoice asks the TTS server for its voice list and confirms the
// configured voice exists. A failure to reach the server is reported to the
// caller; an unknown voice is only a warning since servers may accept voices
// they do not advertise.
func checkVoice(ctx context.Context, cfg *config.Config) error {
	opts := []coqui.Option{}
	if cfg.TTS.Mode == config.TTSXTTS {
		opts = append(opts, coqui.WithAPIMode(coqui.APIModeXTTS))
	}
	client, err := coqui.New(cfg.TTS.URL, opts...)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, voiceCheckTimeout)
	defer cancel()

	voices, err := client.ListVoices(probeCtx)
	if err != nil {
		return err
	}
	if !slices.Contains(voices, cfg.TTS.Voice) {
		slog.Warn("configured voice is not advertised by the TTS server",
			"voice", cfg.TTS.Voice,
			"available", len(voices),
		)
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║     voice-assistant — startup         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("VAD backend", string(cfg.VAD.Backend))
	printRow("STT model", cfg.STT.ModelPath)
	printRow("TTS server", cfg.TTS.URL)
	printRow("TTS voice", cfg.TTS.Voice)
	printRow("Trigger", cfg.Assistant.TriggerPhrase)
	printRow("Capture", fmt.Sprintf("%d Hz / %d ms", cfg.Audio.SampleRate, cfg.Audio.FrameMs))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
