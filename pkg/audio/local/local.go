// Package local implements the audio Source and Sink interfaces on top of
// the host's real capture and playback devices via miniaudio (malgo).
//
// Microphone captures fixed-duration PCM16 frames from the default input
// device; Speaker plays chunked PCM16 streams on the default output device
// with cancellation that takes effect within one device period.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/kpfromer/voice-assistant/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultFrameMs    = 20

	// frameChanBuf is the capture channel depth: enough to absorb scheduling
	// hiccups in the consumer without the device callback ever blocking.
	frameChanBuf = 64
)

// ─── Microphone ──────────────────────────────────────────────────────────────

// Compile-time assertion that Microphone satisfies audio.Source.
var _ audio.Source = (*Microphone)(nil)

// Microphone captures mono PCM16 frames from the default input device.
type Microphone struct {
	sampleRate int
	frameMs    int
	logger     *slog.Logger

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	frames  chan audio.Frame
	seq     atomic.Uint64
	dropped atomic.Uint64
	start   time.Time

	closeOnce sync.Once
	closeErr  error
}

// MicOption is a functional option for configuring a Microphone.
type MicOption func(*Microphone)

// WithMicSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithMicSampleRate(rate int) MicOption {
	return func(m *Microphone) { m.sampleRate = rate }
}

// WithMicFrameDuration sets the frame duration in milliseconds. Defaults to 20.
func WithMicFrameDuration(ms int) MicOption {
	return func(m *Microphone) { m.frameMs = ms }
}

// WithMicLogger sets the logger for capture diagnostics. Defaults to
// slog.Default().
func WithMicLogger(l *slog.Logger) MicOption {
	return func(m *Microphone) { m.logger = l }
}

// NewMicrophone opens the default input device and starts capturing
// immediately. The caller must call Close to release the device.
//
// A failure to open or start the device is fatal: sources never retry device
// initialisation.
func NewMicrophone(opts ...MicOption) (*Microphone, error) {
	m := &Microphone{
		sampleRate: defaultSampleRate,
		frameMs:    defaultFrameMs,
		logger:     slog.Default(),
		frames:     make(chan audio.Frame, frameChanBuf),
	}
	for _, o := range opts {
		o(m)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("local: init audio context: %w", err)
	}
	m.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.frameMs)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	m.start = time.Now()
	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onCapture,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("local: init capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("local: start capture device: %w", err)
	}

	m.logger.Info("microphone capture started",
		"sample_rate", m.sampleRate, "frame_ms", m.frameMs)
	return m, nil
}

// onCapture runs on the device's audio thread once per period. It must never
// block, so a full frame channel drops the frame and advances the sequence
// number, leaving a detectable gap.
func (m *Microphone) onCapture(_, inputSamples []byte, _ uint32) {
	data := make([]byte, len(inputSamples))
	copy(data, inputSamples)

	frame := audio.Frame{
		Data:       data,
		SampleRate: m.sampleRate,
		Channels:   1,
		Seq:        m.seq.Add(1) - 1,
		Timestamp:  time.Since(m.start),
	}
	select {
	case m.frames <- frame:
	default:
		m.dropped.Add(1)
	}
}

// Frames returns the capture stream. Closed by Close.
func (m *Microphone) Frames() <-chan audio.Frame { return m.frames }

// Dropped reports how many frames were discarded because the consumer fell
// behind the capture cadence.
func (m *Microphone) Dropped() uint64 { return m.dropped.Load() }

// Close stops capture, releases the device, and closes the Frames channel.
// Safe to call more than once.
func (m *Microphone) Close() error {
	m.closeOnce.Do(func() {
		// Stop blocks until the data callback is no longer running, so the
		// channel close below cannot race a send.
		if err := m.device.Stop(); err != nil {
			m.closeErr = fmt.Errorf("local: stop capture device: %w", err)
		}
		m.device.Uninit()
		if err := m.malgoCtx.Uninit(); err != nil && m.closeErr == nil {
			m.closeErr = fmt.Errorf("local: uninit audio context: %w", err)
		}
		m.malgoCtx.Free()
		close(m.frames)
		if n := m.dropped.Load(); n > 0 {
			m.logger.Warn("capture dropped frames", "count", n)
		}
	})
	return m.closeErr
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

// Compile-time assertion that Speaker satisfies audio.Sink.
var _ audio.Sink = (*Speaker)(nil)

// Speaker plays chunked PCM16 streams on the default output device. Each Play
// call opens a playback device in the stream's format and releases it when
// playback ends.
type Speaker struct {
	logger   *slog.Logger
	frameMs  int
	malgoCtx *malgo.AllocatedContext

	closeOnce sync.Once
	closeErr  error
}

// SpeakerOption is a functional option for configuring a Speaker.
type SpeakerOption func(*Speaker)

// WithSpeakerLogger sets the logger for playback diagnostics. Defaults to
// slog.Default().
func WithSpeakerLogger(l *slog.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = l }
}

// WithSpeakerPeriod sets the device period in milliseconds, which bounds
// cancellation latency. Defaults to 20.
func WithSpeakerPeriod(ms int) SpeakerOption {
	return func(s *Speaker) { s.frameMs = ms }
}

// NewSpeaker initialises the audio backend for playback. The caller must
// call Close to release it.
func NewSpeaker(opts ...SpeakerOption) (*Speaker, error) {
	s := &Speaker{
		logger:  slog.Default(),
		frameMs: defaultFrameMs,
	}
	for _, o := range opts {
		o(s)
	}
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("local: init audio context: %w", err)
	}
	s.malgoCtx = malgoCtx
	return s, nil
}

// Close releases the audio backend. Safe to call more than once. Callers must
// not Close while a playback handle is still live.
func (s *Speaker) Close() error {
	s.closeOnce.Do(func() {
		if err := s.malgoCtx.Uninit(); err != nil {
			s.closeErr = fmt.Errorf("local: uninit audio context: %w", err)
		}
		s.malgoCtx.Free()
	})
	return s.closeErr
}

// Play opens a playback device in the given format and starts draining
// chunks into it. The returned handle cancels within one device period.
func (s *Speaker) Play(ctx context.Context, sampleRate, channels int, chunks <-chan []byte) (audio.Handle, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("local: invalid playback format %d Hz / %d ch", sampleRate, channels)
	}

	h := &playback{
		done:    make(chan struct{}),
		cancel:  make(chan struct{}),
		drained: make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.PeriodSizeInMilliseconds = uint32(s.frameMs)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(s.malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: h.onPlayback,
	})
	if err != nil {
		return nil, fmt.Errorf("local: init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("local: start playback device: %w", err)
	}

	go h.run(ctx, device, chunks)
	return h, nil
}

// playback is one in-flight playback operation. It implements audio.Handle.
type playback struct {
	mu        sync.Mutex
	buf       []byte
	inputDone bool

	done       chan struct{}
	cancel     chan struct{}
	drained    chan struct{}
	cancelOnce sync.Once
	drainOnce  sync.Once

	errMu sync.Mutex
	err   error
}

var _ audio.Handle = (*playback)(nil)

// onPlayback runs on the device's audio thread once per period. It copies
// buffered PCM into the output and zero-fills any shortfall.
func (p *playback) onPlayback(outputSamples, _ []byte, _ uint32) {
	p.mu.Lock()
	n := copy(outputSamples, p.buf)
	p.buf = p.buf[n:]
	finished := p.inputDone && len(p.buf) == 0
	p.mu.Unlock()

	for i := n; i < len(outputSamples); i++ {
		outputSamples[i] = 0
	}
	if finished {
		p.drainOnce.Do(func() { close(p.drained) })
	}
}

// run feeds chunks into the playback buffer and settles the handle when the
// stream completes, is cancelled, or ctx ends. Remaining chunks are always
// drained so the producer never blocks.
func (p *playback) run(ctx context.Context, device *malgo.Device, chunks <-chan []byte) {
	defer close(p.done)
	defer func() {
		_ = device.Stop()
		device.Uninit()
	}()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				p.mu.Lock()
				p.inputDone = true
				empty := len(p.buf) == 0
				p.mu.Unlock()
				if empty {
					p.drainOnce.Do(func() { close(p.drained) })
				}
				// All input queued; wait for the device to finish it.
				select {
				case <-p.drained:
					p.setErr(nil)
				case <-p.cancel:
					p.setErr(context.Canceled)
				case <-ctx.Done():
					p.setErr(ctx.Err())
				}
				return
			}
			p.mu.Lock()
			p.buf = append(p.buf, chunk...)
			p.mu.Unlock()

		case <-p.cancel:
			go audio.Drain(chunks)
			p.clearBuf()
			p.setErr(context.Canceled)
			return

		case <-ctx.Done():
			go audio.Drain(chunks)
			p.clearBuf()
			p.setErr(ctx.Err())
			return
		}
	}
}

func (p *playback) clearBuf() {
	p.mu.Lock()
	p.buf = nil
	p.mu.Unlock()
}

func (p *playback) setErr(err error) {
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
}

// Cancel stops output within one device period and discards unplayed audio.
// Idempotent.
func (p *playback) Cancel() {
	p.cancelOnce.Do(func() { close(p.cancel) })
}

// Done is closed when playback has fully settled and the device is released.
func (p *playback) Done() <-chan struct{} { return p.done }

// Err reports how playback ended. Only valid after Done is closed.
func (p *playback) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}
