// Package coqui implements the TTS engine backed by a locally-running Coqui
// TTS server via its REST API.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body; the voice catalogue
//     comes from GET /studio_speakers.
//
// Both servers operate in batch mode (one HTTP call per sentence rather than
// a streaming socket), so Synthesize splits the text into sentences and
// dispatches concurrent HTTP requests with a small lookahead buffer. Audio
// for the first sentence starts flowing while later sentences are still being
// synthesised, which keeps response latency down for long replies.
//
// Typical usage (standard server):
//
//	e, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	stream, err := e.Synthesize(ctx, "Hello there.")
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kpfromer/voice-assistant/pkg/audio"
	"github.com/kpfromer/voice-assistant/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

// ---- constants ----

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// fallbackRate is assumed when a WAV response carries no fmt chunk. It is
	// the native rate of most Coqui models.
	fallbackRate = 22050

	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// sentenceLookaheadBuf controls how many concurrent HTTP synthesis
	// requests may be in-flight simultaneously. Higher values reduce
	// perceived latency at the cost of additional server load.
	sentenceLookaheadBuf = 4

	// streamChanBuf is the buffer depth of the returned stream's channel.
	streamChanBuf = 256

	// pcmChunkSize is the size of each PCM chunk emitted on the stream.
	pcmChunkSize = 4096
)

// ---- APIMode ----

// APIMode selects which Coqui server API the engine will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code sent to the TTS server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(e *Engine) { e.apiMode = mode }
}

// WithVoice sets the voice used for synthesis: the speaker ID in standard
// mode, or the speaker_wav reference in XTTS mode. A voice is required in
// XTTS mode; standard single-speaker models work without one.
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithOutputSampleRate sets the sample rate of the PCM emitted on streams.
// Server responses at a different rate are resampled to it. When unset (or 0),
// streams carry the server's native rate and the PCM passes through untouched.
func WithOutputSampleRate(rate int) Option {
	return func(e *Engine) { e.outputRate = rate }
}

// ---- Engine ----

// Engine implements tts.Engine backed by a locally-running Coqui TTS server.
// It is safe for concurrent use; multiple Synthesize calls may run in
// parallel.
type Engine struct {
	serverURL  string
	language   string
	voice      string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates an Engine that targets the TTS server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	e := &Engine{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// audioResult carries a synthesised PCM byte slice or an error from a worker
// goroutine.
type audioResult struct {
	pcm []byte
	err error
}

// studioSpeakersResponse represents the raw map[name]any returned by
// GET /studio_speakers. Only the keys (voice names) matter.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ---- Synthesize ----

// Synthesize splits text into sentences (on '.', '!', '?' followed by
// whitespace or end of text), issues an HTTP synthesis request per sentence,
// and emits the resulting PCM on the returned stream in sentence order.
//
// Up to sentenceLookaheadBuf HTTP requests may be in-flight concurrently to
// hide server latency while preserving output ordering.
func (e *Engine) Synthesize(ctx context.Context, text string) (*tts.Stream, error) {
	if e.voice == "" && e.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: a voice must be configured for XTTS mode")
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		rate := e.outputRate
		if rate == 0 {
			// The stream carries no audio; the rate is nominal.
			rate = fallbackRate
		}
		stream := tts.NewStream(rate, 1, streamChanBuf)
		stream.CloseSend(nil)
		return stream, nil
	}

	rate := e.outputRate
	var leading []byte
	if rate == 0 {
		// No output rate configured: bind the stream to the server's native
		// rate, taken from the first response's WAV header. Later sentences
		// are resampled to it should the server switch rates mid-reply.
		pcm, nativeRate, err := e.synthesize(ctx, sentences[0], 0)
		if err != nil {
			return nil, err
		}
		leading, rate = pcm, nativeRate
		sentences = sentences[1:]
	}

	stream := tts.NewStream(rate, 1, streamChanBuf)

	// resultQueue carries ordered future channels so the collector can drain
	// in sentence order while requests run concurrently.
	resultQueue := make(chan chan audioResult, sentenceLookaheadBuf)

	go func() {
		defer close(resultQueue)
		for _, sentence := range sentences {
			ch := make(chan audioResult, 1)
			select {
			case resultQueue <- ch:
			case <-ctx.Done():
				return
			}
			go func(s string, out chan<- audioResult) {
				pcm, _, err := e.synthesize(ctx, s, rate)
				out <- audioResult{pcm: pcm, err: err}
			}(sentence, ch)
		}
	}()

	go func() {
		if len(leading) > 0 {
			if err := sendChunks(ctx, stream, leading); err != nil {
				stream.CloseSend(err)
				return
			}
		}
		for ch := range resultQueue {
			var result audioResult
			select {
			case result = <-ch:
			case <-ctx.Done():
				stream.CloseSend(ctx.Err())
				return
			}
			if result.err != nil {
				stream.CloseSend(result.err)
				return
			}
			if err := sendChunks(ctx, stream, result.pcm); err != nil {
				stream.CloseSend(err)
				return
			}
		}
		stream.CloseSend(ctx.Err())
	}()

	return stream, nil
}

// sendChunks splits pcm into fixed-size chunks and sends them on the stream.
func sendChunks(ctx context.Context, stream *tts.Stream, pcm []byte) error {
	for len(pcm) > 0 {
		end := min(pcmChunkSize, len(pcm))
		if err := stream.Send(ctx, pcm[:end]); err != nil {
			return err
		}
		pcm = pcm[end:]
	}
	return nil
}

// synthesize dispatches one sentence to the server in the configured API mode
// and returns mono PCM along with the server's native sample rate. Stereo
// responses are down-mixed; when targetRate is non-zero and differs from the
// native rate, the PCM is resampled to it.
func (e *Engine) synthesize(ctx context.Context, sentence string, targetRate int) ([]byte, int, error) {
	var (
		wav []byte
		err error
	)
	if e.apiMode == APIModeStandard {
		wav, err = e.requestStandard(ctx, sentence)
	} else {
		wav, err = e.requestXTTS(ctx, sentence)
	}
	if err != nil {
		return nil, 0, err
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, 0, err
	}

	pcm := wav[info.DataOffset:]
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	if targetRate != 0 && info.SampleRate != targetRate && info.Channels <= 2 {
		pcm = resampleMono16(pcm, info.SampleRate, targetRate)
	}
	return pcm, info.SampleRate, nil
}

// requestXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (e *Engine) requestXTTS(ctx context.Context, sentence string) ([]byte, error) {
	body := ttsRequest{
		Text:       sentence,
		SpeakerWav: e.voice,
		Language:   e.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// requestStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters.
func (e *Engine) requestStandard(ctx context.Context, sentence string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if e.voice != "" {
		params.Set("speaker_id", e.voice)
	}
	if e.language != "" {
		params.Set("language_id", e.language)
	}

	reqURL := e.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ---- ListVoices ----

// ListVoices retrieves the list of available voice names from the Coqui
// server: GET /studio_speakers in XTTS mode, GET /details in standard mode
// (one name per speaker for multi-speaker models, the model name for
// single-speaker models). Used at startup to validate the configured voice.
func (e *Engine) ListVoices(ctx context.Context) ([]string, error) {
	if e.apiMode == APIModeStandard {
		return e.listVoicesStandard(ctx)
	}
	return e.listVoicesXTTS(ctx)
}

func (e *Engine) listVoicesXTTS(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	var raw studioSpeakersResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) listVoicesStandard(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)
		return speakers, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []string{name}, nil
}

// ---- resampling ----

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ---- helpers ----

// splitSentences breaks text into sentences at '.', '!', or '?' followed by
// whitespace or end of text, so abbreviations like "Dr." or decimals like
// "3.14" do not split mid-token. A trailing fragment without terminal
// punctuation is kept as its own sentence.
func splitSentences(text string) []string {
	var sentences []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// findSentenceBoundary returns the index of the first sentence-ending
// character ('.', '!', '?') that is either at the end of s or immediately
// followed by whitespace. Returns -1 if no boundary is found.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second (e.g., 22050, 44100, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = fallbackRate
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
