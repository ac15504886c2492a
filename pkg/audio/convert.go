package audio

import (
	"encoding/binary"
	"math"
)

// PCMToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// RMS computes the root-mean-square amplitude of 16-bit PCM audio, normalised
// to [0.0, 1.0]. Returns 0 for empty or sub-sample input.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// StereoToMono down-mixes interleaved 16-bit stereo PCM to mono by averaging
// the two channels per frame.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	mono := make([]byte, frames*2)
	for i := range frames {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2 : i*4+4]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(mono[i*2:i*2+2], uint16(m))
	}
	return mono
}

// SilenceFrame returns a zeroed PCM16 payload covering frameMs milliseconds
// at the given sample rate and channel count. Used to patch short capture
// gaps left by dropped frames without breaking sequence continuity.
func SilenceFrame(sampleRate, channels, frameMs int) []byte {
	samples := sampleRate * frameMs / 1000
	return make([]byte, samples*channels*2)
}
