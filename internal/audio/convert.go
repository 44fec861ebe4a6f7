package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Pipeline audio is 16-bit little-endian mono PCM at 16 kHz.
const (
	SampleRate     = 16000
	BytesPerSample = 2
	BytesPerSecond = SampleRate * BytesPerSample

	pcmMaxAmplitude = 32768.0
)

// PCMDuration returns how long n bytes of pipeline PCM take to play.
func PCMDuration(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / BytesPerSecond
}

// PCMBytesFor returns the byte length of d worth of pipeline PCM, aligned to a whole sample.
func PCMBytesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(int64(d) * BytesPerSecond / int64(time.Second))
	return n - n%BytesPerSample
}

// SplitFrames cuts pcm into frames of frameBytes. The last frame may be shorter.
// Frames share the backing array of pcm.
func SplitFrames(pcm []byte, frameBytes int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}
	if frameBytes <= 0 || frameBytes >= len(pcm) {
		return [][]byte{pcm}
	}
	frames := make([][]byte, 0, (len(pcm)+frameBytes-1)/frameBytes)
	for start := 0; start < len(pcm); start += frameBytes {
		end := min(start+frameBytes, len(pcm))
		frames = append(frames, pcm[start:end])
	}
	return frames
}

// RMS returns the normalised root-mean-square energy (0..1) of 16-bit PCM.
func RMS(pcm []byte) float64 {
	numSamples := len(pcm) / BytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}

// ResamplePCM converts 16-bit PCM between sample rates. Telephony bridges
// usually deliver 8 kHz audio.
func ResamplePCM(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	return Int16ToPCMBytes(ResampleInt16(PCMBytesToInt16(pcm), fromRate, toRate))
}

func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	output := make([]float32, int(math.Ceil(float64(len(input))*ratio)))
	for i := range output {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		switch {
		case srcIdx+1 < len(input):
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		case srcIdx < len(input):
			output[i] = input[srcIdx]
		}
	}
	return output
}

func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}
	return Float32ToInt16(Resample(Int16ToFloat32(samples), fromRate, toRate))
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(s))
	}
	return pcm
}

func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / pcmMaxAmplitude
	}
	return result
}

func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		result[i] = int16(s * 32767.0)
	}
	return result
}
