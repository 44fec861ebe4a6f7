package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func tone(d time.Duration, amplitude float64) []byte {
	samples := PCMBytesFor(d) / BytesPerSample
	pcm := make([]byte, samples*BytesPerSample)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*440*float64(i)/SampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*32767)))
	}
	return pcm
}

func TestPCMDurationRoundTrip(t *testing.T) {
	if n := PCMBytesFor(2 * time.Second); n != 64000 {
		t.Fatalf("expected 64000 bytes for 2s, got %d", n)
	}
	if d := PCMDuration(3200); d != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", d)
	}
	if n := PCMBytesFor(time.Duration(1)); n%BytesPerSample != 0 {
		t.Errorf("expected sample aligned length, got %d", n)
	}
	if PCMDuration(-1) != 0 || PCMBytesFor(-time.Second) != 0 {
		t.Error("expected zero for negative input")
	}
}

func TestSplitFrames(t *testing.T) {
	pcm := make([]byte, 3500)
	frames := SplitFrames(pcm, 1280)
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if len(frames[2]) != 3500-2*1280 {
		t.Errorf("unexpected tail length %d", len(frames[2]))
	}
	if SplitFrames(nil, 1280) != nil {
		t.Error("expected nil frames for empty input")
	}
	if got := SplitFrames(pcm, 0); len(got) != 1 {
		t.Errorf("expected single frame for zero frame size, got %d", len(got))
	}
}

func TestRMS(t *testing.T) {
	if rms := RMS(make([]byte, 640)); rms != 0 {
		t.Errorf("expected 0 for silence, got %f", rms)
	}
	rms := RMS(tone(100*time.Millisecond, 0.5))
	if math.Abs(rms-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("expected ~0.354 for half-scale sine, got %f", rms)
	}
	if RMS([]byte{1}) != 0 {
		t.Error("expected 0 for partial sample")
	}
}

func TestResample_Upsample(t *testing.T) {
	output := Resample([]float32{0.0, 1.0}, 8000, 16000)
	if len(output) != 4 {
		t.Fatalf("expected length 4, got %d", len(output))
	}
	if math.Abs(float64(output[0])) > 0.01 {
		t.Errorf("first sample should be ~0, got %f", output[0])
	}
	if math.Abs(float64(output[len(output)-1]-1.0)) > 0.01 {
		t.Errorf("last sample should be ~1, got %f", output[len(output)-1])
	}
}

func TestResamplePCM_TelephonyRate(t *testing.T) {
	narrow := make([]byte, 1600)
	wide := ResamplePCM(narrow, 8000, SampleRate)
	if len(wide) != 3200 {
		t.Errorf("expected 3200 bytes after upsampling, got %d", len(wide))
	}
	same := ResamplePCM(narrow, SampleRate, SampleRate)
	if len(same) != len(narrow) {
		t.Error("expected passthrough for equal rates")
	}
}

func TestInt16PCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	back := PCMBytesToInt16(Int16ToPCMBytes(samples))
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestFloat32ToInt16_Clipping(t *testing.T) {
	out := Float32ToInt16([]float32{2.0, -2.0})
	if out[0] != 32767 {
		t.Errorf("expected clip to 32767, got %d", out[0])
	}
	if out[1] != -32767 {
		t.Errorf("expected clip to -32767, got %d", out[1])
	}
}
