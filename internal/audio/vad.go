package audio

// DefaultEnergyThreshold is the RMS level above which a chunk counts as speech.
// Typical voice RMS is 0.05-0.3 for normalised audio; line noise sits well below 0.02.
const DefaultEnergyThreshold = 0.02

// EnergyGate is a stateless voice activity gate over chunk RMS energy.
type EnergyGate struct {
	Threshold float64
}

func NewEnergyGate(threshold float64) EnergyGate {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return EnergyGate{Threshold: threshold}
}

// Voiced reports whether pcm carries speech energy, along with the measured RMS.
func (g EnergyGate) Voiced(pcm []byte) (bool, float64) {
	rms := RMS(pcm)
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return rms >= threshold, rms
}
