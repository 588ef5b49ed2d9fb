package fir

import "math"

// MakeLowPass designs windowed-sinc lowpass taps with unity gain at DC
// scaled by gain.
func MakeLowPass(gain, sampleRate, cutFrequency, transitionWidth float64, winType WindowType) []float32 {
	ntaps := computeNTaps(sampleRate, transitionWidth, winType)
	taps := make([]float32, ntaps)
	w := windowTaps(winType, ntaps)

	M := (ntaps - 1) / 2
	fwT0 := 2 * math.Pi * cutFrequency / sampleRate

	for i := -M; i <= M; i++ {
		if i == 0 {
			taps[M] = float32(fwT0 / math.Pi * w[M])
		} else {
			fi := float64(i)
			taps[i+M] = float32(math.Sin(fi*fwT0) / (fi * math.Pi) * w[i+M])
		}
	}

	fmax := float64(taps[M])
	for i := 1; i <= M; i++ {
		fmax += 2 * float64(taps[i+M])
	}
	gain /= fmax

	for i := range taps {
		taps[i] = float32(float64(taps[i]) * gain)
	}
	return taps
}
