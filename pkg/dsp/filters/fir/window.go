package fir

import "math"

type WindowType int

const (
	Hamming WindowType = iota
	Hann
	Blackman
)

// Empirical max stopband attenuation per window, used for tap-count sizing.
var windowMaxAttenuation = map[WindowType]int{
	Hamming:  53,
	Hann:     44,
	Blackman: 74,
}

func windowTaps(winType WindowType, ntaps int) []float64 {
	ret := make([]float64, ntaps)
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		x := 2 * math.Pi * float64(i) / M
		switch winType {
		case Hann:
			ret[i] = 0.5 - 0.5*math.Cos(x)
		case Blackman:
			ret[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		default:
			ret[i] = 0.54 - 0.46*math.Cos(x)
		}
	}
	return ret
}

// Window returns the n-point window function, for callers that window data
// directly rather than filter taps.
func Window(winType WindowType, n int) []float64 {
	return windowTaps(winType, n)
}

func computeNTaps(sampleRate, transitionWidth float64, winType WindowType) int {
	ntaps := int(float64(windowMaxAttenuation[winType]) * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1 // odd tap count keeps the filter symmetric around one tap
	return ntaps
}
