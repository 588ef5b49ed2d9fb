package fir

import "math"

// MakeComplexBandPass rotates a lowpass prototype up to the band center,
// producing complex taps for an asymmetric passband around a nonzero offset.
func MakeComplexBandPass(gain, sampleRate, lowCut, highCut, transitionWidth float64, winType WindowType) []complex64 {
	lptaps := MakeLowPass(gain, sampleRate, (highCut-lowCut)/2.0, transitionWidth, winType)

	ret := make([]complex64, len(lptaps))
	freq := math.Pi * (highCut + lowCut) / sampleRate

	var phase float64
	if len(lptaps)&1 > 0 {
		phase = -freq * float64(len(lptaps)>>1)
	} else {
		phase = -freq / 2.0 * float64((2*len(lptaps)+1)>>1)
	}

	for i, tap := range lptaps {
		s, c := math.Sincos(phase)
		ret[i] = complex(tap*float32(c), tap*float32(s))
		phase += freq
	}
	return ret
}
