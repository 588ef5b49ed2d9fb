package fir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowPassUnityDCGain(t *testing.T) {
	taps := MakeLowPass(1.0, 48000, 4000, 1000, Hamming)

	var sum float64
	for _, tap := range taps {
		sum += float64(tap)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, 1, len(taps)%2, "tap count must be odd")
}

func TestLowPassStopband(t *testing.T) {
	const (
		rate = 48000.0
		cut  = 4000.0
	)
	taps := MakeLowPass(1.0, rate, cut, 1000, Hamming)

	// Direct DFT of the taps at a stopband frequency.
	responseAt := func(freq float64) float64 {
		var re, im float64
		for i, tap := range taps {
			s, c := math.Sincos(-2 * math.Pi * freq / rate * float64(i))
			re += float64(tap) * c
			im += float64(tap) * s
		}
		return math.Hypot(re, im)
	}

	assert.Less(t, responseAt(8000), 0.01)
	assert.InDelta(t, 1.0, responseAt(0), 1e-6)
}

func TestComplexBandPassCentersPassband(t *testing.T) {
	const rate = 100000.0
	taps := MakeComplexBandPass(1.0, rate, 10000, 20000, 2500, Hamming)

	responseAt := func(freq float64) float64 {
		var sum complex128
		for i, tap := range taps {
			s, c := math.Sincos(-2 * math.Pi * freq / rate * float64(i))
			sum += complex128(tap) * complex(c, s)
		}
		return math.Sqrt(real(sum)*real(sum) + imag(sum)*imag(sum))
	}

	assert.InDelta(t, 1.0, responseAt(15000), 0.02, "band center passes")
	assert.Less(t, responseAt(-15000), 0.01, "mirror band rejected")
	assert.Less(t, responseAt(40000), 0.01, "out of band rejected")
}
