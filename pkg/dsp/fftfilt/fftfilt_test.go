package fftfilt

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/mjibson/go-dsp/fft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func impulseResponse(t *testing.T, f *Filter, length int) []complex64 {
	t.Helper()
	in := make([]complex64, length)
	in[0] = 1
	out := f.Apply(in)
	require.Len(t, out, length/halfFrame*halfFrame)
	return out
}

func peakIndex(samples []complex64) int {
	best := 0
	bestMag := 0.0
	for i, s := range samples {
		m := cmplx.Abs(complex128(s))
		if m > bestMag {
			bestMag = m
			best = i
		}
	}
	return best
}

func TestImpulseLatencyIsConfigurationIndependent(t *testing.T) {
	designs := [][2]float64{
		{-0.25, 0.25},
		{-0.02, 0.02},
		{0.01, 0.15},  // SSB, upper sideband
		{-0.15, -0.01}, // SSB, lower sideband
	}

	for _, d := range designs {
		f := New()
		f.Design(d[0], d[1])
		out := impulseResponse(t, f, 2*FrameSize)
		assert.Equal(t, Latency, peakIndex(out),
			"design [%v, %v]", d[0], d[1])
	}
}

func TestImpulseLatencySurvivesChunking(t *testing.T) {
	const offset = 100

	f := New()
	f.Design(-0.1, 0.1)

	in := make([]complex64, 2*FrameSize)
	in[offset] = 1

	var out []complex64
	// Deliberately awkward chunk sizes.
	for _, chunk := range []int{1, 7, 500, 13, 979, 548} {
		out = append(out, f.Apply(in[:chunk])...)
		in = in[chunk:]
	}
	require.Empty(t, in)

	assert.Equal(t, offset+Latency, peakIndex(out))
}

func TestChunkInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	signal := make([]complex64, 3*FrameSize)
	for i := range signal {
		signal[i] = complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
	}

	single := New()
	single.Design(0.01, 0.12)
	want := single.Apply(signal)

	chunked := New()
	chunked.Design(0.01, 0.12)
	var got []complex64
	rest := signal
	for len(rest) > 0 {
		n := 1 + rng.Intn(700)
		if n > len(rest) {
			n = len(rest)
		}
		got = append(got, chunked.Apply(rest[:n])...)
		rest = rest[n:]
	}

	require.Equal(t, len(want), len(got))
	assert.Equal(t, want, got, "output must not depend on caller chunking")
}

func TestDesignClampsAndSwaps(t *testing.T) {
	f := New()

	low, high := f.Design(-0.9, 0.9)
	limit := 0.5 - 1.0/FrameSize
	assert.Equal(t, -limit, low)
	assert.Equal(t, limit, high)

	low, high = f.Design(0.3, -0.1)
	assert.Equal(t, -0.1, low)
	assert.Equal(t, 0.3, high)
}

func TestPassbandAndStopbandTones(t *testing.T) {
	f := New()
	f.Design(0.02, 0.12)

	measure := func(freq float64) float64 {
		f.Reset()
		const n = 8 * FrameSize
		in := make([]complex64, n)
		for i := range in {
			s, c := math.Sincos(2 * math.Pi * freq * float64(i))
			in[i] = complex(float32(c), float32(s))
		}
		out := f.Apply(in)

		// Skip the transient, average steady-state power.
		var sum float64
		steady := out[2*FrameSize:]
		for _, s := range steady {
			sum += float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		}
		return sum / float64(len(steady))
	}

	assert.InDelta(t, 1.0, measure(0.07), 0.05, "in-band tone passes at unity")
	assert.Less(t, measure(0.25), 1e-4, "out-of-band tone is rejected")
	// This close to the band edge the frequency-sampled mask leaves a
	// circular-wrap leakage floor around -33 dB, not the deep-stopband
	// floor seen far from the edges.
	assert.Less(t, measure(-0.07), 1e-3, "opposite sideband is rejected for SSB")
}

func TestFrequencyResponseAgainstReferenceFFT(t *testing.T) {
	f := New()
	f.Design(-0.1, 0.1)

	ir64 := impulseResponse(t, f, 2*FrameSize)
	ir := make([]complex128, FrameSize)
	for i := 0; i < FrameSize; i++ {
		ir[i] = complex128(ir64[i])
	}

	response := fft.FFT(ir)
	n := float64(FrameSize)
	passBin := int(0.05 * n)
	stopBin := int(0.3 * n)

	assert.InDelta(t, 1.0, cmplx.Abs(response[passBin]), 0.02)
	assert.Less(t, cmplx.Abs(response[stopBin]), 1e-3)
}

func TestRedesignInvalidatesHistory(t *testing.T) {
	f := New()
	f.Design(-0.2, 0.2)

	rng := rand.New(rand.NewSource(99))
	noise := make([]complex64, 4*FrameSize)
	for i := range noise {
		noise[i] = complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
	}
	f.Apply(noise)

	f.Design(-0.1, 0.1)

	out := f.Apply(make([]complex64, 2*FrameSize))
	for i, s := range out {
		require.Zero(t, s, "history leaked into sample %d after redesign", i)
	}
}
