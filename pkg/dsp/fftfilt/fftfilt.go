// Package fftfilt implements an FFT-based overlap-add convolution filter for
// complex sample streams. The passband is designed directly in the frequency
// domain, which makes asymmetric single-sideband masks as cheap as symmetric
// lowpass ones.
//
// Input is gathered into half-frame blocks internally, so the output is
// invariant to how the caller chunks the stream: splitting one block into two
// back-to-back Apply calls yields bit-identical output. Latency is exactly
// half a frame, independent of the designed response.
package fftfilt

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FrameSize is the FFT length. Power of two.
	FrameSize = 1024

	halfFrame = FrameSize / 2

	// transitionBins is the width of the raised-cosine ramp at each band
	// edge, in FFT bins. Keeps the impulse response short enough that the
	// circular wrap of the zero-padded frames stays below the noise floor.
	transitionBins = 8
)

// Latency is the fixed group delay of the filter in samples.
const Latency = halfFrame

// Filter applies a designed frequency response to an unbounded stream.
// All mutable state belongs to the stream thread; Design must only be called
// from that thread (channels deliver reconfiguration by message and apply it
// between blocks).
type Filter struct {
	fft  *fourier.CmplxFFT
	mask []complex128

	inbuf   []complex64
	inptr   int
	overlap []complex128

	frame []complex128
	coeff []complex128
}

func New() *Filter {
	f := &Filter{
		fft:     fourier.NewCmplxFFT(FrameSize),
		mask:    make([]complex128, FrameSize),
		inbuf:   make([]complex64, halfFrame),
		overlap: make([]complex128, halfFrame),
		frame:   make([]complex128, FrameSize),
		coeff:   make([]complex128, FrameSize),
	}
	f.Design(-0.25, 0.25)
	return f
}

// clampCutoff pulls a cutoff ratio into the representable band, leaving one
// bin of margin at each edge.
func clampCutoff(ratio float64) float64 {
	limit := 0.5 - 1.0/FrameSize
	if ratio < -limit {
		return -limit
	}
	if ratio > limit {
		return limit
	}
	return ratio
}

// Design builds a zero-ringing magnitude mask passing lowCutoff..highCutoff,
// both as signed fractions of the sample rate. Cutoffs outside (-0.5, 0.5)
// are clamped and inverted bounds are swapped rather than rejected; the
// applied values are returned so callers can report the correction. A
// symmetric pair (-b, b) yields a double-sideband lowpass, an asymmetric pair
// a single-sideband mask.
//
// Redesign zeroes the overlap history: old history is inconsistent with new
// taps, so one frame of transient follows a reconfiguration.
func (f *Filter) Design(lowCutoff, highCutoff float64) (low, high float64) {
	low = clampCutoff(lowCutoff)
	high = clampCutoff(highCutoff)
	if low > high {
		low, high = high, low
	}

	ramp := float64(transitionBins) / FrameSize

	for k := 0; k < FrameSize; k++ {
		freq := float64(k) / FrameSize
		if k >= halfFrame {
			freq -= 1.0
		}

		gain := edgeGain(freq, low, high, ramp)

		// (-1)^k applies a half-frame linear-phase delay, centering the
		// impulse response so the peak lands Latency samples late for any
		// design. 1/FrameSize folds in the inverse-transform scaling.
		if k%2 == 1 {
			gain = -gain
		}
		f.mask[k] = complex(gain/FrameSize, 0)
	}

	f.Reset()
	return low, high
}

func edgeGain(freq, low, high, ramp float64) float64 {
	switch {
	case freq >= low && freq <= high:
		return 1.0
	case freq < low && freq > low-ramp:
		return 0.5 + 0.5*math.Cos(math.Pi*(low-freq)/ramp)
	case freq > high && freq < high+ramp:
		return 0.5 + 0.5*math.Cos(math.Pi*(freq-high)/ramp)
	default:
		return 0.0
	}
}

// Reset zeroes the stream history without touching the designed response.
func (f *Filter) Reset() {
	for i := range f.overlap {
		f.overlap[i] = 0
	}
	for i := range f.inbuf {
		f.inbuf[i] = 0
	}
	f.inptr = 0
}

// Apply filters input, returning however many output samples completed
// frames produced (possibly none). The returned slice is owned by the caller;
// it is freshly allocated per call.
func (f *Filter) Apply(input []complex64) []complex64 {
	var out []complex64

	for _, s := range input {
		f.inbuf[f.inptr] = s
		f.inptr++
		if f.inptr == halfFrame {
			if out == nil {
				// Worst case every remaining sample completes frames.
				out = make([]complex64, 0, (len(input)/halfFrame+1)*halfFrame)
			}
			out = f.processFrame(out)
			f.inptr = 0
		}
	}

	return out
}

func (f *Filter) processFrame(out []complex64) []complex64 {
	for i := 0; i < halfFrame; i++ {
		f.frame[i] = complex128(f.inbuf[i])
	}
	for i := halfFrame; i < FrameSize; i++ {
		f.frame[i] = 0
	}

	f.coeff = f.fft.Coefficients(f.coeff, f.frame)
	for k := range f.coeff {
		f.coeff[k] *= f.mask[k]
	}
	f.frame = f.fft.Sequence(f.frame, f.coeff)

	for i := 0; i < halfFrame; i++ {
		out = append(out, complex64(f.frame[i]+f.overlap[i]))
		f.overlap[i] = f.frame[i+halfFrame]
	}
	return out
}
