// Package nco implements a numerically-controlled oscillator: a complex unit
// phasor rotated by a programmable fraction of the sample rate, used to shift
// a signal's spectrum by multiplying sample-by-sample.
package nco

import (
	"math"
	"math/cmplx"
)

const tau = 2 * math.Pi

// Renormalizing every renormInterval advances keeps the phasor magnitude
// within 1e-6 of unity over runs well past 1e9 samples.
const renormInterval = 1024

// NCO advances a unit phasor by a fixed increment per sample using a complex
// recurrence. Owned and mutated only by the stream thread.
type NCO struct {
	phasor      complex128
	rotation    complex128
	sinceRenorm int
}

func New() *NCO {
	n := &NCO{}
	n.Reset()
	n.SetFrequency(0)
	return n
}

// SetFrequency programs the phase increment as tau*ratio, where ratio is
// signed cycles per sample. Values beyond +-0.5 alias; the caller owns that
// tradeoff.
func (n *NCO) SetFrequency(ratio float64) {
	n.rotation = cmplx.Rect(1, tau*ratio)
}

// Reset returns the phasor to zero phase.
func (n *NCO) Reset() {
	n.phasor = complex(1, 0)
	n.sinceRenorm = 0
}

// Phase reports the current phase in (-pi, pi].
func (n *NCO) Phase() float64 {
	return cmplx.Phase(n.phasor)
}

// Rotate returns the phasor for the pre-advance phase, then advances by one
// increment.
func (n *NCO) Rotate() complex64 {
	out := complex64(n.phasor)
	n.advance()
	return out
}

func (n *NCO) advance() {
	n.phasor *= n.rotation
	n.sinceRenorm++
	if n.sinceRenorm >= renormInterval {
		n.phasor /= complex(cmplx.Abs(n.phasor), 0)
		n.sinceRenorm = 0
	}
}

// WorkBuffer multiplies input by the rotating phasor, writing the shifted
// samples to output. Input and output may alias.
func (n *NCO) WorkBuffer(input, output []complex64) int {
	for i := 0; i < len(input); i++ {
		output[i] = input[i] * n.Rotate()
	}
	return len(input)
}

func (n *NCO) PredictOutputSize(inputSize int) int {
	return inputSize
}
