package viz

import (
	"bytes"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/kestrelsdr/kestrel/pkg/dsp/filters/fir"
)

// spectrumAvg is the per-render exponential average applied to bin
// magnitudes, smoothing the display between refreshes.
const spectrumAvg = 0.10

// SpectrumPlotter keeps the most recent window of complex samples and renders
// an averaged power spectrum on demand.
type SpectrumPlotter struct {
	mu         sync.Mutex
	buf        []complex64
	avgPower   []float64
	size       int
	sampleRate int
	name       string

	plotOptions []PlotOptions
}

func NewSpectrumPlotter(name string, size, sampleRate int) *SpectrumPlotter {
	return &SpectrumPlotter{
		buf:        make([]complex64, size),
		avgPower:   make([]float64, size),
		size:       size,
		sampleRate: sampleRate,
		name:       name,
	}
}

func (p *SpectrumPlotter) Name() string {
	return p.name
}

func (p *SpectrumPlotter) AddPlotOption(opt PlotOptions) {
	p.plotOptions = append(p.plotOptions, opt)
}

// Append keeps the last size samples; older data scrolls out.
func (p *SpectrumPlotter) Append(s []complex64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(s) >= p.size {
		copy(p.buf, s[len(s)-p.size:])
		return
	}
	copy(p.buf, p.buf[len(s):])
	copy(p.buf[p.size-len(s):], s)
}

// RenderPNG windows the buffered samples, transforms them, and plots bin
// power in dB against frequency.
func (p *SpectrumPlotter) RenderPNG() ([]byte, error) {
	p.mu.Lock()
	data := make([]complex128, p.size)
	win := fir.Window(fir.Blackman, p.size)
	for i, s := range p.buf {
		data[i] = complex128(s) * complex(win[i]/(0.42*float64(p.size)), 0)
	}
	p.mu.Unlock()

	f := fourier.NewCmplxFFT(p.size)
	coeffs := f.Coefficients(nil, data)

	pl := plotWithDefaults()
	pl.Title.Text = p.name
	pl.X.Label.Text = "Frequency"
	pl.Y.Label.Text = "Power (dB)"
	pl.Y.Max = 0
	pl.Y.Min = -100

	for _, opt := range p.plotOptions {
		opt(pl)
	}
	pl.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(coeffs))
	p.mu.Lock()
	for i := range coeffs {
		shiftIdx := f.ShiftIdx(i)
		freq := f.Freq(shiftIdx) * float64(p.sampleRate)
		mag := cmplx.Abs(coeffs[shiftIdx])

		p.avgPower[i] = (1.0-spectrumAvg)*p.avgPower[i] + spectrumAvg*mag
		db := -200.0
		if p.avgPower[i] > 0 {
			db = 20 * math.Log10(p.avgPower[i])
		}
		pts[i] = plotter.XY{X: freq, Y: db}
	}
	p.mu.Unlock()

	if err := plotutil.AddLines(pl, "spectrum", pts); err != nil {
		return nil, err
	}

	var imageData bytes.Buffer
	w, err := pl.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return imageData.Bytes(), nil
}
