package kestrel

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/racerxdl/segdsp/dsp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsdr/kestrel/pkg/dsp/filters/fir"
	"github.com/kestrelsdr/kestrel/pkg/iq"
	"github.com/kestrelsdr/kestrel/pkg/util"
)

// ccWorker is the complex-in complex-out block contract shared by the segdsp
// filters.
type ccWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

// ChannelConfig describes one narrowband slice of the wideband capture.
type ChannelConfig struct {
	Name      string  `yaml:"name"`
	Frequency int     `yaml:"frequency"`
	Bandwidth int     `yaml:"bandwidth"`
	SpanLog2  int     `yaml:"span_log2"`
	SSB       bool    `yaml:"ssb"`
	LowCutoff float64 `yaml:"low_cutoff"`
}

// Channel owns the wideband-side front end for one frequency: a complex
// bandpass decimator selects the slice around the channel, and the residual
// offset after decimation is handed to the analyzer's oscillator. The channel
// also exposes the endpoint surface the AFC loop corrects through.
type Channel struct {
	logger zerolog.Logger

	name       string
	inputRate  int
	centerFreq int

	mu        sync.Mutex
	frequency int

	decimation  int
	channelRate int
	decimator   ccWorker

	analyzer *ChannelAnalyzer

	freqError uint64 // atomic, math.Float64bits
}

type ChannelOption func(c *Channel)

func WithChannelLogger(logger zerolog.Logger) ChannelOption {
	return func(c *Channel) { c.logger = logger }
}

// channelDecimation picks the largest power-of-two decimation that keeps the
// decimated rate comfortably wider than the channel bandwidth.
func channelDecimation(inputRate, bandwidth int) int {
	dec := 1
	for inputRate/(dec*2) >= bandwidth*8 {
		dec *= 2
	}
	return dec
}

func NewChannel(cfg ChannelConfig, inputRate, centerFreq int, opts ...ChannelOption) (*Channel, error) {
	if cfg.Bandwidth <= 0 {
		return nil, errors.Errorf("channel %s: bandwidth must be positive", cfg.Name)
	}
	if cfg.Frequency < centerFreq-inputRate/2 || cfg.Frequency > centerFreq+inputRate/2 {
		return nil, errors.Errorf("channel %s: frequency %s outside capture range",
			cfg.Name, util.MHzToString(cfg.Frequency))
	}

	c := &Channel{
		logger:     log.Logger,
		name:       cfg.Name,
		inputRate:  inputRate,
		centerFreq: centerFreq,
		frequency:  cfg.Frequency,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.decimation = channelDecimation(inputRate, cfg.Bandwidth)
	c.channelRate = inputRate / c.decimation

	shiftFreq := cfg.Frequency - centerFreq

	bpfCoeffs := fir.MakeComplexBandPass(1.0,
		float64(inputRate),
		float64(shiftFreq)-float64(c.channelRate)/2.0,
		float64(shiftFreq)+float64(c.channelRate)/2.0,
		float64(c.channelRate)/2,
		fir.Hamming,
	)
	// The decimator correlates against the taps without reversing them,
	// which mirrors the designed passband. Conjugating the taps lands it
	// back on +shiftFreq.
	for i := range bpfCoeffs {
		bpfCoeffs[i] = complex(real(bpfCoeffs[i]), -imag(bpfCoeffs[i]))
	}
	c.decimator = dsp.MakeDecimationCTFirFilter(c.decimation, bpfCoeffs)

	// The decimator leaves the slice offset by whatever fraction of the
	// channel rate the shift aliased to.
	bfoFreq := float64(shiftFreq) / float64(c.channelRate)
	bfoFreq -= math.Floor(bfoFreq)
	if bfoFreq > 0.5 {
		bfoFreq -= 1.0
	}

	c.analyzer = NewChannelAnalyzer(c.channelRate, AnalyzerSettings{
		Frequency: bfoFreq * float64(c.channelRate),
		Bandwidth: float64(cfg.Bandwidth),
		LowCutoff: cfg.LowCutoff,
		SpanLog2:  cfg.SpanLog2,
		SSB:       cfg.SSB,
		Title:     cfg.Name,
	}, WithAnalyzerLogger(c.logger))

	c.logger.Info().
		Str("channel", cfg.Name).
		Str("frequency", util.MHzToString(cfg.Frequency)).
		Str("shift_freq", util.MHzToString(shiftFreq)).
		Int("decimation", c.decimation).
		Int("channel_rate", c.channelRate).
		Str("bfo_freq", util.MHzToString(int(bfoFreq*float64(c.channelRate)))).
		Msg("initialized channel")

	return c, nil
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frequency
}

func (c *Channel) ChannelRate() int {
	return c.channelRate
}

func (c *Channel) Analyzer() *ChannelAnalyzer {
	return c.analyzer
}

// GetMagSq reports the analyzer's power estimate, satisfying the viz
// server's power-source contract.
func (c *Channel) GetMagSq() float64 {
	return c.analyzer.GetMagSq()
}

// Start runs the analyzer worker until the context closes or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	return c.analyzer.Start(ctx)
}

func (c *Channel) Stop() {
	c.analyzer.Stop()
}

// Feed decimates one wideband segment down to the channel rate and hands it
// to the analyzer. Called from the engine's fan-out goroutine. The output
// buffer is handed off to the analyzer worker, so each block gets its own.
func (c *Channel) Feed(seg *iq.Segment) {
	out := make([]complex64, c.decimator.PredictOutputSize(len(seg.Data))*2)
	n := c.decimator.WorkBuffer(seg.Data, out)
	c.analyzer.Feed(out[:n])
}

// SetFrequencyError records the latest measured carrier offset in Hz. Fed by
// whatever tracks the channel's carrier; read by the AFC loop.
func (c *Channel) SetFrequencyError(errHz float64) {
	atomic.StoreUint64(&c.freqError, math.Float64bits(errHz))
}

// FrequencyError implements ChannelEndpoint.
func (c *Channel) FrequencyError() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.freqError))
}

// ApplyShift implements ChannelEndpoint. The shift goes through the
// analyzer's message queue so the correction lands between sample blocks.
func (c *Channel) ApplyShift(deltaHz float64) {
	c.mu.Lock()
	c.frequency += int(deltaHz)
	c.mu.Unlock()

	c.analyzer.ShiftCenter(deltaHz)
	c.SetFrequencyError(0)
}
