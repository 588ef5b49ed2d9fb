package kestrel

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsdr/kestrel/pkg/dsp/fftfilt"
	"github.com/kestrelsdr/kestrel/pkg/dsp/nco"
	"github.com/kestrelsdr/kestrel/pkg/message"
)

// magsqAlpha is the exponential-average coefficient for the power estimate.
const magsqAlpha = 0.01

// AnalyzerSettings is the immutable configuration snapshot for a
// ChannelAnalyzer. It is swapped in whole; a running analyzer never observes
// a partially-updated configuration.
type AnalyzerSettings struct {
	Frequency float64 // channel offset from stream center, Hz
	Bandwidth float64 // Hz
	LowCutoff float64 // Hz, SSB only
	SpanLog2  int     // decimate 2^SpanLog2 input samples per output sample
	SSB       bool    // asymmetric mask LowCutoff..Bandwidth instead of +-Bandwidth
	Title     string
}

// diff returns the names of fields that differ, for diagnostics. Keeping the
// diff separate from the swap leaves the DSP path independent of how (or
// whether) observers are notified.
func (s AnalyzerSettings) diff(o AnalyzerSettings) []string {
	var changed []string
	if s.Frequency != o.Frequency {
		changed = append(changed, "frequency")
	}
	if s.Bandwidth != o.Bandwidth {
		changed = append(changed, "bandwidth")
	}
	if s.LowCutoff != o.LowCutoff {
		changed = append(changed, "low_cutoff")
	}
	if s.SpanLog2 != o.SpanLog2 {
		changed = append(changed, "span_log2")
	}
	if s.SSB != o.SSB {
		changed = append(changed, "ssb")
	}
	if s.Title != o.Title {
		changed = append(changed, "title")
	}
	return changed
}

// MsgConfigureAnalyzer carries a full settings snapshot to the worker.
type MsgConfigureAnalyzer struct {
	Settings AnalyzerSettings
	Force    bool
}

// ChannelAnalyzer shifts a channel to baseband, decimates for the configured
// display span, bandpass-filters it (SSB or DSB), and continuously estimates
// mean-square power. It implements SampleSink.
type ChannelAnalyzer struct {
	logger     zerolog.Logger
	inputQueue *message.Queue
	guiQueue   *message.Queue
	downstream SampleFeeder

	samples chan []complex64
	quit    chan struct{}
	done    chan struct{}
	stopped sync.Once

	// mu guards the settings snapshot and the filter/oscillator rebuild. It
	// is never held across a filter apply: spectral filtering dominates the
	// CPU cost and must not serialize with configuration.
	mu         sync.Mutex
	settings   AnalyzerSettings
	sampleRate int
	decim      int

	osc  *nco.NCO
	filt *fftfilt.Filter

	undersampleCount int
	sum              complex128

	shifted []complex64
	stage   []complex64

	magsq        uint64 // float64 bits, written only by the worker
	inputSamples uint64
}

type AnalyzerOption func(a *ChannelAnalyzer)

func WithAnalyzerLogger(logger zerolog.Logger) AnalyzerOption {
	return func(a *ChannelAnalyzer) { a.logger = logger }
}

// WithGUIQueue sets the queue receiving report messages (sample-rate
// notifications and the like).
func WithGUIQueue(q *message.Queue) AnalyzerOption {
	return func(a *ChannelAnalyzer) { a.guiQueue = q }
}

// WithDownstream forwards the analyzer's processed output to another
// consumer.
func WithDownstream(sink SampleFeeder) AnalyzerOption {
	return func(a *ChannelAnalyzer) { a.downstream = sink }
}

// SetGUIQueue wires the report queue after construction. Must be called
// before Start.
func (a *ChannelAnalyzer) SetGUIQueue(q *message.Queue) {
	a.guiQueue = q
}

func NewChannelAnalyzer(sampleRate int, settings AnalyzerSettings, opts ...AnalyzerOption) *ChannelAnalyzer {
	a := &ChannelAnalyzer{
		logger:     log.Logger,
		inputQueue: message.NewQueue(),
		samples:    make(chan []complex64, 8),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		sampleRate: sampleRate,
		decim:      1,
		osc:        nco.New(),
		filt:       fftfilt.New(),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.applySettings(settings, true)
	return a
}

func (a *ChannelAnalyzer) InputMessageQueue() *message.Queue {
	return a.inputQueue
}

// Configure enqueues a full settings snapshot. This is the only way another
// goroutine may reconfigure a running analyzer.
func (a *ChannelAnalyzer) Configure(settings AnalyzerSettings) {
	a.inputQueue.Push(&MsgConfigureAnalyzer{Settings: settings})
}

// ShiftCenter nudges the channel offset, preserving the other settings. Used
// by frequency-control features; delivered through the queue like any other
// reconfiguration.
func (a *ChannelAnalyzer) ShiftCenter(deltaHz float64) {
	a.mu.Lock()
	settings := a.settings
	a.mu.Unlock()
	settings.Frequency += deltaHz
	a.Configure(settings)
}

// GetMagSq returns the current mean-square power estimate. Safe for
// concurrent read; the worker publishes it with a single atomic store so a
// torn value is never observed.
func (a *ChannelAnalyzer) GetMagSq() float64 {
	return math.Float64frombits(atomic.LoadUint64(&a.magsq))
}

func (a *ChannelAnalyzer) GetSampleRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleRate
}

// InputSamples reports how many samples the worker has consumed.
func (a *ChannelAnalyzer) InputSamples() uint64 {
	return atomic.LoadUint64(&a.inputSamples)
}

// Feed hands a block to the worker, blocking only if its buffer is full and
// never past a Stop.
func (a *ChannelAnalyzer) Feed(samples []complex64) {
	select {
	case a.samples <- samples:
	case <-a.quit:
	}
}

// Stop requests worker exit and waits for it. Idempotent.
func (a *ChannelAnalyzer) Stop() {
	a.stopped.Do(func() { close(a.quit) })
	<-a.done
}

// Start resets the DSP state and runs the worker loop: drain the message
// queue, process the next block, repeat.
func (a *ChannelAnalyzer) Start(ctx context.Context) error {
	defer close(a.done)

	a.mu.Lock()
	a.osc.Reset()
	a.filt.Reset()
	a.undersampleCount = 0
	a.sum = 0
	a.mu.Unlock()
	atomic.StoreUint64(&a.magsq, 0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.quit:
			return nil
		case <-a.inputQueue.Wake():
			a.drainMessages()
		case blk := <-a.samples:
			a.drainMessages()
			a.processBlock(blk)
		}
	}
}

func (a *ChannelAnalyzer) drainMessages() {
	for {
		msg, ok := a.inputQueue.Pop()
		if !ok {
			return
		}
		if !a.handleMessage(msg) {
			a.logger.Debug().Str("kind", fmt.Sprintf("%T", msg)).Msg("unhandled message")
		}
	}
}

func (a *ChannelAnalyzer) handleMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *MsgConfigureAnalyzer:
		a.applySettings(m.Settings, m.Force)
		return true
	case *MsgSignalNotification:
		a.mu.Lock()
		a.sampleRate = m.SampleRate
		settings := a.settings
		a.mu.Unlock()

		// Cutoff ratios depend on the rate, so rebuild in place.
		a.applySettings(settings, true)

		// Report synchronously with the internal change.
		if a.guiQueue != nil {
			a.guiQueue.Push(&MsgSampleRateNotification{SampleRate: m.SampleRate})
		}
		return true
	default:
		return false
	}
}

// applySettings swaps in a settings snapshot, rebuilding the oscillator and
// filter as one atomic step under the settings lock.
func (a *ChannelAnalyzer) applySettings(settings AnalyzerSettings, force bool) {
	a.mu.Lock()
	changed := a.settings.diff(settings)
	if len(changed) == 0 && !force {
		a.mu.Unlock()
		return
	}

	rate := float64(a.sampleRate)

	spanLog2 := settings.SpanLog2
	if spanLog2 < 0 {
		spanLog2 = 0
	} else if spanLog2 > 16 {
		spanLog2 = 16
	}

	a.settings = settings
	a.decim = 1 << spanLog2
	a.osc.SetFrequency(-settings.Frequency / rate)

	// The filter sees the decimated rate.
	chanRate := rate / float64(a.decim)
	var lowApplied, highApplied float64
	if settings.SSB {
		lowApplied, highApplied = a.filt.Design(settings.LowCutoff/chanRate, settings.Bandwidth/chanRate)
	} else {
		lowApplied, highApplied = a.filt.Design(-settings.Bandwidth/chanRate, settings.Bandwidth/chanRate)
	}
	a.undersampleCount = 0
	a.sum = 0
	a.mu.Unlock()

	a.logger.Debug().
		Strs("changed", changed).
		Float64("frequency", settings.Frequency).
		Float64("bandwidth", settings.Bandwidth).
		Float64("low_cutoff", settings.LowCutoff).
		Int("span_log2", spanLog2).
		Bool("ssb", settings.SSB).
		Float64("low_applied", lowApplied*chanRate).
		Float64("high_applied", highApplied*chanRate).
		Msg("analyzer configured")
}

// processBlock is the steady-state path: oscillator shift, span decimation by
// summation, spectral filter, power estimate. The settings lock is taken only
// to snapshot the active decimation, never across the filter apply.
func (a *ChannelAnalyzer) processBlock(blk []complex64) {
	a.mu.Lock()
	decim := a.decim
	a.mu.Unlock()

	need := a.osc.PredictOutputSize(len(blk))
	if cap(a.shifted) < need {
		a.shifted = make([]complex64, need)
	}
	shifted := a.shifted[:a.osc.WorkBuffer(blk, a.shifted[:need])]

	if cap(a.stage) < len(shifted) {
		a.stage = make([]complex64, 0, len(shifted))
	}
	stage := a.stage[:0]

	for _, c := range shifted {
		a.sum += complex128(c)
		a.undersampleCount++
		if a.undersampleCount == decim {
			avg := a.sum / complex(float64(decim), 0)
			stage = append(stage, complex64(avg))
			a.sum = 0
			a.undersampleCount = 0
		}
	}

	out := a.filt.Apply(stage)

	magsq := a.GetMagSq()
	for _, s := range out {
		p := float64(real(s))*float64(real(s)) + float64(imag(s))*float64(imag(s))
		magsq = (1-magsqAlpha)*magsq + magsqAlpha*p
	}
	if len(out) > 0 {
		atomic.StoreUint64(&a.magsq, math.Float64bits(magsq))
	}

	atomic.AddUint64(&a.inputSamples, uint64(len(blk)))

	if a.downstream != nil && len(out) > 0 {
		a.downstream.Feed(out)
	}
}
