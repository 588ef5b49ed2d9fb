package kestrel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsdr/kestrel/pkg/message"
)

// ChannelEndpoint is the query/command boundary the AFC loop uses to observe
// and correct a channel. Implementations are injected; the coordinator never
// reaches into channel internals.
type ChannelEndpoint interface {
	// FrequencyError reports the current offset from the wanted frequency
	// in Hz. Must be a thread-safe read.
	FrequencyError() float64
	// ApplyShift asks the channel to move by deltaHz. Implementations
	// deliver this through the channel's own message queue.
	ApplyShift(deltaHz float64)
}

// AFCSettings is the immutable configuration snapshot for the coordinator.
type AFCSettings struct {
	Interval      time.Duration
	FreqTolerance float64 // Hz; errors at or below are left alone
	Title         string
}

func (s AFCSettings) diff(o AFCSettings) []string {
	var changed []string
	if s.Interval != o.Interval {
		changed = append(changed, "interval")
	}
	if s.FreqTolerance != o.FreqTolerance {
		changed = append(changed, "freq_tolerance")
	}
	if s.Title != o.Title {
		changed = append(changed, "title")
	}
	return changed
}

type MsgConfigureAFC struct {
	Settings AFCSettings
	Force    bool
}

// msgAFCWork toggles the correction timer.
type msgAFCWork struct {
	working bool
}

// AFCWorker is a timer-driven control loop: on each tick while running it
// polls its endpoints and issues corrective shifts beyond the tolerance. PTT
// transitions arrive on the same queue and gate the correction (no
// corrections while transmitting).
type AFCWorker struct {
	logger     zerolog.Logger
	inputQueue *message.Queue
	guiQueue   *message.Queue
	endpoints  []ChannelEndpoint

	quit    chan struct{}
	done    chan struct{}
	stopped sync.Once

	mu          sync.Mutex
	settings    AFCSettings
	running     bool
	tx          bool
	errAccum    float64
	corrections uint64
}

type AFCOption func(w *AFCWorker)

func WithAFCLogger(logger zerolog.Logger) AFCOption {
	return func(w *AFCWorker) { w.logger = logger }
}

func WithAFCGUIQueue(q *message.Queue) AFCOption {
	return func(w *AFCWorker) { w.guiQueue = q }
}

func NewAFCWorker(settings AFCSettings, endpoints []ChannelEndpoint, opts ...AFCOption) *AFCWorker {
	w := &AFCWorker{
		logger:     log.Logger,
		inputQueue: message.NewQueue(),
		endpoints:  endpoints,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.applySettings(settings, true)
	return w
}

func (w *AFCWorker) InputMessageQueue() *message.Queue {
	return w.inputQueue
}

func (w *AFCWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *AFCWorker) IsTransmitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tx
}

// Corrections reports how many corrective shifts have been issued since the
// last reset.
func (w *AFCWorker) Corrections() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.corrections
}

// StartWork enables the correction timer.
func (w *AFCWorker) StartWork() {
	w.inputQueue.Push(&msgAFCWork{working: true})
}

// StopWork disables the correction timer. The worker loop keeps draining
// messages.
func (w *AFCWorker) StopWork() {
	w.inputQueue.Push(&msgAFCWork{working: false})
}

// Reset clears the transient error accumulation.
func (w *AFCWorker) Reset() {
	w.mu.Lock()
	w.errAccum = 0
	w.corrections = 0
	w.mu.Unlock()
}

func (w *AFCWorker) Configure(settings AFCSettings) {
	w.inputQueue.Push(&MsgConfigureAFC{Settings: settings})
}

func (w *AFCWorker) Stop() {
	w.stopped.Do(func() { close(w.quit) })
	<-w.done
}

// Run is the coordinator's worker loop. The timer is the single time-driven
// trigger; everything else arrives by message.
func (w *AFCWorker) Run(ctx context.Context) error {
	defer close(w.done)

	var ticker *time.Ticker
	var tickC <-chan time.Time

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.quit:
			return nil

		case <-w.inputQueue.Wake():
			for {
				msg, ok := w.inputQueue.Pop()
				if !ok {
					break
				}
				if !w.handleMessage(msg) {
					w.logger.Debug().Str("kind", fmt.Sprintf("%T", msg)).Msg("unhandled message")
					continue
				}

				switch msg.(type) {
				case *msgAFCWork, *MsgConfigureAFC:
					// Rebuild the timer against the current snapshot.
					w.mu.Lock()
					running := w.running
					interval := w.settings.Interval
					w.mu.Unlock()

					stopTicker()
					if running && interval > 0 {
						ticker = time.NewTicker(interval)
						tickC = ticker.C
					}
				}
			}

		case <-tickC:
			w.updateTarget()
		}
	}
}

func (w *AFCWorker) handleMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *MsgConfigureAFC:
		w.applySettings(m.Settings, m.Force)
		return true

	case *msgAFCWork:
		w.mu.Lock()
		w.running = m.working
		w.mu.Unlock()
		return true

	case *MsgPTT:
		w.mu.Lock()
		w.tx = m.Tx
		w.mu.Unlock()
		w.logger.Info().Bool("tx", m.Tx).Msg("ptt")
		if w.guiQueue != nil {
			w.guiQueue.Push(&MsgPTT{Tx: m.Tx})
		}
		return true

	default:
		return false
	}
}

// applySettings swaps the configuration on the side, never during a held
// tick callback.
func (w *AFCWorker) applySettings(settings AFCSettings, force bool) {
	w.mu.Lock()
	changed := w.settings.diff(settings)
	if len(changed) == 0 && !force {
		w.mu.Unlock()
		return
	}
	w.settings = settings
	w.mu.Unlock()

	w.logger.Debug().
		Strs("changed", changed).
		Dur("interval", settings.Interval).
		Float64("freq_tolerance", settings.FreqTolerance).
		Msg("afc configured")
}

func (w *AFCWorker) updateTarget() {
	w.mu.Lock()
	tolerance := w.settings.FreqTolerance
	tx := w.tx
	w.mu.Unlock()

	if tx {
		return
	}

	for _, endpoint := range w.endpoints {
		freqError := endpoint.FrequencyError()

		w.mu.Lock()
		w.errAccum += freqError
		w.mu.Unlock()

		if freqError > tolerance || freqError < -tolerance {
			endpoint.ApplyShift(-freqError)
			w.mu.Lock()
			w.corrections++
			w.mu.Unlock()

			w.logger.Debug().
				Float64("freq_error", freqError).
				Msg("issuing frequency correction")
		}
	}
}
