package kestrel

import (
	"context"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsdr/kestrel/pkg/dsp/viz"
	"github.com/kestrelsdr/kestrel/pkg/iq"
	"github.com/kestrelsdr/kestrel/pkg/kestrel/device"
	"github.com/kestrelsdr/kestrel/pkg/message"
	"github.com/kestrelsdr/kestrel/pkg/util"
)

// Engine ties a capture device to a set of narrowband channels. Each wideband
// segment is fanned out to every channel; each channel runs its own analyzer
// worker and reconfigures through its message queue without stopping the
// stream.
type Engine struct {
	device        device.Device
	opts          Options
	writeAPI      api.WriteAPI
	rawSampleChan chan *iq.Segment
	vizServer     *viz.Server
	logger        zerolog.Logger
	guiQueue      *message.Queue

	afc *AFCWorker

	mu           sync.RWMutex
	channels     []*Channel
	channelCache map[int]struct{}

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

type EngineOption func(e *Engine) error

func WithInfluxDB(writeAPI api.WriteAPI) EngineOption {
	return func(e *Engine) error {
		e.writeAPI = writeAPI
		return nil
	}
}

func WithVizServer(vizServer *viz.Server) EngineOption {
	return func(e *Engine) error {
		e.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithEngineGUIQueue routes status reports (sample rate changes, PTT) to an
// external consumer.
func WithEngineGUIQueue(q *message.Queue) EngineOption {
	return func(e *Engine) error {
		e.guiQueue = q
		return nil
	}
}

func NewEngine(dev device.Device, options Options, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		device:        dev,
		opts:          options,
		rawSampleChan: make(chan *iq.Segment, 1),
		writeAPI:      &util.MockWriteAPI{}, // overwritten with option
		channelCache:  make(map[int]struct{}),
		logger:        log.Logger,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	// No explicit center: tune to the middle of the channel plan.
	if e.opts.CenterFreq == 0 && len(e.opts.Channels) > 0 {
		freqs := make([]int, 0, len(e.opts.Channels))
		for _, cfg := range e.opts.Channels {
			freqs = append(freqs, cfg.Frequency)
		}
		e.opts.CenterFreq = util.CenterFrequency(util.FrequencyRange(freqs...))
	}

	if e.opts.CenterFreq == 0 || e.opts.SampleRate == 0 {
		return nil, errors.New("must specify center freq and sample rate")
	}

	return e, nil
}

// CenterFreq reports the capture center frequency, explicit or derived from
// the channel plan.
func (e *Engine) CenterFreq() int {
	return e.opts.CenterFreq
}

// Stop is safe to call at any time, including before Start.
func (e *Engine) Stop() error {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	if e.vizServer != nil {
		e.vizServer.Stop(context.TODO())
	}
	e.mu.RLock()
	for _, ch := range e.channels {
		ch.Stop()
	}
	e.mu.RUnlock()
	if e.afc != nil {
		e.afc.Stop()
	}
	return e.device.Stop()
}

func (e *Engine) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	e.eg = eg
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if e.opts.SampleRate > e.device.MaxSampleRate() {
		return errors.Errorf("sample rate %d > device max sample rate %d",
			e.opts.SampleRate, e.device.MaxSampleRate())
	}

	for _, cfg := range e.opts.Channels {
		if _, err := e.AddChannel(cfg); err != nil {
			return err
		}
	}

	e.eg.Go(func() error {
		return e.device.Start(e.ctx,
			e.opts.CenterFreq,
			e.opts.SampleRate,
			e.rawSampleChan)
	})

	if e.vizServer != nil {
		e.eg.Go(func() error {
			return e.vizServer.Run(e.ctx)
		})
	}

	if e.opts.AFC.Enabled {
		e.mu.RLock()
		endpoints := make([]ChannelEndpoint, 0, len(e.channels))
		for _, ch := range e.channels {
			endpoints = append(endpoints, ch)
		}
		e.mu.RUnlock()

		e.afc = NewAFCWorker(AFCSettings{
			Interval:      e.opts.AFC.Interval,
			FreqTolerance: e.opts.AFC.FreqTolerance,
		}, endpoints,
			WithAFCLogger(e.logger),
			WithAFCGUIQueue(e.guiQueue))
		e.eg.Go(func() error {
			return e.afc.Run(e.ctx)
		})
		e.afc.StartWork()
	}

	e.eg.Go(e.processRawSamples)

	e.logger.Info().
		Str("center_freq", util.MHzToString(e.opts.CenterFreq)).
		Str("sample_rate", util.MHzToString(e.opts.SampleRate)).
		Int("channels", len(e.opts.Channels)).
		Msg("starting")

	return e.eg.Wait()
}

// AddChannel registers a new channel slice. Safe to call while the engine is
// running; the channel's worker starts immediately in that case.
func (e *Engine) AddChannel(cfg ChannelConfig) (*Channel, error) {
	e.mu.Lock()
	if _, ok := e.channelCache[cfg.Frequency]; ok {
		e.mu.Unlock()
		return nil, errors.Errorf("channel at %s already registered", util.MHzToString(cfg.Frequency))
	}
	e.mu.Unlock()

	opts := []ChannelOption{WithChannelLogger(e.logger)}
	ch, err := NewChannel(cfg, e.opts.SampleRate, e.opts.CenterFreq, opts...)
	if err != nil {
		return nil, err
	}
	if e.guiQueue != nil {
		ch.Analyzer().SetGUIQueue(e.guiQueue)
	}
	if e.vizServer != nil {
		e.vizServer.RegisterPower(ch)
	}

	e.mu.Lock()
	e.channels = append(e.channels, ch)
	e.channelCache[cfg.Frequency] = struct{}{}
	running := e.eg != nil
	e.mu.Unlock()

	if running {
		e.eg.Go(func() error {
			return ch.Start(e.ctx)
		})
	}
	return ch, nil
}

// Channels returns a snapshot of the registered channels.
func (e *Engine) Channels() []*Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Channel, len(e.channels))
	copy(out, e.channels)
	return out
}

func (e *Engine) AFC() *AFCWorker {
	return e.afc
}

func (e *Engine) processRawSamples() error {
	segNum := 0
	for {
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		case buf := <-e.rawSampleChan:
			segNum++
			buf.SegmentNumber = segNum

			var channels []*Channel
			duration := util.TimeOperationMicroseconds(func() {
				e.mu.RLock()
				channels = e.channels
				for _, ch := range channels {
					ch.Feed(buf)
				}
				e.mu.RUnlock()
			})

			if e.vizServer != nil {
				e.vizServer.Observe(buf)
			}

			go e.writeAPI.WritePoint(influxdb2.NewPoint("engine.segment",
				map[string]string{
					"center_freq": util.MHzToString(buf.CenterFreq),
				},
				map[string]interface{}{
					"sample_length": len(buf.Data),
					"sample_bytes":  len(buf.Data) * 8,
					"channels":      len(channels),
					"duration":      duration,
				}, time.Now()))
		}
	}
}
