package rtlsdr

import (
	"context"
	"sync"

	gsdr "github.com/jpoirier/gortlsdr"

	"github.com/kestrelsdr/kestrel/pkg/iq"
)

const maxSampleRate = 2e6

type RTLSDRDevice struct {
	deviceIdx int
	device    *gsdr.Context

	centerFreq int
	sampleRate int

	outputChan chan *iq.Segment
	ctx        context.Context
	wg         sync.WaitGroup
}

func NewRTLSDRDevice(deviceIdx int) (*RTLSDRDevice, error) {
	return &RTLSDRDevice{deviceIdx: deviceIdx}, nil
}

func (r *RTLSDRDevice) MaxSampleRate() int {
	return maxSampleRate
}

func (r *RTLSDRDevice) callback(buf []byte) {
	r.wg.Add(1)
	defer r.wg.Done()

	seg := iq.SegmentCU8{
		SampleRate: r.sampleRate,
		CenterFreq: r.centerFreq,
		Data:       buf,
	}

	select {
	case <-r.ctx.Done():
	case r.outputChan <- seg.ToComplex64():
	}
}

func (r *RTLSDRDevice) Start(ctx context.Context, centerFreq int, sampleRate int, samples chan *iq.Segment) error {
	var err error
	r.device, err = gsdr.Open(r.deviceIdx)
	if err != nil {
		return err
	}
	r.ctx = ctx
	r.centerFreq = centerFreq
	r.sampleRate = sampleRate
	r.outputChan = samples

	if err := r.device.SetCenterFreq(r.centerFreq); err != nil {
		return err
	}
	if err := r.device.SetSampleRate(r.sampleRate); err != nil {
		return err
	}
	if err := r.device.ResetBuffer(); err != nil {
		return err
	}

	r.wg.Add(1)
	defer r.wg.Done()
	return r.device.ReadAsync(r.callback, nil, 0, 0)
}

func (r *RTLSDRDevice) Stop() error {
	err := r.device.CancelAsync()
	r.wg.Wait()
	if err != nil {
		return err
	}
	return r.device.Close()
}
