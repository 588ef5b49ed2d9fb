package hackrf

import (
	"context"
	"os"

	"github.com/samuel/go-hackrf/hackrf"

	"github.com/kestrelsdr/kestrel/pkg/iq"
)

const maxSampleRate = 20e6

type HackRFDevice struct {
	device *hackrf.Device

	centerFreq int
	sampleRate int

	outputChan chan *iq.Segment
	ctx        context.Context

	outputFile *os.File
}

func NewHackRFDevice() (*HackRFDevice, error) {
	device, err := hackrf.Open()
	if err != nil {
		return nil, err
	}
	return &HackRFDevice{device: device}, nil
}

// NewRecordingHackRFDevice captures raw CS8 to a file instead of feeding the
// engine, for later replay through the file device or a FileSource channel.
func NewRecordingHackRFDevice(recordLocation string) (*HackRFDevice, error) {
	device, err := hackrf.Open()
	if err != nil {
		return nil, err
	}

	outFile, err := os.Create(recordLocation)
	if err != nil {
		return nil, err
	}

	return &HackRFDevice{
		device:     device,
		outputFile: outFile,
	}, nil
}

func (h *HackRFDevice) MaxSampleRate() int {
	return maxSampleRate
}

func (h *HackRFDevice) callback(buf []byte) error {
	if h.outputFile != nil {
		_, err := h.outputFile.Write(buf)
		return err
	}

	seg := iq.SegmentCS8{
		SampleRate: h.sampleRate,
		CenterFreq: h.centerFreq,
		Data:       make([]byte, len(buf)),
	}
	copy(seg.Data, buf)

	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	case h.outputChan <- seg.ToComplex64():
	}
	return nil
}

func (h *HackRFDevice) Start(ctx context.Context, centerFreq int, sampleRate int, samples chan *iq.Segment) error {
	h.ctx = ctx
	h.outputChan = samples
	h.centerFreq = centerFreq
	h.sampleRate = sampleRate

	if err := h.device.SetFreq(uint64(h.centerFreq)); err != nil {
		return err
	}
	if err := h.device.SetSampleRateManual(h.sampleRate*2, 2); err != nil {
		return err
	}
	if err := h.device.SetLNAGain(39); err != nil {
		return err
	}
	if err := h.device.SetBasebandFilterBandwidth(h.sampleRate); err != nil {
		return err
	}
	if err := h.device.SetAmpEnable(true); err != nil {
		return err
	}
	return h.device.StartRX(h.callback)
}

func (h *HackRFDevice) Stop() error {
	if h.outputFile != nil {
		defer h.outputFile.Close()
	}
	return h.device.StopRX()
}
