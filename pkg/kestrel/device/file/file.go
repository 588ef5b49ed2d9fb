package file

import (
	"context"
	"os"
	"time"

	"github.com/kestrelsdr/kestrel/pkg/iq"
)

// FileDevice replays a CS8 capture at a paced rate, standing in for live
// hardware during development and tests.
type FileDevice struct {
	readFile    *os.File
	readSize    int
	timeBetween time.Duration
	sampleRate  int
	centerFreq  int
}

func NewFileDevice(path string, readSize int, sampleRate int, centerFreq int, timeBetween time.Duration) (*FileDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &FileDevice{
		readFile:    f,
		readSize:    readSize,
		timeBetween: timeBetween,
		sampleRate:  sampleRate,
		centerFreq:  centerFreq,
	}, nil
}

func (f *FileDevice) Start(ctx context.Context, centerFreq int, sampleRate int, samples chan *iq.Segment) error {
	tick := time.NewTicker(f.timeBetween)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			buf := make([]byte, f.readSize)
			n, err := f.readFile.Read(buf)
			if err != nil {
				return err
			}

			seg := iq.SegmentCS8{
				SampleRate: f.sampleRate,
				CenterFreq: f.centerFreq,
				Data:       buf[:n],
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case samples <- seg.ToComplex64():
			}
		}
	}
}

func (f *FileDevice) Stop() error {
	return f.readFile.Close()
}

func (f *FileDevice) MaxSampleRate() int {
	return 20e6
}
