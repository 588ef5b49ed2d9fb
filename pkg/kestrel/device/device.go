package device

import (
	"context"

	"github.com/kestrelsdr/kestrel/pkg/iq"
)

// Device is the capture-side collaborator: it pushes complex sample segments
// into the provided channel until the context closes or Stop is called.
type Device interface {
	Start(ctx context.Context, centerFreq int, sampleRate int, samples chan *iq.Segment) error
	Stop() error
	MaxSampleRate() int
}
