package kestrel

import (
	"context"

	"github.com/kestrelsdr/kestrel/pkg/message"
)

// SampleSink is a channel processor fed blocks of complex baseband samples.
// Each sink owns exactly one worker goroutine (its Start loop) and one
// inbound message queue. All reconfiguration goes through the queue; no other
// goroutine may touch a running sink's DSP state.
type SampleSink interface {
	// Start runs the worker loop until ctx is canceled or Stop is called.
	// It resets the sink's DSP state before processing.
	Start(ctx context.Context) error
	// Stop asks the worker to exit. Idempotent, safe from any goroutine.
	Stop()
	// Feed hands a block to the worker. Block boundaries carry no meaning.
	Feed(samples []complex64)
	InputMessageQueue() *message.Queue
}

// SampleSource is the pull-side counterpart: the owner of the downstream
// buffer asks it for blocks on demand.
type SampleSource interface {
	Start(ctx context.Context) error
	Stop()
	// Pull fills out with up to len(out) samples, returning how many were
	// produced. A stopped or idle source returns zero.
	Pull(out []complex64) int
	InputMessageQueue() *message.Queue
}

// SampleFeeder is the minimal downstream consumer contract a sink forwards
// its processed output to.
type SampleFeeder interface {
	Feed(samples []complex64)
}

// MsgSignalNotification tells a channel that the device sample rate or
// center frequency changed. Pushed by the owner of the device stream.
type MsgSignalNotification struct {
	SampleRate int
	CenterFreq int
}

// MsgSampleRateNotification reports a channel's new sample rate to the
// control domain. Enqueued synchronously with the internal rate change.
type MsgSampleRateNotification struct {
	SampleRate int
}

// MsgPTT commands a transmit/receive transition for half-duplex coordination.
type MsgPTT struct {
	Tx bool
}
