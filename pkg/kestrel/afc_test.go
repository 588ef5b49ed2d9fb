package kestrel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsdr/kestrel/pkg/message"
)

type stubEndpoint struct {
	mu     sync.Mutex
	err    float64
	shifts []float64
}

func (e *stubEndpoint) FrequencyError() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *stubEndpoint) ApplyShift(deltaHz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shifts = append(e.shifts, deltaHz)
	e.err += deltaHz
}

func (e *stubEndpoint) setError(hz float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = hz
}

func (e *stubEndpoint) shiftCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.shifts)
}

func (e *stubEndpoint) lastShift() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shifts[len(e.shifts)-1]
}

func startAFC(t *testing.T, w *AFCWorker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		w.Stop()
		cancel()
		<-done
	})
}

func TestAFCCorrectsBeyondTolerance(t *testing.T) {
	endpoint := &stubEndpoint{err: 100}
	w := NewAFCWorker(AFCSettings{
		Interval:      5 * time.Millisecond,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint})
	startAFC(t, w)

	w.StartWork()

	require.Eventually(t, func() bool {
		return endpoint.shiftCount() == 1
	}, 5*time.Second, time.Millisecond)
	require.InDelta(t, -100.0, endpoint.lastShift(), 1e-9)
	require.EqualValues(t, 1, w.Corrections())

	// The corrected endpoint now sits at zero error; no further shifts.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, endpoint.shiftCount())
}

func TestAFCWithinToleranceLeftAlone(t *testing.T) {
	endpoint := &stubEndpoint{err: 5}
	w := NewAFCWorker(AFCSettings{
		Interval:      5 * time.Millisecond,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint})
	startAFC(t, w)

	w.StartWork()
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, endpoint.shiftCount())
	require.Zero(t, w.Corrections())
}

func TestAFCPTTGatesCorrections(t *testing.T) {
	endpoint := &stubEndpoint{err: 200}
	guiQueue := message.NewQueue()
	w := NewAFCWorker(AFCSettings{
		Interval:      5 * time.Millisecond,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint}, WithAFCGUIQueue(guiQueue))
	startAFC(t, w)

	w.InputMessageQueue().Push(&MsgPTT{Tx: true})
	require.Eventually(t, w.IsTransmitting, 5*time.Second, time.Millisecond)

	w.StartWork()
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, endpoint.shiftCount())

	// The transition is forwarded for observers.
	msg, ok := guiQueue.Pop()
	require.True(t, ok)
	ptt, ok := msg.(*MsgPTT)
	require.True(t, ok)
	require.True(t, ptt.Tx)

	w.InputMessageQueue().Push(&MsgPTT{Tx: false})
	require.Eventually(t, func() bool {
		return endpoint.shiftCount() > 0
	}, 5*time.Second, time.Millisecond)
}

func TestAFCStopWorkHaltsTicks(t *testing.T) {
	endpoint := &stubEndpoint{err: 100}
	w := NewAFCWorker(AFCSettings{
		Interval:      5 * time.Millisecond,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint})
	startAFC(t, w)

	w.StartWork()
	require.Eventually(t, func() bool {
		return endpoint.shiftCount() == 1
	}, 5*time.Second, time.Millisecond)

	w.StopWork()
	require.Eventually(t, func() bool {
		return !w.IsRunning()
	}, 5*time.Second, time.Millisecond)

	endpoint.setError(500)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, endpoint.shiftCount())
}

func TestAFCReconfigureInterval(t *testing.T) {
	endpoint := &stubEndpoint{}
	w := NewAFCWorker(AFCSettings{
		Interval:      time.Hour,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint})
	startAFC(t, w)

	w.StartWork()
	endpoint.setError(100)

	// An hour-long interval would never fire in this test; shortening it
	// while running must take effect.
	w.Configure(AFCSettings{Interval: 5 * time.Millisecond, FreqTolerance: 10})

	require.Eventually(t, func() bool {
		return endpoint.shiftCount() > 0
	}, 5*time.Second, time.Millisecond)
}

func TestAFCReset(t *testing.T) {
	endpoint := &stubEndpoint{err: 100}
	w := NewAFCWorker(AFCSettings{
		Interval:      5 * time.Millisecond,
		FreqTolerance: 10,
	}, []ChannelEndpoint{endpoint})
	startAFC(t, w)

	w.StartWork()
	require.Eventually(t, func() bool {
		return w.Corrections() == 1
	}, 5*time.Second, time.Millisecond)

	w.Reset()
	require.Zero(t, w.Corrections())
}
