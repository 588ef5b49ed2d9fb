package kestrel

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsdr/kestrel/pkg/iq"
)

func TestChannelDecimationChoice(t *testing.T) {
	require.Equal(t, 8, channelDecimation(1024000, 12500))
	require.Equal(t, 1, channelDecimation(48000, 12500))
	require.Equal(t, 32, channelDecimation(2048000, 6250))
}

func TestNewChannelValidation(t *testing.T) {
	_, err := NewChannel(ChannelConfig{
		Name:      "bad-freq",
		Frequency: 146000000,
		Bandwidth: 12500,
	}, 1024000, 145000000)
	require.Error(t, err)

	_, err = NewChannel(ChannelConfig{
		Name:      "bad-bw",
		Frequency: 145000000,
	}, 1024000, 145000000)
	require.Error(t, err)
}

func TestChannelToneEndToEnd(t *testing.T) {
	const (
		inputRate  = 1024000
		centerFreq = 145000000
		toneFreq   = 145100000
		amp        = 0.5
	)

	ch, err := NewChannel(ChannelConfig{
		Name:      "test",
		Frequency: toneFreq,
		Bandwidth: 12500,
	}, inputRate, centerFreq)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Start(ctx)
	}()
	defer func() {
		ch.Stop()
		cancel()
		<-done
	}()

	// A continuous tone on the channel frequency survives the bandpass
	// decimator and the analyzer's residual shift, landing at DC.
	const blockLen = 16384
	offset := float64(toneFreq - centerFreq)
	phase := 0.0
	for i := 0; i < 100; i++ {
		data := make([]complex64, blockLen)
		for j := range data {
			s, c := math.Sincos(phase)
			data[j] = complex(float32(amp*c), float32(amp*s))
			phase += 2 * math.Pi * offset / inputRate
		}
		ch.Feed(&iq.Segment{SampleRate: inputRate, CenterFreq: centerFreq, Data: data})
	}

	require.Eventually(t, func() bool {
		return ch.Analyzer().InputSamples() >= uint64(99*blockLen/8)
	}, 10*time.Second, time.Millisecond)

	require.InDelta(t, amp*amp, ch.GetMagSq(), 0.05)
}

func TestChannelRejectsMirrorTone(t *testing.T) {
	const (
		inputRate  = 1024000
		centerFreq = 145000000
		amp        = 0.5
	)

	ch, err := NewChannel(ChannelConfig{
		Name:      "mirror",
		Frequency: centerFreq + 100000,
		Bandwidth: 12500,
	}, inputRate, centerFreq)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch.Start(ctx)
	}()
	defer func() {
		ch.Stop()
		cancel()
		<-done
	}()

	// A tone mirrored across the capture center must stay out: the complex
	// bandpass selects +100 kHz, not -100 kHz.
	const blockLen = 16384
	offset := -100000.0
	phase := 0.0
	for i := 0; i < 100; i++ {
		data := make([]complex64, blockLen)
		for j := range data {
			s, c := math.Sincos(phase)
			data[j] = complex(float32(amp*c), float32(amp*s))
			phase += 2 * math.Pi * offset / inputRate
		}
		ch.Feed(&iq.Segment{SampleRate: inputRate, CenterFreq: centerFreq, Data: data})
	}

	require.Eventually(t, func() bool {
		return ch.Analyzer().InputSamples() >= uint64(99*blockLen/8)
	}, 10*time.Second, time.Millisecond)

	require.Less(t, ch.GetMagSq(), 1e-3)
}

func TestChannelApplyShift(t *testing.T) {
	ch, err := NewChannel(ChannelConfig{
		Name:      "shifty",
		Frequency: 145050000,
		Bandwidth: 12500,
	}, 1024000, 145000000)
	require.NoError(t, err)

	ch.SetFrequencyError(120)
	require.Equal(t, 120.0, ch.FrequencyError())

	ch.ApplyShift(-120)
	require.Equal(t, 145050000-120, ch.Frequency())
	require.Zero(t, ch.FrequencyError())
}
