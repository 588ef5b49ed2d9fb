package viz

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpectrumPlotterAppendKeepsLatest(t *testing.T) {
	p := NewSpectrumPlotter("test", 8, 48000)

	long := make([]complex64, 20)
	for i := range long {
		long[i] = complex(float32(i), 0)
	}
	p.Append(long)
	require.Equal(t, complex64(complex(12, 0)), p.buf[0])
	require.Equal(t, complex64(complex(19, 0)), p.buf[7])

	p.Append([]complex64{complex(100, 0), complex(101, 0)})
	require.Equal(t, complex64(complex(14, 0)), p.buf[0])
	require.Equal(t, complex64(complex(101, 0)), p.buf[7])
}

func TestSpectrumPlotterRenderPNG(t *testing.T) {
	const size = 256
	p := NewSpectrumPlotter("test", size, 48000)

	tone := make([]complex64, size)
	for i := range tone {
		s, c := math.Sincos(2 * math.Pi * 0.125 * float64(i))
		tone[i] = complex(float32(c), float32(s))
	}
	p.Append(tone)

	data, err := p.RenderPNG()
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])
}
