package iq

// Segment is one contiguous block of complex baseband samples pulled from a
// device or a file. Block boundaries carry no DSP meaning; filters must accept
// arbitrary fragmentation.
type Segment struct {
	SampleRate    int
	CenterFreq    int
	SegmentNumber int
	Data          []complex64
}

// SegmentCS8 holds raw interleaved signed 8-bit I/Q pairs as produced by a
// HackRF capture or recording file.
type SegmentCS8 struct {
	SampleRate int
	CenterFreq int
	Data       []byte
}

// ToComplex64 converts interleaved CS8 pairs to normalized complex samples.
// A trailing odd byte is dropped.
func (s *SegmentCS8) ToComplex64() *Segment {
	n := len(s.Data) / 2
	out := make([]complex64, n)

	for i := 0; i < n; i++ {
		re := float32(int8(s.Data[2*i])) / 128.0
		im := float32(int8(s.Data[2*i+1])) / 128.0
		out[i] = complex(re, im)
	}

	return &Segment{
		SampleRate: s.SampleRate,
		CenterFreq: s.CenterFreq,
		Data:       out,
	}
}

// SegmentCU8 holds raw interleaved unsigned 8-bit I/Q pairs as produced by an
// RTL-SDR.
type SegmentCU8 struct {
	SampleRate int
	CenterFreq int
	Data       []byte
}

func (s *SegmentCU8) ToComplex64() *Segment {
	n := len(s.Data) / 2
	out := make([]complex64, n)

	for i := 0; i < n; i++ {
		re := (float32(s.Data[2*i]) - 127.5) / 127.5
		im := (float32(s.Data[2*i+1]) - 127.5) / 127.5
		out[i] = complex(re, im)
	}

	return &Segment{
		SampleRate: s.SampleRate,
		CenterFreq: s.CenterFreq,
		Data:       out,
	}
}
