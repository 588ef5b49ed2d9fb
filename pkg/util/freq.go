package util

import (
	"fmt"
	"math"
)

func FrequencyRange(freqs ...int) (low, high int) {
	low = math.MaxInt32
	high = math.MinInt32

	for _, freq := range freqs {
		if freq < low {
			low = freq
		}
		if freq > high {
			high = freq
		}
	}

	return
}

func CenterFrequency(low, high int) int {
	return (low + high) / 2
}

func MHzToString(hz int) string {
	return fmt.Sprintf("%0.4f MHz", float64(hz)/1e6)
}
