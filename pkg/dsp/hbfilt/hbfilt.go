// Package hbfilt computes the cumulative frequency offset introduced by a
// cascade of half-band decimating or interpolating filters.
//
// A cascade of stageCount stages is described by a base-3 selector code with
// stageCount digits, most-significant digit first. The most-significant digit
// selects the stage closest to the wideband signal. Digit values: 0 no shift,
// 1 shift up, 2 shift down. Each stage shifts by a quarter of its own output
// rate, so the outermost stage contributes +-1/4 of the full rate and every
// stage further in contributes half the previous one. The aggregate is a
// fraction of the full rate in [-0.5, 0.5).
package hbfilt

// maxStageCount bounds the cascade depth. 3^maxStageCount still fits a
// 32-bit uint, and a stage past the twentieth shifts by under a millionth of
// the rate.
const maxStageCount = 20

func clampStageCount(stageCount uint) uint {
	if stageCount > maxStageCount {
		return maxStageCount
	}
	return stageCount
}

// ClampCode limits a selector code to the valid range for stageCount stages,
// mirroring the settings-side validation: codes at or past 3^stageCount clamp
// to 3^stageCount-1, and the stage count itself is capped at maxStageCount so
// 3^stageCount cannot overflow. A running chain must never fault on a bad
// setting.
func ClampCode(stageCount uint, code uint) uint {
	stageCount = clampStageCount(stageCount)
	max := uint(1)
	for i := uint(0); i < stageCount; i++ {
		max *= 3
	}
	if code >= max {
		return max - 1
	}
	return code
}

// ShiftFactor returns the fractional frequency shift of the whole cascade.
// Pure: same inputs always give the same output. Out-of-range codes are
// clamped via ClampCode.
func ShiftFactor(stageCount uint, code uint) float64 {
	stageCount = clampStageCount(stageCount)
	code = ClampCode(stageCount, code)

	// Weight of the most-significant digit's stage.
	weight := uint(1)
	for i := uint(1); i < stageCount; i++ {
		weight *= 3
	}

	shift := 0.0
	contribution := 0.25
	for i := uint(0); i < stageCount; i++ {
		digit := code / weight
		code -= digit * weight
		switch digit {
		case 1:
			shift += contribution
		case 2:
			shift -= contribution
		}
		contribution /= 2
		if weight > 1 {
			weight /= 3
		}
	}

	return shift
}
