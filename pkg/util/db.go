package util

import "math"

// PowerFromDB converts a decibel figure to a linear power ratio.
func PowerFromDB(db float64) float64 {
	return math.Pow(10.0, db/10.0)
}

// DBFromPower converts a linear power ratio to decibels. Zero or negative
// power returns the floor value rather than -Inf so telemetry stays finite.
func DBFromPower(power float64) float64 {
	const floor = -120.0
	if power <= 0 {
		return floor
	}
	db := 10.0 * math.Log10(power)
	if db < floor {
		return floor
	}
	return db
}
