// Package energy estimates energy expenditure on a treadmill from the ACSM metabolic
// equations for walking and running.
package energy

import "math"

const (
	// WalkingThresholdKph is the highest speed treated as walking.
	WalkingThresholdKph = 6.0

	// DefaultWeightKg is used when no body weight is known.
	DefaultWeightKg = 86.0

	restingVO2        = 3.5 // ml/kg/min, 1 MET
	kcalPerLitreO2    = 5.0
	walkingHorizontal = 0.1
	walkingVertical   = 1.8
	runningHorizontal = 0.2
	runningVertical   = 0.9
)

// Estimate returns the kcal spent over durationSeconds at a constant speed and incline.
// The incline is in degrees; non-positive durations yield 0.
func Estimate(weightKg, speedKph, inclineDeg, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}

	speedMetersPerMin := speedKph * 1000 / 60
	grade := math.Tan(inclineDeg * math.Pi / 180)

	var vo2 float64

	if speedKph <= WalkingThresholdKph {
		vo2 = restingVO2 + walkingHorizontal*speedMetersPerMin + walkingVertical*speedMetersPerMin*grade
	} else {
		vo2 = restingVO2 + runningHorizontal*speedMetersPerMin + runningVertical*speedMetersPerMin*grade
	}

	kcalPerMin := vo2 * weightKg / 1000 * kcalPerLitreO2

	return kcalPerMin * durationSeconds / 60
}

// RatePerHour is the instantaneous expenditure in kcal/h.
func RatePerHour(weightKg, speedKph, inclineDeg float64) float64 {
	return Estimate(weightKg, speedKph, inclineDeg, 3600)
}
