package domain

import "math"

// Temperature limits applied before averaging. Heat above the upper cutoff
// does not accelerate development.
const (
	maxTempFloor   = 0.0
	minTempFloor   = -5.0
	upperTempLimit = 30.0
)

// DailyTemperature is a day's temperature extremes in caller-consistent units.
type DailyTemperature struct {
	Max float64 `json:"max_temp"`
	Min float64 `json:"min_temp"`
}

// CalculateGDD returns the growing degree days for one day. Inputs are
// clamped (max to [0, 30], min to [-5, 30], base to >= 0) and an inverted
// max is raised to min, so the result is never negative.
func CalculateGDD(maxTemp, minTemp, baseTemp float64) float64 {
	maxTemp = clamp(maxTemp, maxTempFloor, upperTempLimit)
	minTemp = clamp(minTemp, minTempFloor, upperTempLimit)
	baseTemp = math.Max(baseTemp, 0)
	maxTemp = math.Max(maxTemp, minTemp)

	avg := (maxTemp + minTemp) / 2
	if math.IsNaN(avg) || math.IsNaN(baseTemp) || avg <= baseTemp {
		return 0
	}
	return avg - baseTemp
}

// AccumulateGDD sums the daily GDD over days.
func AccumulateGDD(days []DailyTemperature, baseTemp float64) HeatUnits {
	var total float64
	for _, d := range days {
		total += CalculateGDD(d.Max, d.Min, baseTemp)
	}
	return HeatUnits(total)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
