package domain

import (
	"fmt"
	"math"
)

// Reference conditions of the FAO-56 climatic correction.
const (
	ReferenceWindSpeed   = 2.0  // u2, m/s at 2 m height
	ReferenceMinHumidity = 45.0 // RHmin, %
	// DefaultCanopyHeight is used when neither the caller nor the crop profile
	// supplies a height, in meters.
	DefaultCanopyHeight = 1.391
)

// Environment holds the climatic conditions applied to mid and late stage Kc.
type Environment struct {
	WindSpeed           float64 `json:"wind_speed"`            // m/s at 2 m
	MinRelativeHumidity float64 `json:"min_relative_humidity"` // % (a fraction below 1.0 is scaled to %)
	CanopyHeight        float64 `json:"canopy_height"`         // m
}

// DefaultEnvironment returns the reference conditions, under which the
// climatic correction is zero.
func DefaultEnvironment() Environment {
	return Environment{
		WindSpeed:           ReferenceWindSpeed,
		MinRelativeHumidity: ReferenceMinHumidity,
		CanopyHeight:        DefaultCanopyHeight,
	}
}

// Normalize converts a minimum relative humidity given as a fraction (< 1.0)
// into a percentage.
func (e Environment) Normalize() Environment {
	if e.MinRelativeHumidity < 1.0 {
		e.MinRelativeHumidity *= 100
	}
	return e
}

func (e Environment) adjust(kc float64) float64 {
	return AdjustKc(kc, e.WindSpeed, e.MinRelativeHumidity, e.CanopyHeight)
}

// AdjustKc applies the FAO-56 wind, humidity and crop height correction
// (Eq. 62) to kc. The result is not clamped.
func AdjustKc(kc, windSpeed, rhMin, canopyHeight float64) float64 {
	climate := 0.04*(windSpeed-ReferenceWindSpeed) - 0.0004*(rhMin-ReferenceMinHumidity)
	return kc + climate*math.Pow(canopyHeight/3.0, 0.3)
}

// CheckFactor rejects a negative or non-finite environmental factor. Such a
// value would make the adjustment NaN (a negative canopy height under the
// fractional power) or physically meaningless.
func CheckFactor(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s=%g", ErrInvalidFactor, name, v)
	}
	return nil
}

// EnvOption overrides one environmental factor.
type EnvOption func(*Environment)

// WithWindSpeed sets the wind speed at 2 m, in m/s.
func WithWindSpeed(u2 float64) EnvOption {
	return func(e *Environment) { e.WindSpeed = u2 }
}

// WithMinHumidity sets the minimum relative humidity, in % or as a fraction.
func WithMinHumidity(rh float64) EnvOption {
	return func(e *Environment) { e.MinRelativeHumidity = rh }
}

// WithCanopyHeight sets the crop height, in meters.
func WithCanopyHeight(h float64) EnvOption {
	return func(e *Environment) { e.CanopyHeight = h }
}

// WithEnvironment replaces all factors at once.
func WithEnvironment(env Environment) EnvOption {
	return func(e *Environment) { *e = env }
}

func buildEnvironment(base Environment, opts []EnvOption) Environment {
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}
	return base
}
