package domain

import (
	"fmt"
	"time"
)

// CropProfile is a crop's day-indexed stage curve together with the planting
// date and canopy height it is evaluated against. A profile may also carry a
// GDD-indexed curve for the same crop. Profiles are immutable once built and
// safe for concurrent use.
type CropProfile struct {
	days         StageModel[Days]
	gdd          *StageModel[HeatUnits]
	plantingDate time.Time
	canopyHeight float64
}

// ProfileOption configures optional CropProfile attributes.
type ProfileOption func(*profileConfig)

type profileConfig struct {
	plantingDate time.Time
	canopyHeight float64
	gddStages    *[4]StageBreakpoint[HeatUnits]
}

// WithPlantingDate binds a planting date to the profile. Only the calendar
// date is kept.
func WithPlantingDate(d time.Time) ProfileOption {
	return func(c *profileConfig) { c.plantingDate = civilDate(d) }
}

// WithProfileCanopyHeight sets the crop height used by KcOn, in meters.
func WithProfileCanopyHeight(h float64) ProfileOption {
	return func(c *profileConfig) { c.canopyHeight = h }
}

// WithGDDStages attaches cumulative heat-unit stage breakpoints.
func WithGDDStages(initial, development, mid, late StageBreakpoint[HeatUnits]) ProfileOption {
	return func(c *profileConfig) {
		c.gddStages = &[4]StageBreakpoint[HeatUnits]{initial, development, mid, late}
	}
}

// NewCropProfile builds a profile from cumulative day thresholds. The same
// validation as NewStageModel applies to both day and GDD breakpoints.
func NewCropProfile(name string, initial, development, mid, late StageBreakpoint[Days], opts ...ProfileOption) (CropProfile, error) {
	cfg := profileConfig{canopyHeight: DefaultCanopyHeight}
	for _, opt := range opts {
		opt(&cfg)
	}

	days, err := NewStageModel(name, initial, development, mid, late)
	if err != nil {
		return CropProfile{}, err
	}
	if err := CheckFactor("canopy height", cfg.canopyHeight); err != nil {
		return CropProfile{}, fmt.Errorf("crop %q: %w", name, err)
	}

	p := CropProfile{
		days:         days,
		plantingDate: cfg.plantingDate,
		canopyHeight: cfg.canopyHeight,
	}
	if s := cfg.gddStages; s != nil {
		gdd, err := NewStageModel(name, s[0], s[1], s[2], s[3])
		if err != nil {
			return CropProfile{}, fmt.Errorf("gdd stages: %w", err)
		}
		p.gdd = &gdd
	}
	return p, nil
}

// Name returns the crop name.
func (p CropProfile) Name() string { return p.days.Crop() }

// DayModel returns the day-indexed stage curve.
func (p CropProfile) DayModel() StageModel[Days] { return p.days }

// GDDModel returns the heat-unit stage curve, if the profile has one.
func (p CropProfile) GDDModel() (StageModel[HeatUnits], bool) {
	if p.gdd == nil {
		return StageModel[HeatUnits]{}, false
	}
	return *p.gdd, true
}

// PlantingDate returns the bound planting date and whether one is set.
func (p CropProfile) PlantingDate() (time.Time, bool) {
	return p.plantingDate, !p.plantingDate.IsZero()
}

// CanopyHeight returns the crop height in meters.
func (p CropProfile) CanopyHeight() float64 { return p.canopyHeight }

// Environment returns the reference conditions at this crop's canopy height.
func (p CropProfile) Environment() Environment {
	env := DefaultEnvironment()
	env.CanopyHeight = p.canopyHeight
	return env
}

// KcOn evaluates the crop on target using its own planting date and canopy
// height. With no planting date bound, target is treated as planting day, so
// the result is always the initial-stage Kc; bind a date with WithPlanting or
// check PlantingDate first when that matters.
func (p CropProfile) KcOn(target time.Time, opts ...EnvOption) Result {
	planting := p.plantingDate
	if planting.IsZero() {
		planting = target
	}
	env := buildEnvironment(p.Environment(), opts)
	return p.days.Evaluate(DaysSincePlanting(planting, target), env)
}

// KcToday is KcOn for the current date of the package clock.
func (p CropProfile) KcToday(opts ...EnvOption) Result {
	return p.KcOn(clock.Now(), opts...)
}

// StageOn returns the growth stage on target relative to the bound planting
// date.
func (p CropProfile) StageOn(target time.Time) Stage {
	planting := p.plantingDate
	if planting.IsZero() {
		planting = target
	}
	return p.days.Classify(DaysSincePlanting(planting, target))
}

// WithPlanting returns a copy of the profile bound to another planting date.
func (p CropProfile) WithPlanting(d time.Time) CropProfile {
	p.plantingDate = civilDate(d)
	return p
}

// DaysSincePlanting counts whole calendar days from planting to target. It is
// negative when target precedes planting.
func DaysSincePlanting(planting, target time.Time) Days {
	return Days(civilDate(target).Sub(civilDate(planting)).Hours() / 24)
}

// EvaluateByDays returns the Kc on target for a crop planted on planting.
// Unset factors default to the reference conditions and DefaultCanopyHeight.
func EvaluateByDays(planting, target time.Time, profile CropProfile, opts ...EnvOption) Result {
	env := buildEnvironment(DefaultEnvironment(), opts)
	return profile.days.Evaluate(DaysSincePlanting(planting, target), env)
}

// EvaluateByGDD returns the Kc at a cumulative heat-unit position. Unset
// factors default to the reference conditions and DefaultCanopyHeight.
func EvaluateByGDD(cumulative HeatUnits, model StageModel[HeatUnits], opts ...EnvOption) Result {
	env := buildEnvironment(DefaultEnvironment(), opts)
	return model.Evaluate(cumulative, env)
}

// civilDate drops the time of day, keeping the calendar date as seen in the
// value's own location.
func civilDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
