package domain

import (
	"fmt"
	"math"
)

// MaxKc is the largest stage coefficient accepted at construction.
const MaxKc = 2.0

// lateAdjustFloor is the late-stage Kc at or below which no climatic
// adjustment is applied (FAO-56 Eq. 65 only applies when Kc end > 0.45).
const lateAdjustFloor = 0.45

// Stage is one of the four FAO-56 growth stages.
type Stage string

const (
	StageInitial     Stage = "initial"
	StageDevelopment Stage = "development"
	StageMid         Stage = "mid"
	StageLate        Stage = "late"
)

// Stages lists the growth stages in lifecycle order.
var Stages = [4]Stage{StageInitial, StageDevelopment, StageMid, StageLate}

// Position is a monotone scalar coordinate within a crop's lifecycle.
type Position interface {
	~float64
}

// HeatUnits is a cumulative growing-degree-day position.
type HeatUnits float64

// Days is an elapsed-days-since-planting position.
type Days float64

// StageBreakpoint marks the end of a growth stage: the cumulative position at
// which the stage ends and the Kc reached there.
type StageBreakpoint[P Position] struct {
	Threshold P       `json:"threshold"`
	Kc        float64 `json:"kc"`
}

// Breakpoint is shorthand for constructing a StageBreakpoint.
func Breakpoint[P Position](threshold P, kc float64) StageBreakpoint[P] {
	return StageBreakpoint[P]{Threshold: threshold, Kc: kc}
}

// Result is the output of a stage model evaluation.
type Result struct {
	Crop  string  `json:"crop"`
	Stage Stage   `json:"stage"`
	Kc    float64 `json:"kc"`
}

// StageModel maps a position in a crop's lifecycle to a Kc using the FAO-56
// four-stage curve. The zero value is not usable; build one with NewStageModel.
type StageModel[P Position] struct {
	crop   string
	stages [4]StageBreakpoint[P]
}

// NewStageModel validates the four stage breakpoints of a crop. Thresholds are
// cumulative (end of initial, end of development, ...) and are expected to be
// non-decreasing; only Kc range and threshold sign are checked.
func NewStageModel[P Position](crop string, initial, development, mid, late StageBreakpoint[P]) (StageModel[P], error) {
	if crop == "" {
		return StageModel[P]{}, ErrEmptyCropName
	}
	stages := [4]StageBreakpoint[P]{initial, development, mid, late}
	for i, bp := range stages {
		if bp.Kc > MaxKc {
			return StageModel[P]{}, fmt.Errorf("crop %q %s stage: %w (got %.2f)", crop, Stages[i], ErrKcOutOfRange, bp.Kc)
		}
		if bp.Threshold < 0 {
			return StageModel[P]{}, fmt.Errorf("crop %q %s stage: %w (got %g)", crop, Stages[i], ErrNegativeThreshold, float64(bp.Threshold))
		}
	}
	return StageModel[P]{crop: crop, stages: stages}, nil
}

// MustStageModel is like NewStageModel but panics on invalid input. It is meant
// for compile-time crop tables.
func MustStageModel[P Position](crop string, initial, development, mid, late StageBreakpoint[P]) StageModel[P] {
	m, err := NewStageModel(crop, initial, development, mid, late)
	if err != nil {
		panic(err)
	}
	return m
}

// Crop returns the crop name.
func (m StageModel[P]) Crop() string { return m.crop }

// Breakpoints returns the four stage breakpoints in lifecycle order.
func (m StageModel[P]) Breakpoints() [4]StageBreakpoint[P] { return m.stages }

// Classify returns the growth stage containing pos. Each threshold is the
// inclusive upper bound of its stage; anything past mid is late.
func (m StageModel[P]) Classify(pos P) Stage {
	switch {
	case pos <= m.stages[0].Threshold:
		return StageInitial
	case pos <= m.stages[1].Threshold:
		return StageDevelopment
	case pos <= m.stages[2].Threshold:
		return StageMid
	default:
		return StageLate
	}
}

// Evaluate returns the Kc at pos. Mid-stage values are always adjusted for
// env; late-stage values only when they exceed 0.45. The returned Kc is
// rounded to two decimals.
func (m StageModel[P]) Evaluate(pos P, env Environment) Result {
	env = env.Normalize()
	ini, dev, mid, late := m.stages[0], m.stages[1], m.stages[2], m.stages[3]

	stage := m.Classify(pos)
	var kc float64
	switch stage {
	case StageInitial:
		kc = ini.Kc
	case StageDevelopment:
		kc = interpolate(pos, ini, dev)
	case StageMid:
		kc = env.adjust(interpolate(pos, dev, mid))
	case StageLate:
		kc = lateKc(pos, mid, late)
		if kc > lateAdjustFloor {
			kc = env.adjust(kc)
		}
	}
	return Result{Crop: m.crop, Stage: stage, Kc: roundKc(kc)}
}

// interpolate moves linearly from from.Kc at from.Threshold to to.Kc at
// to.Threshold. A zero-length span is an instantaneous transition to to.Kc.
func interpolate[P Position](pos P, from, to StageBreakpoint[P]) float64 {
	span := float64(to.Threshold - from.Threshold)
	if span == 0 {
		return to.Kc
	}
	frac := float64(pos-from.Threshold) / span
	return from.Kc + (to.Kc-from.Kc)*frac
}

// lateKc declines from the mid-season Kc toward the late Kc, measured from the
// end of the late stage: kc_mid - (kc_mid-kc_late)*(pos-t_late)/(t_mid-t_late).
func lateKc[P Position](pos P, mid, late StageBreakpoint[P]) float64 {
	span := float64(mid.Threshold - late.Threshold)
	if span == 0 {
		return late.Kc
	}
	frac := float64(pos-late.Threshold) / span
	return mid.Kc - (mid.Kc-late.Kc)*frac
}

func roundKc(kc float64) float64 {
	return math.Round(kc*100) / 100
}
