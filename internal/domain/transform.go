package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// ParseObservation deserializes a RawEvent's value into a FieldObservation.
// Crop names are lower-cased to match catalog keys.
func ParseObservation(raw RawEvent) (FieldObservation, error) {
	var p observationPayload
	if err := json.Unmarshal(raw.Value, &p); err != nil {
		return FieldObservation{}, fmt.Errorf("parse observation: %w", err)
	}

	obs := FieldObservation{
		FieldID:       strings.TrimSpace(p.FieldID),
		Crop:          strings.ToLower(strings.TrimSpace(p.Crop)),
		MaxTemp:       p.MaxTemp,
		MinTemp:       p.MinTemp,
		BaseTemp:      p.BaseTemp,
		WindSpeed:     p.WindSpeed,
		RHMin:         p.RHMin,
		CanopyHeight:  p.CanopyHeight,
		CumulativeGDD: p.CumulativeGDD,
	}
	if obs.FieldID == "" {
		return FieldObservation{}, ErrMissingFieldID
	}
	if obs.Crop == "" {
		return FieldObservation{}, ErrMissingCrop
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"wind_speed", obs.WindSpeed},
		{"rh_min", obs.RHMin},
		{"canopy_height", obs.CanopyHeight},
	} {
		if f.v == nil {
			continue
		}
		if err := CheckFactor(f.name, *f.v); err != nil {
			return FieldObservation{}, fmt.Errorf("parse observation: %w", err)
		}
	}

	if strings.TrimSpace(p.Date) == "" {
		return FieldObservation{}, ErrMissingDate
	}
	date, err := parseDate(p.Date)
	if err != nil {
		return FieldObservation{}, err
	}
	obs.Date = date

	if strings.TrimSpace(p.PlantingDate) != "" {
		planting, err := parseDate(p.PlantingDate)
		if err != nil {
			return FieldObservation{}, err
		}
		obs.PlantingDate = planting
	}
	return obs, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, s)
	}
	return t, nil
}

// DailyGDD returns the observation's growing degree days.
func (o FieldObservation) DailyGDD() float64 {
	return CalculateGDD(o.MaxTemp, o.MinTemp, o.BaseTemp)
}

// PlantingFor resolves the planting date: the observation's own date wins
// over the one bound to the crop profile.
func (o FieldObservation) PlantingFor(profile CropProfile) (time.Time, error) {
	if !o.PlantingDate.IsZero() {
		return o.PlantingDate, nil
	}
	if d, ok := profile.PlantingDate(); ok {
		return d, nil
	}
	return time.Time{}, fmt.Errorf("%w %s (%s)", ErrNoPlantingDate, o.FieldID, o.Crop)
}

// Environment overlays the observation's measured factors onto base. Values
// are reported as measured; humidity is normalized once, at evaluation.
func (o FieldObservation) Environment(base Environment) Environment {
	if o.WindSpeed != nil {
		base.WindSpeed = *o.WindSpeed
	}
	if o.RHMin != nil {
		base.MinRelativeHumidity = *o.RHMin
	}
	if o.CanopyHeight != nil {
		base.CanopyHeight = *o.CanopyHeight
	}
	return base
}

// BuildKcRecord evaluates profile for the observation. climate supplies the
// default wind speed and humidity; the profile supplies the canopy height.
// cumulative is the field's heat-unit total through the observation date and
// is only evaluated when the profile has a GDD curve.
func BuildKcRecord(obs FieldObservation, profile CropProfile, climate Environment, cumulative HeatUnits) (KcRecord, error) {
	planting, err := obs.PlantingFor(profile)
	if err != nil {
		return KcRecord{}, err
	}

	base := climate
	base.CanopyHeight = profile.CanopyHeight()
	env := obs.Environment(base)

	days := DaysSincePlanting(planting, obs.Date)
	byDays := profile.DayModel().Evaluate(days, env)

	rec := KcRecord{
		ID:                generateID(obs.FieldID, profile.Name(), obs.Date),
		FieldID:           obs.FieldID,
		Crop:              profile.Name(),
		Date:              obs.Date.Format(DateLayout),
		PlantingDate:      planting.Format(DateLayout),
		DaysSincePlanting: days,
		Stage:             byDays.Stage,
		Kc:                byDays.Kc,
		DailyGDD:          roundKc(obs.DailyGDD()),
		CumulativeGDD:     cumulative,
		Environment:       env,
		ProcessedAt:       clock.Now(),
	}

	if model, ok := profile.GDDModel(); ok {
		byGDD := model.Evaluate(cumulative, env)
		rec.GDDStage = byGDD.Stage
		rec.GDDKc = &byGDD.Kc
	}
	return rec, nil
}

// generateID produces a deterministic ID from the field, crop and date so a
// replayed observation yields the same record key.
func generateID(fieldID, crop string, date time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", fieldID, crop, date.Format(DateLayout))
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if crop == "" {
		return short
	}
	return crop + "-" + short
}

// SerializeKcRecord marshals a KcRecord into an OutputEvent keyed by its ID.
func SerializeKcRecord(rec KcRecord) (OutputEvent, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize kc record: %w", err)
	}
	return OutputEvent{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: map[string]string{
			"crop":         rec.Crop,
			"stage":        string(rec.Stage),
			"processed_at": rec.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
