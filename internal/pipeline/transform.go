package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crop-kc-etl/internal/domain"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

// CropCatalog resolves crop profiles by name.
type CropCatalog interface {
	Lookup(name string) (domain.CropProfile, bool)
	Climate() domain.Environment
}

// KcTransformer implements Transformer by evaluating each observation against
// its crop profile. Cumulative GDD comes from the observation when the
// producer supplies it and from the season tracker otherwise.
type KcTransformer struct {
	catalog CropCatalog
	seasons *season.Tracker
	logger  *slog.Logger
}

// NewTransformer creates a KcTransformer.
func NewTransformer(catalog CropCatalog, seasons *season.Tracker, logger *slog.Logger) *KcTransformer {
	return &KcTransformer{
		catalog: catalog,
		seasons: seasons,
		logger:  logger,
	}
}

func (t *KcTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.KcRecord, error) {
	obs, err := domain.ParseObservation(raw)
	if err != nil {
		return domain.KcRecord{}, err
	}

	profile, ok := t.catalog.Lookup(obs.Crop)
	if !ok {
		return domain.KcRecord{}, fmt.Errorf("%w %q (field %s)", domain.ErrUnknownCrop, obs.Crop, obs.FieldID)
	}

	planting, err := obs.PlantingFor(profile)
	if err != nil {
		return domain.KcRecord{}, err
	}

	var cumulative domain.HeatUnits
	if obs.CumulativeGDD != nil {
		cumulative = domain.HeatUnits(*obs.CumulativeGDD)
	} else {
		cumulative = t.seasons.Advance(obs.FieldID, profile.Name(), planting, obs.Date, obs.DailyGDD())
	}

	rec, err := domain.BuildKcRecord(obs, profile, t.catalog.Climate(), cumulative)
	if err != nil {
		return domain.KcRecord{}, err
	}
	t.logger.Debug("kc computed",
		"field_id", rec.FieldID,
		"crop", rec.Crop,
		"date", rec.Date,
		"stage", rec.Stage,
		"kc", rec.Kc,
	)
	return rec, nil
}
