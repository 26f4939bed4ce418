// Package cropdb loads FAO-56 crop coefficient tables into domain crop
// profiles.
package cropdb

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/crop-kc-etl/internal/domain"
)

const stageCount = 4

// DefaultName is the source name reported for the embedded catalog.
const DefaultName = "fao56.toml"

//go:embed fao56.toml
var defaultTable []byte

// document is the on-disk shape shared by the TOML and YAML formats.
type document struct {
	Crops   map[string]cropEntry `toml:"crops" yaml:"crops"`
	Climate climateEntry         `toml:"climate" yaml:"climate"`
}

type cropEntry struct {
	Name             string    `toml:"name" yaml:"name"`
	KIni             float64   `toml:"k_ini" yaml:"k_ini"`
	KMid             float64   `toml:"k_mid" yaml:"k_mid"`
	KEnd             float64   `toml:"k_end" yaml:"k_end"`
	HeightM          float64   `toml:"height_m" yaml:"height_m"`
	GrowthStagesDays []int     `toml:"growth_stages_days" yaml:"growth_stages_days"`
	GrowthStagesGDD  []float64 `toml:"growth_stages_gdd" yaml:"growth_stages_gdd"`
	PlantingDate     string    `toml:"planting_date" yaml:"planting_date"`
}

type climateEntry struct {
	U2    *float64 `toml:"u2" yaml:"u2"`
	RHMin *float64 `toml:"rh_min" yaml:"rh_min"`
}

// Load reads a crop database from path. The format is chosen by extension:
// .toml, .yaml or .yml.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var doc document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = fmt.Errorf("unsupported extension %q", ext)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	cat, err := build(doc)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cat, nil
}

// Default returns the embedded FAO-56 table of common field crops.
func Default() (*Catalog, error) {
	var doc document
	if err := toml.Unmarshal(defaultTable, &doc); err != nil {
		return nil, &LoadError{Path: DefaultName, Err: err}
	}
	cat, err := build(doc)
	if err != nil {
		return nil, &LoadError{Path: DefaultName, Err: err}
	}
	return cat, nil
}

func build(doc document) (*Catalog, error) {
	if len(doc.Crops) == 0 {
		return nil, errors.New("no crops defined")
	}

	climate := domain.DefaultEnvironment()
	if u2 := doc.Climate.U2; u2 != nil {
		if err := domain.CheckFactor("climate u2", *u2); err != nil {
			return nil, err
		}
		climate.WindSpeed = *u2
	}
	if rh := doc.Climate.RHMin; rh != nil {
		if err := domain.CheckFactor("climate rh_min", *rh); err != nil {
			return nil, err
		}
		climate.MinRelativeHumidity = *rh
	}

	cat := &Catalog{
		profiles: make(map[string]domain.CropProfile, len(doc.Crops)),
		climate:  climate,
	}
	for key, entry := range doc.Crops {
		profile, err := entry.profile(key)
		if err != nil {
			return nil, err
		}
		if err := cat.add(key, profile); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// profile converts per-stage lengths into the cumulative breakpoints of a
// domain profile. The development stage ends at k_mid.
func (e cropEntry) profile(key string) (domain.CropProfile, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = key
	}

	days, err := cumulative(e.GrowthStagesDays)
	if err != nil {
		return domain.CropProfile{}, fmt.Errorf("crop %q growth_stages_days: %w", name, err)
	}

	opts := []domain.ProfileOption{}
	// Zero means unset; a negative height is rejected by the profile.
	if e.HeightM != 0 {
		opts = append(opts, domain.WithProfileCanopyHeight(e.HeightM))
	}
	if e.PlantingDate != "" {
		d, err := time.Parse(domain.DateLayout, e.PlantingDate)
		if err != nil {
			return domain.CropProfile{}, fmt.Errorf("crop %q planting_date: %w", name, err)
		}
		opts = append(opts, domain.WithPlantingDate(d))
	}
	if len(e.GrowthStagesGDD) > 0 {
		gdd, err := cumulative(e.GrowthStagesGDD)
		if err != nil {
			return domain.CropProfile{}, fmt.Errorf("crop %q growth_stages_gdd: %w", name, err)
		}
		opts = append(opts, domain.WithGDDStages(
			domain.Breakpoint(domain.HeatUnits(gdd[0]), e.KIni),
			domain.Breakpoint(domain.HeatUnits(gdd[1]), e.KMid),
			domain.Breakpoint(domain.HeatUnits(gdd[2]), e.KMid),
			domain.Breakpoint(domain.HeatUnits(gdd[3]), e.KEnd),
		))
	}

	return domain.NewCropProfile(name,
		domain.Breakpoint(domain.Days(days[0]), e.KIni),
		domain.Breakpoint(domain.Days(days[1]), e.KMid),
		domain.Breakpoint(domain.Days(days[2]), e.KMid),
		domain.Breakpoint(domain.Days(days[3]), e.KEnd),
		opts...,
	)
}

// cumulative prefix-sums four stage lengths into stage end positions. A
// negative length is passed through so the domain rejects the threshold.
func cumulative[N int | float64](lengths []N) ([stageCount]float64, error) {
	var out [stageCount]float64
	if len(lengths) != stageCount {
		return out, fmt.Errorf("%w (got %d)", ErrStageCount, len(lengths))
	}
	var sum float64
	for i, n := range lengths {
		if n < 0 {
			out[i] = float64(n)
			continue
		}
		sum += float64(n)
		out[i] = sum
	}
	return out, nil
}
