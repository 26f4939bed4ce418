// Command genmock synthesizes a season of daily field observations for the
// mock data fixture and, optionally, the Kc records the pipeline derives from
// them. The records are produced by the real transformer so the fixture stays
// in step with pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/field_observations.json \
//	  -kc-out data/mock/kc_records.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crop-kc-etl/internal/cropdb"
	"github.com/couchcryptid/crop-kc-etl/internal/domain"
	"github.com/couchcryptid/crop-kc-etl/internal/pipeline"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

// fieldDef describes one synthetic field season.
type fieldDef struct {
	fieldID  string
	crop     string
	planting time.Time
	baseTemp float64
	days     int // observations after planting day
}

// observation mirrors the wire payload of a field observation.
type observation struct {
	FieldID      string   `json:"field_id"`
	Crop         string   `json:"crop"`
	Date         string   `json:"date"`
	PlantingDate string   `json:"planting_date"`
	MaxTemp      float64  `json:"max_temp"`
	MinTemp      float64  `json:"min_temp"`
	BaseTemp     float64  `json:"base_temp"`
	WindSpeed    *float64 `json:"wind_speed,omitempty"`
	RHMin        *float64 `json:"rh_min,omitempty"`
}

var fields = []fieldDef{
	{fieldID: "field-101", crop: "corn", planting: date(2024, time.April, 15), baseTemp: 10, days: 130},
	{fieldID: "field-202", crop: "wheat", planting: date(2024, time.March, 1), baseTemp: 0, days: 140},
	{fieldID: "field-303", crop: "soybean", planting: date(2024, time.May, 10), baseTemp: 10, days: 140},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock/field_observations.json", "output path for the observation fixture")
	kcOut := flag.String("kc-out", "", "optional output path for the derived Kc records")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	var observations []observation
	for _, f := range fields {
		obs := synthesize(f)
		observations = append(observations, obs...)
		log.Printf("%s (%s): %d observations", f.fieldID, f.crop, len(obs))
	}
	log.Printf("total: %d observations", len(observations))

	if err := writeJSON(*out, observations); err != nil {
		return fmt.Errorf("writing observation fixture: %w", err)
	}
	log.Printf("wrote observation fixture: %s", *out)

	if *kcOut == "" {
		return nil
	}

	records, err := derive(observations)
	if err != nil {
		return err
	}
	if err := writeJSON(*kcOut, records); err != nil {
		return fmt.Errorf("writing kc fixture: %w", err)
	}
	log.Printf("wrote kc fixture: %s", *kcOut)

	printStats(records)
	return nil
}

// synthesize produces one observation per day from planting through
// planting+days. Temperatures follow a seasonal sine with a short-period
// ripple; wind and humidity are reported on a sparse cadence so the
// climate defaults are exercised too.
func synthesize(f fieldDef) []observation {
	obs := make([]observation, 0, f.days+1)
	for i := 0; i <= f.days; i++ {
		d := f.planting.AddDate(0, 0, i)
		doy := float64(d.YearDay())
		tmax := round1(24 + 8*math.Sin(2*math.Pi*(doy-105)/365) + 3*math.Sin(0.7*float64(i)))
		tmin := round1(tmax - 11 - 2*math.Cos(0.3*float64(i)))

		o := observation{
			FieldID:      f.fieldID,
			Crop:         f.crop,
			Date:         d.Format(domain.DateLayout),
			PlantingDate: f.planting.Format(domain.DateLayout),
			MaxTemp:      tmax,
			MinTemp:      tmin,
			BaseTemp:     f.baseTemp,
		}
		if i%7 == 0 {
			u2 := round1(2.0 + float64(i%5)*0.4)
			o.WindSpeed = &u2
		}
		if i%10 == 0 {
			rh := 30 + float64(i%4)*5
			o.RHMin = &rh
		}
		obs = append(obs, o)
	}
	return obs
}

// derive runs the observations through the pipeline transformer against the
// embedded crop table.
func derive(observations []observation) ([]domain.KcRecord, error) {
	// Set a fixed clock for reproducible ProcessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.September, 30, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	catalog, err := cropdb.Default()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	t := pipeline.NewTransformer(catalog, season.NewTracker(season.DefaultMaxEntries), logger)

	records := make([]domain.KcRecord, 0, len(observations))
	for _, o := range observations {
		value, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("marshal observation: %w", err)
		}
		rec, err := t.Transform(context.Background(), domain.RawEvent{Value: value})
		if err != nil {
			return nil, fmt.Errorf("transform %s %s: %w", o.FieldID, o.Date, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// fieldStats holds per-field aggregates for printStats reporting.
type fieldStats struct {
	crop        string
	rows        int
	stageCounts map[domain.Stage]int
	maxKc       float64
	finalGDD    domain.HeatUnits
	finalStage  domain.Stage
}

func collectStats(records []domain.KcRecord) map[string]*fieldStats {
	stats := map[string]*fieldStats{}
	for i := range records {
		r := &records[i]
		s, ok := stats[r.FieldID]
		if !ok {
			s = &fieldStats{crop: r.Crop, stageCounts: map[domain.Stage]int{}}
			stats[r.FieldID] = s
		}
		s.rows++
		s.stageCounts[r.Stage]++
		s.maxKc = math.Max(s.maxKc, r.Kc)
		s.finalGDD = r.CumulativeGDD
		s.finalStage = r.Stage
	}
	return stats
}

func printStats(records []domain.KcRecord) {
	stats := collectStats(records)
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(records))
	for _, id := range ids {
		s := stats[id]
		fmt.Printf("%s (%s): rows=%d final=%s gdd=%.1f max_kc=%.2f\n",
			id, s.crop, s.rows, s.finalStage, float64(s.finalGDD), s.maxKc)
		for _, st := range domain.Stages {
			fmt.Printf("  %-12s %d\n", st, s.stageCounts[st])
		}
	}
}

func round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
