// Command validate checks a crop database and, optionally, the mock
// observation fixture against it. It verifies stage ordering, the shape of
// each crop's Kc curve, and that every fixture row transforms into a
// consistent season.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -crop-db configs/crops.toml \
//	  -fixture data/mock/field_observations.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/crop-kc-etl/internal/cropdb"
	"github.com/couchcryptid/crop-kc-etl/internal/domain"
	"github.com/couchcryptid/crop-kc-etl/internal/pipeline"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	cropDB := flag.String("crop-db", "", "TOML or YAML crop database (default: embedded FAO-56 table)")
	fixture := flag.String("fixture", "", "path to a field observation JSON fixture")
	flag.Parse()

	if code := run(*cropDB, *fixture); code != 0 {
		os.Exit(code)
	}
}

func run(cropDBPath, fixturePath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.September, 30, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Crop Kc Validation ===")
	fmt.Println()

	catalog, err := loadCatalog(cropDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load crop database: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateStageOrder(catalog),
		validateCurves(catalog),
	}

	var rows int
	if fixturePath != "" {
		raw, err := loadFixture(fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
			return 1
		}
		rows = len(raw)
		phases = append(phases, validateFixture(catalog, raw))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Crops: %d, fixture rows: %d\n", catalog.Len(), rows)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadCatalog(path string) (*cropdb.Catalog, error) {
	if path == "" {
		return cropdb.Default()
	}
	return cropdb.Load(path)
}

func loadFixture(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ── Phases ──

// validateStageOrder checks that stage thresholds never decrease. The domain
// only rejects negative thresholds, so a table with swapped stage lengths
// would otherwise load silently.
func validateStageOrder(catalog *cropdb.Catalog) *phase {
	p := &phase{name: "Phase 1: Stage ordering"}
	for _, name := range catalog.Names() {
		profile, _ := catalog.Lookup(name)
		checkOrder(p, name+" days", profile.DayModel().Breakpoints())
		if gdd, ok := profile.GDDModel(); ok {
			checkOrder(p, name+" gdd", gdd.Breakpoints())
		}
	}
	return p
}

func checkOrder[P domain.Position](p *phase, label string, bps [4]domain.StageBreakpoint[P]) {
	for i := 1; i < len(bps); i++ {
		if bps[i].Threshold < bps[i-1].Threshold {
			p.errorf("%s: %s ends at %g before %s at %g", label,
				domain.Stages[i], float64(bps[i].Threshold),
				domain.Stages[i-1], float64(bps[i-1].Threshold))
		}
	}
	for i, bp := range bps {
		if bp.Kc < 0 {
			p.errorf("%s: %s Kc %.2f is negative", label, domain.Stages[i], bp.Kc)
		}
	}
}

// validateCurves sweeps each crop's day curve from planting to season end
// under its own reference environment.
func validateCurves(catalog *cropdb.Catalog) *phase {
	p := &phase{name: "Phase 2: Kc curve shape"}
	for _, name := range catalog.Names() {
		profile, _ := catalog.Lookup(name)
		model := profile.DayModel()
		env := profile.Environment()
		end := model.Breakpoints()[3].Threshold

		prev := domain.StageInitial
		for d := domain.Days(0); d <= end; d++ {
			r := model.Evaluate(d, env)
			if stageIndex(r.Stage) < stageIndex(prev) {
				p.errorf("%s day %g: stage went back from %s to %s", name, float64(d), prev, r.Stage)
			}
			if r.Kc < 0 || r.Kc > domain.MaxKc || math.IsNaN(r.Kc) {
				p.errorf("%s day %g: Kc %.2f outside [0, %.1f]", name, float64(d), r.Kc, domain.MaxKc)
			}
			prev = r.Stage
		}
		if prev != domain.StageLate {
			p.errorf("%s: season ends in %s stage", name, prev)
		}
	}
	return p
}

// validateFixture transforms every fixture row and checks each field season
// for unknown crops and non-monotone accumulation.
func validateFixture(catalog *cropdb.Catalog, rows []json.RawMessage) *phase {
	p := &phase{name: "Phase 3: Fixture transformation"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	t := pipeline.NewTransformer(catalog, season.NewTracker(season.DefaultMaxEntries), logger)

	last := map[string]domain.KcRecord{}
	for i, row := range rows {
		rec, err := t.Transform(context.Background(), domain.RawEvent{Value: row})
		if err != nil {
			p.errorf("row %d: %v", i, err)
			continue
		}
		prev, seen := last[rec.FieldID]
		if seen {
			if rec.CumulativeGDD < prev.CumulativeGDD {
				p.errorf("%s %s: cumulative GDD fell from %.1f to %.1f", rec.FieldID, rec.Date,
					float64(prev.CumulativeGDD), float64(rec.CumulativeGDD))
			}
			if stageIndex(rec.Stage) < stageIndex(prev.Stage) {
				p.errorf("%s %s: stage went back from %s to %s", rec.FieldID, rec.Date, prev.Stage, rec.Stage)
			}
		}
		last[rec.FieldID] = rec
	}
	return p
}

func stageIndex(s domain.Stage) int {
	for i, st := range domain.Stages {
		if st == s {
			return i
		}
	}
	return -1
}
