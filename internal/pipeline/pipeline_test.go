package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crop-kc-etl/internal/cropdb"
	"github.com/couchcryptid/crop-kc-etl/internal/domain"
	"github.com/couchcryptid/crop-kc-etl/internal/observability"
	"github.com/couchcryptid/crop-kc-etl/internal/pipeline"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockTransformer struct {
	err error
}

func (m *mockTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.KcRecord, error) {
	if m.err != nil {
		return domain.KcRecord{}, m.err
	}
	return domain.KcRecord{ID: string(raw.Key), Stage: domain.StageMid, Kc: 1.1}, nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	calls    int
	loaded   []domain.KcRecord
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.KcRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, records...)
	return nil
}

func (m *mockLoader) records() []domain.KcRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.KcRecord(nil), m.loaded...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, "obs-1", `{"field_id":"f1","crop":"corn","date":"2024-06-15"}`)

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, 500*time.Millisecond)

	got := ldr.records()
	require.Len(t, got, 1)
	assert.Equal(t, "obs-1", got[0].ID)
	assert.True(t, p.Ready())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no events, will block
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.records())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_TransformErrorSkipsAndCommits(t *testing.T) {
	committed := false
	raw := makeRawEvent(t, "obs-2", `not json`)
	raw.Commit = func(_ context.Context) error {
		committed = true
		return nil
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{err: errors.New("bad data")}, ldr, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, 300*time.Millisecond)

	assert.Empty(t, ldr.records())
	assert.False(t, p.Ready())
	assert.True(t, committed, "poison messages are committed so they are not redelivered")
}

func TestPipeline_Run_InvalidFactorDoesNotHoldBackBatch(t *testing.T) {
	var badCommitted, goodCommitted atomic.Bool
	bad := makeRawEvent(t, "f1", `{"field_id":"f1","crop":"corn","date":"2024-06-15","planting_date":"2024-04-01","max_temp":28,"min_temp":16,"base_temp":10,"canopy_height":-1}`)
	bad.Commit = func(_ context.Context) error { badCommitted.Store(true); return nil }
	good := makeRawEvent(t, "f2", `{"field_id":"f2","crop":"corn","date":"2024-06-15","planting_date":"2024-04-01","max_temp":28,"min_temp":16,"base_temp":10}`)
	good.Commit = func(_ context.Context) error { goodCommitted.Store(true); return nil }

	tfm, _ := newKcTransformer(t)
	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad, good}}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, tfm, ldr, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, 300*time.Millisecond)

	recs := ldr.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "f2", recs[0].FieldID)
	_, err := domain.SerializeKcRecord(recs[0])
	require.NoError(t, err)
	assert.True(t, badCommitted.Load(), "invalid observation is skipped and committed")
	assert.True(t, goodCommitted.Load())
}

func TestPipeline_Run_CommitsAfterLoad(t *testing.T) {
	var commits atomic.Int32
	batch := make([]domain.RawEvent, 3)
	for i := range batch {
		batch[i] = makeRawEvent(t, fmt.Sprintf("obs-%d", i), `{}`)
		batch[i].Topic = "field-observations"
		batch[i].Commit = func(_ context.Context) error {
			commits.Add(1)
			return nil
		}
	}

	ext := &mockExtractor{batches: [][]domain.RawEvent{batch}}
	ldr := &mockLoader{}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, 500*time.Millisecond)

	assert.Len(t, ldr.records(), 3)
	assert.Equal(t, int32(3), commits.Load())
}

func TestPipeline_Run_LoadFailureDoesNotCommitAndRetries(t *testing.T) {
	var commits atomic.Int32
	raw := makeRawEvent(t, "obs-3", `{}`)
	raw.Commit = func(_ context.Context) error {
		commits.Add(1)
		return nil
	}

	// The broker redelivers the uncommitted message in a second batch.
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}, {raw}}}
	ldr := &mockLoader{failures: 1}
	p := pipeline.New(ext, &mockTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, time.Second)

	assert.Len(t, ldr.records(), 1)
	assert.Equal(t, int32(1), commits.Load())
	assert.True(t, p.Ready())
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &failingExtractor{}
	p := pipeline.New(ext, &mockTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10)

	runFor(t, p, 500*time.Millisecond)

	// 200ms then 400ms: at most two retries fit in the window.
	assert.LessOrEqual(t, ext.calls.Load(), int32(3))
	assert.GreaterOrEqual(t, ext.calls.Load(), int32(2))
}

type failingExtractor struct {
	calls atomic.Int32
}

func (f *failingExtractor) ExtractBatch(_ context.Context, _ int) ([]domain.RawEvent, error) {
	f.calls.Add(1)
	return nil, errors.New("broker unavailable")
}

// --- KcTransformer ---

func newKcTransformer(t *testing.T) (*pipeline.KcTransformer, *season.Tracker) {
	t.Helper()
	cat, err := cropdb.Default()
	require.NoError(t, err)
	tracker := season.NewTracker(100)
	return pipeline.NewTransformer(cat, tracker, slog.Default()), tracker
}

func TestKcTransformer_Transform(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.June, 16, 6, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	tfm, _ := newKcTransformer(t)
	raw := makeRawEvent(t, "f1", `{"field_id":"f1","crop":"Corn","date":"2024-06-15","planting_date":"2024-04-01","max_temp":28,"min_temp":16,"base_temp":10,"wind_speed":3,"cumulative_gdd":600}`)

	rec, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)

	type summary struct {
		Crop     string
		Stage    domain.Stage
		Kc       float64
		Days     domain.Days
		GDD      domain.HeatUnits
		GDDStage domain.Stage
		GDDKc    float64
	}
	want := summary{Crop: "corn", Stage: domain.StageMid, Kc: 1.24, Days: 75, GDD: 600, GDDStage: domain.StageMid, GDDKc: 1.24}
	require.NotNil(t, rec.GDDKc)
	got := summary{rec.Crop, rec.Stage, rec.Kc, rec.DaysSincePlanting, rec.CumulativeGDD, rec.GDDStage, *rec.GDDKc}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, time.Date(2024, time.June, 16, 6, 0, 0, 0, time.UTC), rec.ProcessedAt)
}

func TestKcTransformer_AccumulatesSeasonGDD(t *testing.T) {
	tfm, tracker := newKcTransformer(t)

	var totals []domain.HeatUnits
	for _, date := range []string{"2024-04-02", "2024-04-03", "2024-04-03", "2024-04-04"} {
		payload := fmt.Sprintf(`{"field_id":"f9","crop":"wheat","date":%q,"planting_date":"2024-04-01","max_temp":20,"min_temp":10,"base_temp":5}`, date)
		rec, err := tfm.Transform(context.Background(), makeRawEvent(t, "f9", payload))
		require.NoError(t, err)
		totals = append(totals, rec.CumulativeGDD)
	}

	assert.Equal(t, []domain.HeatUnits{10, 20, 20, 30}, totals)
	total, ok := tracker.Total("f9", "wheat")
	require.True(t, ok)
	assert.Equal(t, domain.HeatUnits(30), total)
}

func TestKcTransformer_SuppliedCumulativeBypassesTracker(t *testing.T) {
	tfm, tracker := newKcTransformer(t)
	raw := makeRawEvent(t, "f2", `{"field_id":"f2","crop":"corn","date":"2024-05-01","planting_date":"2024-04-01","max_temp":25,"min_temp":15,"base_temp":10,"cumulative_gdd":350}`)

	rec, err := tfm.Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, domain.HeatUnits(350), rec.CumulativeGDD)
	assert.Equal(t, domain.StageDevelopment, rec.GDDStage)
	assert.Zero(t, tracker.Len())
}

func TestKcTransformer_Errors(t *testing.T) {
	tfm, _ := newKcTransformer(t)

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"unknown crop", `{"field_id":"f1","crop":"kale","date":"2024-06-15","planting_date":"2024-04-01"}`, domain.ErrUnknownCrop},
		{"no planting date", `{"field_id":"f1","crop":"corn","date":"2024-06-15"}`, domain.ErrNoPlantingDate},
		{"missing field", `{"crop":"corn","date":"2024-06-15"}`, domain.ErrMissingFieldID},
		{"negative canopy height", `{"field_id":"f1","crop":"corn","date":"2024-06-15","planting_date":"2024-04-01","canopy_height":-1}`, domain.ErrInvalidFactor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tfm.Transform(context.Background(), makeRawEvent(t, "k", tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// --- helpers ---

func makeRawEvent(t *testing.T, key, payload string) domain.RawEvent {
	t.Helper()
	return domain.RawEvent{
		Key:   []byte(key),
		Value: []byte(payload),
	}
}
