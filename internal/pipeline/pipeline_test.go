package pipeline_test

import (
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/couchcryptid/arvig-etl/internal/geo"
	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/couchcryptid/arvig-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	records []domain.RawRecord
	fails   int
	calls   atomic.Int64
}

func (m *mockSource) Load(_ context.Context) ([]domain.RawRecord, error) {
	if int(m.calls.Add(1)) <= m.fails {
		return nil, errors.New("chronicle unreachable")
	}
	return m.records, nil
}

type mockGeocoder map[string]domain.GeocodingResult

func (m mockGeocoder) Geocode(_ context.Context, address string) (domain.GeocodingResult, error) {
	return m[address], nil
}

type mockSink struct {
	name   string
	err    error
	stored []domain.Panel
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Store(_ context.Context, panels []domain.Panel) error {
	m.stored = panels
	return m.err
}

// --- fixtures ---

const testBoundaries = `{"type": "FeatureCollection", "features": [
  {"type": "Feature",
   "properties": {"AGS": "09162", "GEN": "München", "BEZ": "Kreisfreie Stadt", "EWZ": 1000000},
   "geometry": {"type": "Polygon", "coordinates": [[[11,48],[12,48],[12,48.5],[11,48.5],[11,48]]]}}
]}`

func loadBoundaries(t *testing.T) *geo.Boundaries {
	t.Helper()
	b, err := geo.ParseBoundaries(strings.NewReader(testBoundaries))
	require.NoError(t, err)
	return b
}

func rawRecords() []domain.RawRecord {
	return []domain.RawRecord{
		{Date: "03.04.2018", City: "München", State: "Bayern", CategoryDE: "Brandanschlag", Year: 2018},
		{Date: "05.06.2018", City: "München", State: "Bayern", CategoryDE: "Verdachtsfall", Year: 2018},
		{Date: "07.08.2018", City: "Wien", State: "Wien", CategoryDE: "Sonstige Angriffe", Year: 2018},
	}
}

func testGeocoder() mockGeocoder {
	return mockGeocoder{
		"München, Bayern": {Address: "München, Bayern", FormattedAddress: "München, Deutschland", Lat: 48.137, Lon: 11.575},
		"Wien, Wien":      {Address: "Wien, Wien", FormattedAddress: "Wien, Österreich", Lat: 48.208, Lon: 16.373},
	}
}

func newTestPipeline(t *testing.T, src pipeline.Source, sinks []pipeline.Sink, opts pipeline.Options) (*pipeline.Pipeline, *observability.Metrics) {
	t.Helper()
	corr, err := domain.DefaultCorrections()
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	tfm := pipeline.NewTransformer(corr, testGeocoder(), nil, slog.Default())
	return pipeline.New(src, tfm, loadBoundaries(t), sinks, opts, slog.Default(), metrics), metrics
}

func findCell(cells []domain.Cell, key int, c domain.Category) (domain.Cell, bool) {
	for _, cell := range cells {
		if cell.Key == key && cell.Category == c {
			return cell, true
		}
	}
	return domain.Cell{}, false
}

// --- tests ---

func TestPipeline_Refresh_HappyPath(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2020, time.January, 2, 6, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	sink := &mockSink{name: "memory"}
	exportPath := filepath.Join(t.TempDir(), "arvig.csv")
	p, metrics := newTestPipeline(t, &mockSource{records: rawRecords()}, []pipeline.Sink{sink}, pipeline.Options{
		Granularities:             []domain.Granularity{domain.GranularityYear},
		DashboardExcludeSuspected: true,
		ExportPath:                exportPath,
	})

	report, err := p.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 3, report.Incidents)
	assert.Equal(t, 1, report.GeoDropped, "Wien lies outside every district")
	assert.Equal(t, 0, report.Ungeocoded)
	assert.Equal(t, 2, report.Geocode.Resolved)

	require.Len(t, sink.stored, 1)
	panel := sink.stored[0]
	assert.Equal(t, domain.GranularityYear, panel.Granularity)
	assert.Equal(t, fakeClock.Now(), panel.RefreshedAt)
	assert.Equal(t, len(panel.Cells), report.Cells[domain.GranularityYear])

	all, ok := findCell(panel.Cells, 9162, domain.CategoryAll)
	require.True(t, ok)
	assert.Equal(t, 1, all.Attacks, "suspected case excluded")
	require.NotNil(t, all.AttackPop)
	assert.InDelta(t, 0.1, *all.AttackPop, 1e-9)

	served, ok := p.Panel(domain.GranularityYear)
	require.True(t, ok)
	assert.Equal(t, panel, served)
	_, ok = p.Panel(domain.GranularityWeek)
	assert.False(t, ok)

	got, ok := p.Report()
	require.True(t, ok)
	assert.Equal(t, report.Records, got.Records)

	f, err := os.Open(exportPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvfile.IncidentHeader, rows[0])
	assert.Len(t, rows, 3, "header plus the two located incidents")

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeoDropped))
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Refresh_SourceError(t *testing.T) {
	sink := &mockSink{name: "memory"}
	p, _ := newTestPipeline(t, &mockSource{fails: 1}, []pipeline.Sink{sink}, pipeline.Options{})

	_, err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load records")
	assert.Nil(t, sink.stored)
	assert.False(t, p.Ready())
	_, ok := p.Report()
	assert.False(t, ok)
}

func TestPipeline_Refresh_BlankStateRowIsDropped(t *testing.T) {
	records := append(rawRecords(), domain.RawRecord{Date: "01.01.2018", City: "Augsburg", State: "", CategoryDE: "Brandanschlag", Year: 2018})
	sink := &mockSink{name: "memory"}
	p, _ := newTestPipeline(t, &mockSource{records: records}, []pipeline.Sink{sink}, pipeline.Options{
		Granularities: []domain.Granularity{domain.GranularityYear},
	})

	report, err := p.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Records)
	assert.Equal(t, 1, report.Clean.Unlocatable)
	assert.Equal(t, 1, report.Ungeocoded)
	assert.Equal(t, 2, report.GeoDropped, "blank-state row and Wien")

	require.Len(t, sink.stored, 1)
	all, ok := findCell(sink.stored[0].Cells, 9162, domain.CategoryAll)
	require.True(t, ok)
	assert.Equal(t, 2, all.Attacks)
	assert.True(t, p.Ready())
}

func TestPipeline_Refresh_SinkErrorKeepsOtherSinks(t *testing.T) {
	failing := &mockSink{name: "sqlite", err: errors.New("disk full")}
	healthy := &mockSink{name: "csv"}
	p, metrics := newTestPipeline(t, &mockSource{records: rawRecords()}, []pipeline.Sink{failing, healthy}, pipeline.Options{
		Granularities: []domain.Granularity{domain.GranularityYear, domain.GranularityMonth},
	})

	_, err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite sink")
	assert.Len(t, healthy.stored, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("sqlite")))

	_, ok := p.Panel(domain.GranularityMonth)
	assert.True(t, ok, "panels are served even when a sink fails")
	assert.False(t, p.Ready())
}

func TestPipeline_Seed(t *testing.T) {
	p, _ := newTestPipeline(t, &mockSource{records: rawRecords()}, nil, pipeline.Options{})

	seeded := domain.Panel{Granularity: domain.GranularityYear, Cells: []domain.Cell{{Key: 0, Attacks: 42}}}
	p.Seed([]domain.Panel{seeded})

	got, ok := p.Panel(domain.GranularityYear)
	require.True(t, ok)
	assert.Equal(t, 42, got.Cells[0].Attacks)
	_, ok = p.Report()
	assert.False(t, ok, "a seed has no report")
	assert.False(t, p.Ready())

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	got, _ = p.Panel(domain.GranularityYear)
	assert.NotEqual(t, 42, got.Cells[0].Attacks)

	p.Seed([]domain.Panel{seeded})
	got, _ = p.Panel(domain.GranularityYear)
	assert.NotEqual(t, 42, got.Cells[0].Attacks, "seed never replaces a refresh")
}

func TestPipeline_Run_RetriesWithBackoff(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	src := &mockSource{records: rawRecords(), fails: 1}
	p, metrics := newTestPipeline(t, src, nil, pipeline.Options{})
	p.WithClock(fakeClock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Hour) }()

	require.NoError(t, fakeClock.BlockUntilContext(ctx, 1))
	assert.False(t, p.Ready())
	fakeClock.Advance(200 * time.Millisecond)

	require.Eventually(t, p.Ready, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(2), src.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshErrors))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	src := &mockSource{records: rawRecords()}
	p, _ := newTestPipeline(t, src, nil, pipeline.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, time.Hour)
	require.NoError(t, err)
	assert.LessOrEqual(t, src.calls.Load(), int64(1))
}
