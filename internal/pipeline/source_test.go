package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/couchcryptid/arvig-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockYearReader struct {
	mu    sync.Mutex
	years []int
	err   error
}

func (m *mockYearReader) ReadYear(_ context.Context, year int) ([]domain.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.years = append(m.years, year)
	if m.err != nil {
		return nil, m.err
	}
	return []domain.RawRecord{{Date: fmt.Sprintf("01.02.%d", year),
		City: "Leipzig", State: "Sachsen", CategoryDE: "Sonstige Angriffe", Year: year}}, nil
}

func freezeYear(t *testing.T, year int) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func TestArchiveSource_ScrapesMissingAndCurrentYears(t *testing.T) {
	freezeYear(t, 2019)
	dir := t.TempDir()
	require.NoError(t, csvfile.WriteYear(dir, 2016, []domain.RawRecord{{Date: "2016-03-01", City: "Köln", State: "Nordrhein-Westfalen", Year: 2016}}))
	require.NoError(t, csvfile.WriteYear(dir, 2017, nil))
	require.NoError(t, csvfile.WriteYear(dir, 2019, nil))

	reader := &mockYearReader{}
	src := pipeline.NewArchiveSource(reader, dir, 2016, 2019, 2017, slog.Default())

	records, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{2018, 2019}, reader.years, "2017 exists, 2019 is still growing")
	require.Len(t, records, 3)
	assert.Equal(t, "Köln", records[0].City)
}

func TestArchiveSource_WithoutReader(t *testing.T) {
	dir := t.TempDir()
	src := pipeline.NewArchiveSource(nil, dir, 2016, 2017, 2017, slog.Default())

	_, err := src.Load(context.Background())
	var missing *csvfile.MissingYearError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 2016, missing.Year)
}

func TestArchiveSource_ScrapeError(t *testing.T) {
	freezeYear(t, 2018)
	reader := &mockYearReader{err: errors.New("status 503")}
	src := pipeline.NewArchiveSource(reader, t.TempDir(), 2017, 2018, 2017, slog.Default())

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape year 2017")
}
