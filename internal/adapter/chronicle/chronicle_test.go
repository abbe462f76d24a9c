package chronicle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(date, city, state, category, body, source string) string {
	src := ""
	if source != "" {
		src = fmt.Sprintf(`<div class="field field-name-field-source"><div class="field-item">%s</div></div>`, source)
	}
	return fmt.Sprintf(`<div class="node node-chronik-eintrag">
  <div class="field field-name-field-date"><span>%s</span></div>
  <div class="field field-name-field-city">%s</div>
  <div class="field field-name-field-bundesland">%s</div>
  <div class="field field-name-field-art">%s</div>
  <div class="field field-name-body"><p>%s</p></div>
  %s
</div>`, date, city, state, category, body, src)
}

func listing(last int, entries ...string) string {
	pager := ""
	if last > 0 {
		pager = fmt.Sprintf(`<ul class="pager"><li class="pager-next"><a href="?page=1">›</a></li>`+
			`<li class="pager-last last"><a href="/service/chronik-vorfaelle?field_date_value%%5Bvalue%%5D%%5Byear%%5D=2017&amp;page=%d">»</a></li></ul>`, last)
	}
	return "<html><body>" + strings.Join(entries, "\n") + pager + "</body></html>"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T, year int) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

type site struct {
	robots   string
	pages    map[string]string // key: "year/page"
	failures atomic.Int32      // listing requests answered with status first
	status   int
	hits     atomic.Int32
}

func (s *site) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if s.robots == "" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(s.robots))
			return
		}
		s.hits.Add(1)
		if s.failures.Add(-1) >= 0 {
			w.WriteHeader(s.status)
			return
		}
		key := r.URL.Query().Get("field_date_value[value][year]") + "/" + r.URL.Query().Get("page")
		body, ok := s.pages[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string) *Client {
	c := NewClient(baseURL+"/service/chronik-vorfaelle", 2017, time.Millisecond, 5*time.Second, discardLogger())
	c.retryDelay = time.Millisecond
	return c
}

func TestReadYear_Paginated(t *testing.T) {
	freezeClock(t, 2018)
	s := &site{pages: map[string]string{
		"2017/0": listing(1,
			entry("21.02.2017", "Berline", "Berlin", "Sonstige Angriffe", "Beleidigung", "Quelle: Polizei Berlin"),
			entry("22.02.2017", "Leipzig", "Sachsen", "Brandanschlag& Sonstige Angriffe", "Feuer", "Quelle: LVZ"),
		),
		"2017/1": listing(1,
			entry("03.03.2017", "Bautzen", "Sachsen", "Kundgebung/Demo", "Demo", "Quelle: SZ"),
		),
	}}
	srv := s.server(t)

	got, err := newTestClient(srv.URL).ReadYear(context.Background(), 2017)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, domain.RawRecord{
		Date: "21.02.2017", City: "Berline", State: "Berlin", CategoryDE: "Sonstige Angriffe",
		DescriptionDE: "Beleidigung", Source: "Quelle: Polizei Berlin", PageNr: 0, Year: 2017,
	}, got[0])
	assert.Equal(t, "Brandanschlag& Sonstige Angriffe", got[1].CategoryDE)
	assert.Equal(t, 1, got[2].PageNr)
	assert.Equal(t, int32(2), s.hits.Load(), "first page fetched once")
}

func TestReadYear_MisalignedFallsBackToEntries(t *testing.T) {
	freezeClock(t, 2018)
	s := &site{pages: map[string]string{
		"2017/0": listing(0,
			entry("01.01.2017", "Halle", "Sachsen-Anhalt", "Sonstige Angriffe", "a", ""),
			entry("02.01.2017", "Köln", "Nordrhein-Westfalen", "Brandanschlag", "b", "Quelle: Express"),
		),
	}}
	srv := s.server(t)

	got, err := newTestClient(srv.URL).ReadYear(context.Background(), 2017)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Source)
	assert.Equal(t, "Quelle: Express", got[1].Source)
	assert.Equal(t, "Köln", got[1].City)
}

func TestReadYear_Unavailable(t *testing.T) {
	freezeClock(t, 2018)
	c := newTestClient("http://127.0.0.1:0")

	for _, year := range []int{2016, 2019} {
		_, err := c.ReadYear(context.Background(), year)
		require.ErrorIs(t, err, ErrYearUnavailable, "year %d", year)
	}
}

func TestReadYear_RobotsDisallow(t *testing.T) {
	freezeClock(t, 2018)
	s := &site{robots: "User-agent: *\nDisallow: /service/\n", pages: map[string]string{"2017/0": listing(0)}}
	srv := s.server(t)

	_, err := newTestClient(srv.URL).ReadYear(context.Background(), 2017)
	require.ErrorIs(t, err, ErrDisallowed)
	assert.Zero(t, s.hits.Load())
}

func TestReadYear_HTTPError(t *testing.T) {
	freezeClock(t, 2018)
	s := &site{pages: map[string]string{}}
	srv := s.server(t)

	_, err := newTestClient(srv.URL).ReadYear(context.Background(), 2017)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), s.hits.Load(), "not found is not retried")
}

func TestReadYear_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		failures int32
		wantErr  string
		wantHits int32
	}{
		{name: "one unavailable", status: http.StatusServiceUnavailable, failures: 1, wantHits: 2},
		{name: "throttled twice", status: http.StatusTooManyRequests, failures: 2, wantHits: 3},
		{name: "persistent server error", status: http.StatusBadGateway, failures: 10, wantErr: "status 502", wantHits: fetchAttempts},
		{name: "forbidden", status: http.StatusForbidden, failures: 1, wantErr: "status 403", wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freezeClock(t, 2018)
			s := &site{status: tt.status, pages: map[string]string{
				"2017/0": listing(0, entry("01.03.2017", "Jena", "Thüringen", "Sonstige Angriffe", "x", "Quelle: OTZ")),
			}}
			s.failures.Store(tt.failures)
			srv := s.server(t)

			got, err := newTestClient(srv.URL).ReadYear(context.Background(), 2017)
			assert.Equal(t, tt.wantHits, s.hits.Load())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "Jena", got[0].City)
		})
	}
}

func TestReadYear_RetryStopsOnCancel(t *testing.T) {
	freezeClock(t, 2018)
	s := &site{status: http.StatusServiceUnavailable, pages: map[string]string{}}
	s.failures.Store(10)
	srv := s.server(t)

	c := newTestClient(srv.URL)
	c.retryDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ReadYear(ctx, 2017)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), s.hits.Load())
}

func TestSaveYears_Resumes(t *testing.T) {
	freezeClock(t, 2018)
	dir := t.TempDir()
	require.NoError(t, csvfile.WriteYear(dir, 2017, nil))

	s := &site{pages: map[string]string{
		"2018/0": listing(0, entry("05.05.2018", "Dresden", "Sachsen", "Sonstige Angriffe", "x", "Quelle: DNN")),
	}}
	srv := s.server(t)

	require.NoError(t, newTestClient(srv.URL).SaveYears(context.Background(), dir, 2017, 2018))
	assert.Equal(t, int32(1), s.hits.Load(), "existing year skipped")

	got, err := csvfile.ReadYear(csvfile.YearPath(dir, 2018))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dresden", got[0].City)
}

func TestLastPage(t *testing.T) {
	got, err := lastPage(strings.NewReader(listing(7)))
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = lastPage(strings.NewReader(listing(0)))
	require.NoError(t, err)
	assert.Zero(t, got)
}
