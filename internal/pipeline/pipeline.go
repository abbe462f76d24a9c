package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/couchcryptid/arvig-etl/internal/geo"
	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/couchcryptid/arvig-etl/internal/timeseries"
	"github.com/jonboulle/clockwork"
)

// Source loads the raw chronicle records for one refresh.
type Source interface {
	Load(ctx context.Context) ([]domain.RawRecord, error)
}

// Transformer turns raw records into cleaned, enriched incidents and fills
// the corresponding sections of the report.
type Transformer interface {
	Transform(ctx context.Context, raw []domain.RawRecord, report *domain.RefreshReport) ([]domain.Incident, error)
}

// Sink stores the panels of a refresh.
type Sink interface {
	Name() string
	Store(ctx context.Context, panels []domain.Panel) error
}

// Options controls what a refresh publishes.
type Options struct {
	Granularities []domain.Granularity
	// DashboardMaxYear drops incidents after this year from the panels;
	// zero keeps every year.
	DashboardMaxYear          int
	DashboardExcludeSuspected bool
	// ExportPath receives the geo-tagged incidents as CSV; empty disables it.
	ExportPath string
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates load → transform → merge → aggregate → store and
// keeps the latest result in memory for the HTTP API.
type Pipeline struct {
	source      Source
	transformer Transformer
	boundaries  *geo.Boundaries
	sinks       []Sink
	opts        Options
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock

	ready    atomic.Bool
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	panels    map[domain.Granularity]domain.Panel
	report    domain.RefreshReport
	hasReport bool
}

// New creates a Pipeline with the given stages and observability.
func New(src Source, t Transformer, boundaries *geo.Boundaries, sinks []Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if len(opts.Granularities) == 0 {
		opts.Granularities = domain.Granularities()
	}
	return &Pipeline{
		source:      src,
		transformer: t,
		boundaries:  boundaries,
		sinks:       sinks,
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
	}
}

// WithClock replaces the clock used for scheduling. Used by tests.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// Ready reports whether a refresh has completed successfully.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil once a refresh has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.Ready() {
		return errors.New("no refresh has completed yet")
	}
	return nil
}

// Seed publishes previously stored panels until the first refresh finishes.
// It does not mark the pipeline ready.
func (p *Pipeline) Seed(panels []domain.Panel) {
	if len(panels) == 0 || p.snapshot.Load() != nil {
		return
	}
	p.snapshot.CompareAndSwap(nil, &snapshot{panels: indexPanels(panels)})
}

// Panel returns the latest panel for a granularity.
func (p *Pipeline) Panel(g domain.Granularity) (domain.Panel, bool) {
	s := p.snapshot.Load()
	if s == nil {
		return domain.Panel{}, false
	}
	panel, ok := s.panels[g]
	return panel, ok
}

// Report returns the report of the latest refresh.
func (p *Pipeline) Report() (domain.RefreshReport, bool) {
	s := p.snapshot.Load()
	if s == nil || !s.hasReport {
		return domain.RefreshReport{}, false
	}
	return s.report, true
}

// Refresh runs the whole pipeline once. The in-memory panels are replaced
// before the sinks run, so a sink failure still leaves fresh data served.
func (p *Pipeline) Refresh(ctx context.Context) (domain.RefreshReport, error) {
	start := p.clock.Now()
	report := domain.RefreshReport{StartedAt: domain.Now(), Cells: map[domain.Granularity]int{}}

	raw, err := p.source.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load records: %w", err)
	}
	report.Records = len(raw)
	p.metrics.RecordsLoaded.Add(float64(len(raw)))

	incidents, err := p.transformer.Transform(ctx, raw, &report)
	if err != nil {
		return report, fmt.Errorf("transform records: %w", err)
	}
	report.Incidents = len(incidents)

	merged := geo.Merge(incidents, p.boundaries)
	report.GeoDropped = merged.Dropped
	report.Ungeocoded = merged.Ungeocoded
	report.EmptyDistricts = len(merged.Unmatched)
	if merged.Dropped > 0 {
		p.logger.Warn("incidents outside every district dropped",
			"dropped", merged.Dropped,
			"ungeocoded", merged.Ungeocoded,
		)
	}

	if p.opts.ExportPath != "" {
		if err := csvfile.WriteIncidents(p.opts.ExportPath, merged.Incidents); err != nil {
			return report, fmt.Errorf("export incidents: %w", err)
		}
	}

	subset := timeseries.DashboardSubset(merged.Incidents, p.opts.DashboardMaxYear, p.opts.DashboardExcludeSuspected)
	refreshedAt := domain.Now()
	panels := make([]domain.Panel, 0, len(p.opts.Granularities))
	for _, g := range p.opts.Granularities {
		cells := timeseries.Aggregate(subset, g, timeseries.Options{})
		panels = append(panels, domain.Panel{Granularity: g, RefreshedAt: refreshedAt, Cells: cells})
		report.Cells[g] = len(cells)
		p.metrics.PanelCells.WithLabelValues(string(g)).Set(float64(len(cells)))
	}
	report.FinishedAt = domain.Now()
	p.recordQuality(report)
	p.snapshot.Store(&snapshot{panels: indexPanels(panels), report: report, hasReport: true})

	var sinkErrs []error
	for _, s := range p.sinks {
		if err := s.Store(ctx, panels); err != nil {
			p.logger.Error("sink failed", "sink", s.Name(), "error", err)
			p.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			sinkErrs = append(sinkErrs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	if err := errors.Join(sinkErrs...); err != nil {
		return report, err
	}

	p.metrics.RefreshDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Info("refresh complete",
		"records", report.Records,
		"incidents", report.Incidents,
		"geo_dropped", report.GeoDropped,
		"unparsed_dates", report.Clean.UnparsedDates,
	)
	return report, nil
}

func (p *Pipeline) recordQuality(r domain.RefreshReport) {
	m := p.metrics
	m.CategoryRowsAdded.Add(float64(r.Categories.RowsAdded))
	m.CategoryRecategorized.Add(float64(r.Categories.Recategorized))
	m.CategoryUnmapped.Add(float64(r.Categories.UnmappedRows()))
	m.DatesUnparsed.Add(float64(r.Clean.UnparsedDates))
	m.GeoDropped.Add(float64(r.GeoDropped))
	m.GeocodeRequests.WithLabelValues("resolved").Add(float64(r.Geocode.Resolved))
	m.GeocodeRequests.WithLabelValues("not_found").Add(float64(r.Geocode.NotFound))
	m.GeocodeRequests.WithLabelValues("error").Add(float64(r.Geocode.Failed))
	m.TranslateRequests.WithLabelValues("translated").Add(float64(r.Translate.Translated))
	m.TranslateRequests.WithLabelValues("error").Add(float64(r.Translate.Failed))
}

// Run refreshes immediately and then every interval until the context is
// cancelled. Failed refreshes are retried with exponential backoff.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("pipeline started", "interval", interval.String())
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		wait := interval
		if _, err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.metrics.RefreshErrors.Inc()
			p.logger.Error("refresh failed", "error", err, "retry_in", backoff.String())
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = initialBackoff
		}

		if !p.sleepWithContext(ctx, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func indexPanels(panels []domain.Panel) map[domain.Granularity]domain.Panel {
	out := make(map[domain.Granularity]domain.Panel, len(panels))
	for _, p := range panels {
		out[p.Granularity] = p
	}
	return out
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (p *Pipeline) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
