package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/chronicle"
	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/adapter/geocode"
	kafkaadapter "github.com/couchcryptid/arvig-etl/internal/adapter/kafka"
	"github.com/couchcryptid/arvig-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/arvig-etl/internal/adapter/translate"
	"github.com/couchcryptid/arvig-etl/internal/adapter/xlsx"
	"github.com/couchcryptid/arvig-etl/internal/checkpoint"
	"github.com/couchcryptid/arvig-etl/internal/config"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/couchcryptid/arvig-etl/internal/geo"
	"github.com/couchcryptid/arvig-etl/internal/observability"
	"github.com/couchcryptid/arvig-etl/internal/pipeline"
)

const (
	chronicleTimeout = 30 * time.Second
	translateTimeout = 60 * time.Second
	nominatimTimeout = 10 * time.Second
)

// app holds everything a refresh needs. close releases files and
// connections in reverse order of creation.
type app struct {
	pipeline *pipeline.Pipeline
	store    *sqlite.Store
	closers  []func() error
	logger   *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}
}

func newChronicleClient(cfg *config.Config, logger *slog.Logger) *chronicle.Client {
	return chronicle.NewClient(cfg.ChronicleURL, cfg.ChronicleFirstYear, cfg.ChronicleRate, chronicleTimeout, logger)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, scrape bool) (_ *app, err error) {
	ap := &app{logger: logger}
	defer func() {
		if err != nil {
			ap.close()
		}
	}()

	corrections, err := loadCorrections(cfg)
	if err != nil {
		return nil, err
	}
	boundaries, err := geo.LoadBoundaries(cfg.BoundariesFile)
	if err != nil {
		return nil, fmt.Errorf("load boundaries: %w", err)
	}
	logger.Info("boundaries loaded", "districts", boundaries.Len())

	geocoder, err := ap.buildGeocoder(cfg)
	if err != nil {
		return nil, err
	}
	translator, err := ap.buildTranslator(cfg)
	if err != nil {
		return nil, err
	}
	sinks, err := ap.buildSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var reader pipeline.YearReader
	if scrape {
		reader = newChronicleClient(cfg, logger)
	}
	source := pipeline.NewArchiveSource(reader, cfg.DataDir, cfg.FirstYear, cfg.LastYear, cfg.ChronicleFirstYear, logger)
	transformer := pipeline.NewTransformer(corrections, geocoder, translator, logger)

	granularities := domain.Granularities()
	if cfg.DayPanel {
		granularities = append(granularities, domain.GranularityDay)
	}

	ap.pipeline = pipeline.New(source, transformer, boundaries, sinks, pipeline.Options{
		Granularities:             granularities,
		DashboardMaxYear:          cfg.DashboardMaxYear,
		DashboardExcludeSuspected: cfg.DashboardExcludeSuspected,
		ExportPath:                filepath.Join(cfg.DataDir, "arvig.csv"),
	}, logger, metrics)
	return ap, nil
}

func loadCorrections(cfg *config.Config) (*domain.Corrections, error) {
	if cfg.CorrectionsFile == "" {
		return domain.DefaultCorrections()
	}
	c, err := domain.LoadCorrections(cfg.CorrectionsFile)
	if err != nil {
		return nil, fmt.Errorf("load corrections: %w", err)
	}
	return c, nil
}

func (a *app) buildGeocoder(cfg *config.Config) (domain.Geocoder, error) {
	var inner domain.Geocoder
	interval := cfg.GeocoderRate
	if cfg.MapboxEnabled {
		inner = geocode.NewMapboxClient(cfg.MapboxToken, cfg.MapboxTimeout)
		a.logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
	} else {
		inner = geocode.NewNominatimClient(nominatimTimeout)
		// Nominatim's usage policy allows one request per second.
		interval = max(interval, time.Second)
		a.logger.Info("nominatim geocoding enabled")
	}
	throttled := geocode.NewThrottledGeocoder(inner, interval)

	var store *checkpoint.Store
	if cfg.GeocodeCacheFile != "" {
		s, err := checkpoint.Open(cfg.GeocodeCacheFile, geocode.CacheHeader)
		if err != nil {
			return nil, fmt.Errorf("open geocode cache: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		store = s
	}
	return geocode.NewCachedGeocoder(throttled, store), nil
}

func (a *app) buildTranslator(cfg *config.Config) (domain.Translator, error) {
	if !cfg.TranslateEnabled {
		a.logger.Info("translation disabled")
		return nil, nil
	}
	client, err := translate.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, translateTimeout)
	if err != nil {
		return nil, err
	}

	var store *checkpoint.Store
	if cfg.TranslateCacheFile != "" {
		s, err := checkpoint.Open(cfg.TranslateCacheFile, translate.CacheHeader)
		if err != nil {
			return nil, fmt.Errorf("open translation cache: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		store = s
	}
	a.logger.Info("translation enabled", "model", cfg.OpenAIModel)
	return translate.NewCachedTranslator(client, store), nil
}

func (a *app) buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]pipeline.Sink, error) {
	var sinks []pipeline.Sink
	if cfg.PanelCSVDir != "" {
		sinks = append(sinks, csvfile.NewPanelSink(cfg.PanelCSVDir))
	}
	if cfg.SQLitePath != "" {
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.store = s
		sinks = append(sinks, s)
	}
	if cfg.XLSXPath != "" {
		sinks = append(sinks, xlsx.NewSink(cfg.XLSXPath))
	}
	if len(cfg.KafkaBrokers) > 0 {
		w := kafkaadapter.NewWriter(cfg, logger)
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, w)
	}
	if len(sinks) == 0 {
		return nil, errors.New("no sink configured")
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Info("sinks configured", "sinks", names)
	return sinks, nil
}
