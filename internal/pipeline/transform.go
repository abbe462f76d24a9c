package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// IncidentTransformer turns raw chronicle records into cleaned incidents with
// optional geocoding and translation enrichment.
type IncidentTransformer struct {
	normalizer *domain.CategoryNormalizer
	cleaner    *domain.Cleaner
	geocoder   domain.Geocoder
	translator domain.Translator
	logger     *slog.Logger
}

// NewTransformer creates an IncidentTransformer. Pass a nil geocoder or
// translator to disable that enrichment.
func NewTransformer(corrections *domain.Corrections, geocoder domain.Geocoder, translator domain.Translator, logger *slog.Logger) *IncidentTransformer {
	return &IncidentTransformer{
		normalizer: domain.NewCategoryNormalizer(domain.DefaultCategoryDelimiter, domain.DefaultCategoryLabels(), logger),
		cleaner:    domain.NewCleaner(corrections, logger),
		geocoder:   geocoder,
		translator: translator,
		logger:     logger,
	}
}

// Transform normalizes categories, cleans records, then enriches them.
// Enrichment failures only leave fields empty; a cancelled context is
// returned as an error.
func (t *IncidentTransformer) Transform(ctx context.Context, raw []domain.RawRecord, report *domain.RefreshReport) ([]domain.Incident, error) {
	incidents, catReport := t.normalizer.Normalize(raw)
	report.Categories = catReport

	incidents, report.Clean = t.cleaner.Clean(incidents)

	if t.geocoder != nil {
		incidents, report.Geocode = domain.EnrichWithGeocoding(ctx, incidents, t.geocoder, t.logger)
	}
	if t.translator != nil {
		incidents, report.Translate = domain.EnrichWithTranslation(ctx, incidents, t.translator, t.logger)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return incidents, nil
}
