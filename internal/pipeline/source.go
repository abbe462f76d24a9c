package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// YearReader fetches the raw records of one chronicle year.
type YearReader interface {
	ReadYear(ctx context.Context, year int) ([]domain.RawRecord, error)
}

// ArchiveSource serves raw records from the per-year files in a data
// directory. Years the chronicle covers are scraped when their file is
// missing, and the current year is scraped again on every load because it
// is still growing.
type ArchiveSource struct {
	reader         YearReader
	dir            string
	from, to       int
	chronicleFirst int
	logger         *slog.Logger
}

// NewArchiveSource creates a source for [from, to]. A nil reader serves the
// existing files only.
func NewArchiveSource(reader YearReader, dir string, from, to, chronicleFirst int, logger *slog.Logger) *ArchiveSource {
	return &ArchiveSource{
		reader:         reader,
		dir:            dir,
		from:           from,
		to:             to,
		chronicleFirst: chronicleFirst,
		logger:         logger,
	}
}

// Load scrapes what is missing and reads every year of the range.
func (s *ArchiveSource) Load(ctx context.Context) ([]domain.RawRecord, error) {
	if s.reader != nil {
		if err := s.sync(ctx); err != nil {
			return nil, err
		}
	}
	return csvfile.LoadYears(s.dir, s.from, s.to)
}

func (s *ArchiveSource) sync(ctx context.Context) error {
	current := domain.Now().Year()
	for year := max(s.from, s.chronicleFirst); year <= s.to && year <= current; year++ {
		if year != current && csvfile.YearExists(s.dir, year) {
			continue
		}
		records, err := s.reader.ReadYear(ctx, year)
		if err != nil {
			return fmt.Errorf("scrape year %d: %w", year, err)
		}
		if err := csvfile.WriteYear(s.dir, year, records); err != nil {
			return err
		}
		s.logger.Info("raw year scraped", "year", year, "records", len(records))
	}
	return nil
}
