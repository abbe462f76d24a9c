package domain

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultCutoverYear is the first year published with day-first dates.
	DefaultCutoverYear = 2017

	// Layouts accept both padded and unpadded day and month.
	isoDateLayout      = "2006-1-2"
	dayFirstDateLayout = "2.1.2006"

	sourcePrefix = "Quelle:"
)

// MissingFieldError reports a raw data set that cannot be located at all
// because it has neither an address column nor both city and state columns.
type MissingFieldError struct {
	Field string
	Row   int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %s (row %d)", e.Field, e.Row)
}

// CleanReport summarizes one cleaning pass.
type CleanReport struct {
	UnparsedDates    int `json:"unparsed_dates"`
	// Unlocatable counts rows left without an address because city or
	// state is blank. They are dropped by the geo merge.
	Unlocatable      int `json:"unlocatable"`
	CityCorrections  int `json:"city_corrections"`
	StateCorrections int `json:"state_corrections"`
}

// Cleaner normalizes free text, parses dates and applies the correction
// table. Cleaning is idempotent.
type Cleaner struct {
	corrections *Corrections
	cutoverYear int
	logger      *slog.Logger
}

// NewCleaner creates a Cleaner using the given correction table.
func NewCleaner(corrections *Corrections, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		corrections: corrections,
		cutoverYear: DefaultCutoverYear,
		logger:      logger,
	}
}

// Clean returns cleaned copies of incidents sorted ascending by date, with
// undated incidents last in their original order. The input is not modified.
func (c *Cleaner) Clean(incidents []Incident) ([]Incident, CleanReport) {
	var report CleanReport
	out := make([]Incident, len(incidents))

	for i, inc := range incidents {
		inc.City = normalizeText(inc.City)
		inc.State = normalizeText(inc.State)
		inc.Address = normalizeText(inc.Address)
		inc.DescriptionDE = normalizeText(inc.DescriptionDE)
		inc.DescriptionEN = normalizeText(inc.DescriptionEN)
		inc.Source = cleanSource(inc.Source)

		if !inc.HasDate() {
			date, ok := c.parseDate(inc.RawDate, inc.Year)
			if ok {
				inc.Date = date
				inc.Year = date.Year()
			} else {
				report.UnparsedDates++
				c.logger.Warn("unparseable date",
					"date", inc.RawDate,
					"year", inc.Year,
					"city", inc.City,
				)
			}
		}

		city, state := c.corrections.Apply(inc.City, inc.State, inc.Date)
		if city != inc.City {
			report.CityCorrections++
		}
		if state != inc.State {
			report.StateCorrections++
		}
		inc.City, inc.State = city, state

		if inc.Address == "" {
			if inc.City != "" && inc.State != "" {
				inc.Address = inc.City + ", " + inc.State
			} else {
				report.Unlocatable++
				c.logger.Warn("record without location",
					"row", i,
					"city", inc.City,
					"state", inc.State,
				)
			}
		}
		out[i] = inc
	}

	sort.SliceStable(out, func(a, b int) bool {
		da, db := out[a].Date, out[b].Date
		if da.IsZero() || db.IsZero() {
			return !da.IsZero() && db.IsZero()
		}
		return da.Before(db)
	})
	return out, report
}

// parseDate picks the layout by publication year. Year 0 means unknown, in
// which case both layouts are tried.
func (c *Cleaner) parseDate(raw string, year int) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	var layouts []string
	switch {
	case year == 0:
		layouts = []string{isoDateLayout, dayFirstDateLayout}
	case year < c.cutoverYear:
		layouts = []string{isoDateLayout}
	default:
		layouts = []string{dayFirstDateLayout}
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func cleanSource(s string) string {
	s = normalizeText(s)
	for strings.HasPrefix(s, sourcePrefix) {
		s = strings.TrimSpace(strings.TrimPrefix(s, sourcePrefix))
	}
	return s
}
