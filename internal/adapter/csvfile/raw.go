// Package csvfile reads and writes the pipeline's CSV artifacts: per-year raw
// chronicle files, panel exports and the cleaned incident export.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// RawHeader is the column order of a per-year raw file.
var RawHeader = []string{"date", "city", "state", "category_de", "description_de", "source", "page_nr", "year"}

// MissingYearError reports a per-year raw file that is not on disk. Years
// the chronicle does not publish can only be supplied by hand.
type MissingYearError struct {
	Year int
	Path string
}

func (e *MissingYearError) Error() string {
	return fmt.Sprintf("raw data for %d is missing; supply %s", e.Year, e.Path)
}

// YearPath returns the raw file path for a year.
func YearPath(dir string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("attacks_%d.csv", year))
}

// YearExists reports whether the raw file for year is present.
func YearExists(dir string, year int) bool {
	_, err := os.Stat(YearPath(dir, year))
	return err == nil
}

// WriteYear writes raw records for one year. The file appears atomically so
// an interrupted scrape never leaves a partial year behind.
func WriteYear(dir string, year int, records []domain.RawRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := YearPath(dir, year)
	return writeAtomic(path, func(w *csv.Writer) error {
		if err := w.Write(RawHeader); err != nil {
			return err
		}
		for _, r := range records {
			row := []string{
				r.Date, r.City, r.State, r.CategoryDE, r.DescriptionDE, r.Source,
				strconv.Itoa(r.PageNr), strconv.Itoa(r.Year),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadYears reads the raw files for every year in [from, to]. A missing
// year yields a *MissingYearError.
func LoadYears(dir string, from, to int) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for year := from; year <= to; year++ {
		path := YearPath(dir, year)
		records, err := ReadYear(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingYearError{Year: year, Path: path}
		}
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// ReadYear reads one raw file. Columns are located by header name; an
// optional address column is honored. A file with neither an address column
// nor both city and state columns yields a *domain.MissingFieldError.
func ReadYear(path string) ([]domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRaw(f, path)
}

func readRaw(r io.Reader, name string) ([]domain.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	_, hasAddress := col["address"]
	_, hasCity := col["city"]
	_, hasState := col["state"]
	if !hasAddress && (!hasCity || !hasState) {
		field := "city"
		if hasCity {
			field = "state"
		}
		return nil, &domain.MissingFieldError{Field: field, Row: 0}
	}

	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var out []domain.RawRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		rec := domain.RawRecord{
			Date:          get(row, "date"),
			City:          get(row, "city"),
			State:         get(row, "state"),
			Address:       get(row, "address"),
			CategoryDE:    get(row, "category_de"),
			DescriptionDE: get(row, "description_de"),
			Source:        get(row, "source"),
		}
		if rec.PageNr, err = atoiOrZero(get(row, "page_nr")); err != nil {
			return nil, fmt.Errorf("%s line %d: page_nr: %w", name, line, err)
		}
		if rec.Year, err = atoiOrZero(get(row, "year")); err != nil {
			return nil, fmt.Errorf("%s line %d: year: %w", name, line, err)
		}
		out = append(out, rec)
	}
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeAtomic(path string, fill func(*csv.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := fill(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
