package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// PanelHeader is the column order of an exported panel.
var PanelHeader = []string{"key", "time", "category_en", "attacks", "name", "state", "pop", "attack_pop", "attack_pop_c"}

// PanelPath returns the export path of a panel granularity.
func PanelPath(dir string, g domain.Granularity) string {
	return filepath.Join(dir, fmt.Sprintf("panel_%s.csv", g))
}

// PanelSink writes each panel to its own CSV file in a directory.
type PanelSink struct {
	dir string
}

func NewPanelSink(dir string) *PanelSink {
	return &PanelSink{dir: dir}
}

func (s *PanelSink) Name() string { return "csv" }

// Store replaces the panel files for the given granularities.
func (s *PanelSink) Store(_ context.Context, panels []domain.Panel) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create panel dir: %w", err)
	}
	for _, p := range panels {
		if err := writeAtomic(PanelPath(s.dir, p.Granularity), func(w *csv.Writer) error {
			return writePanel(w, p.Cells)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writePanel(w *csv.Writer, cells []domain.Cell) error {
	if err := w.Write(PanelHeader); err != nil {
		return err
	}
	for _, c := range cells {
		rate := ""
		if c.AttackPop != nil {
			rate = strconv.FormatFloat(*c.AttackPop, 'f', 2, 64)
		}
		row := []string{
			strconv.Itoa(c.Key),
			c.Time.String(),
			string(c.Category),
			strconv.Itoa(c.Attacks),
			c.Name,
			c.State,
			strconv.FormatInt(c.Pop, 10),
			rate,
			c.AttackPopBin,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// ReadPanel reads a panel file written by PanelSink.
func ReadPanel(path string, g domain.Granularity) ([]domain.Cell, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(PanelHeader)
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var cells []domain.Cell
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return cells, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		c, err := parseCell(row, g)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		cells = append(cells, c)
	}
}

func parseCell(row []string, g domain.Granularity) (domain.Cell, error) {
	var (
		c   domain.Cell
		err error
	)
	if c.Key, err = strconv.Atoi(row[0]); err != nil {
		return c, fmt.Errorf("key: %w", err)
	}
	if c.Time, err = domain.ParseBucket(g, row[1]); err != nil {
		return c, err
	}
	c.Category = domain.Category(row[2])
	if c.Attacks, err = strconv.Atoi(row[3]); err != nil {
		return c, fmt.Errorf("attacks: %w", err)
	}
	c.Name, c.State = row[4], row[5]
	if c.Pop, err = strconv.ParseInt(row[6], 10, 64); err != nil {
		return c, fmt.Errorf("pop: %w", err)
	}
	if row[7] != "" {
		v, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			return c, fmt.Errorf("attack_pop: %w", err)
		}
		c.AttackPop = &v
	}
	c.AttackPopBin = row[8]
	return c, nil
}
