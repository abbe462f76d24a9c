// Package xlsx exports published panels as an Excel workbook with one sheet
// per granularity.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

var header = []any{"key", "time", "category_en", "attacks", "name", "state", "pop", "attack_pop", "attack_pop_c"}

// maxRows is the sheet row limit of the xlsx format.
const maxRows = 1048576

// Sink writes the workbook to a fixed path, replacing it on every refresh.
type Sink struct {
	path string
}

func NewSink(path string) *Sink {
	return &Sink{path: path}
}

func (s *Sink) Name() string { return "xlsx" }

func (s *Sink) Store(_ context.Context, panels []domain.Panel) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create xlsx dir: %w", err)
	}

	x := excelize.NewFile()
	defer x.Close()

	for i, p := range panels {
		name := string(p.Granularity)
		if len(p.Cells)+1 > maxRows {
			return fmt.Errorf("%s panel has %d cells, more than a sheet holds", name, len(p.Cells))
		}
		idx, err := x.NewSheet(name)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if i == 0 {
			x.SetActiveSheet(idx)
		}
		if err := writeSheet(x, name, p.Cells); err != nil {
			return fmt.Errorf("write sheet %s: %w", name, err)
		}
	}
	if len(panels) > 0 {
		if err := x.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := x.SaveAs(tmp); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", s.path, err)
	}
	return nil
}

func writeSheet(x *excelize.File, sheet string, cells []domain.Cell) error {
	sw, err := x.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, c := range cells {
		var rate any
		if c.AttackPop != nil {
			rate = *c.AttackPop
		}
		row := []any{c.Key, c.Time.String(), string(c.Category), c.Attacks, c.Name, c.State, c.Pop, rate, c.AttackPopBin}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}
