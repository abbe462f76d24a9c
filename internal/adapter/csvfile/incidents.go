package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// IncidentHeader is the column order of the cleaned incident export.
var IncidentHeader = []string{
	"attack_id", "date", "year", "city", "state", "address",
	"category_de", "category_en", "description_de", "description_en", "source", "page_nr",
	"latitude", "longitude", "address_formatted", "key", "name", "type", "pop",
}

// WriteIncidents exports geo-tagged incidents, one row per category.
func WriteIncidents(path string, incidents []domain.Incident) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return writeAtomic(path, func(w *csv.Writer) error {
		if err := w.Write(IncidentHeader); err != nil {
			return err
		}
		for _, inc := range incidents {
			if err := w.Write(incidentRow(inc)); err != nil {
				return err
			}
		}
		return nil
	})
}

func incidentRow(inc domain.Incident) []string {
	date := ""
	if inc.HasDate() {
		date = inc.Date.Format("2006-01-02")
	}
	row := []string{
		strconv.Itoa(inc.ID), date, strconv.Itoa(inc.Year), inc.City, inc.State, inc.Address,
		inc.CategoryDE, string(inc.Category), inc.DescriptionDE, inc.DescriptionEN, inc.Source, strconv.Itoa(inc.PageNr),
		"", "", "", "", "", "", "",
	}
	if g := inc.Geo; g != nil {
		row[12] = strconv.FormatFloat(g.Lat, 'f', -1, 64)
		row[13] = strconv.FormatFloat(g.Lon, 'f', -1, 64)
		row[14] = g.FormattedAddress
	}
	if l := inc.Locality; l != nil {
		row[15] = strconv.Itoa(l.Key)
		row[16] = l.Name
		row[17] = l.Type
		row[18] = strconv.FormatInt(l.Population, 10)
	}
	return row
}
