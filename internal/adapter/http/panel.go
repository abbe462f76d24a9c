package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

// panelQuery holds the parsed filters of GET /api/panel. Zero values mean
// "no filter".
type panelQuery struct {
	granularity domain.Granularity
	level       domain.Level
	category    domain.Category
	year        int
	from, to    *domain.Bucket
	key         *int
}

func parsePanelQuery(q url.Values) (panelQuery, error) {
	pq := panelQuery{granularity: domain.GranularityYear}

	if s := q.Get("granularity"); s != "" {
		g, err := domain.ParseGranularity(s)
		if err != nil {
			return pq, err
		}
		pq.granularity = g
	}
	if s := q.Get("level"); s != "" {
		l, err := domain.ParseLevel(s)
		if err != nil {
			return pq, err
		}
		pq.level = l
	}
	pq.category = domain.Category(q.Get("category"))
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return pq, fmt.Errorf("invalid year %q", s)
		}
		pq.year = y
	}
	for _, b := range []struct {
		name string
		dst  **domain.Bucket
	}{{"from", &pq.from}, {"to", &pq.to}} {
		if s := q.Get(b.name); s != "" {
			bucket, err := domain.ParseBucket(pq.granularity, s)
			if err != nil {
				return pq, fmt.Errorf("invalid %s: %w", b.name, err)
			}
			*b.dst = &bucket
		}
	}
	if s := q.Get("key"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil {
			return pq, fmt.Errorf("invalid key %q", s)
		}
		pq.key = &k
	}
	return pq, nil
}

func (pq panelQuery) match(c domain.Cell) bool {
	switch {
	case pq.level != "" && c.Level() != pq.level:
		return false
	case pq.category != "" && c.Category != pq.category:
		return false
	case pq.year != 0 && c.Time.Start.Year() != pq.year:
		return false
	case pq.from != nil && c.Time.Before(*pq.from):
		return false
	case pq.to != nil && pq.to.Before(c.Time):
		return false
	case pq.key != nil && c.Key != *pq.key:
		return false
	}
	return true
}

func handlePanel(src PanelSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pq, err := parsePanelQuery(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		panel, ok := src.Panel(pq.granularity)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no panel for granularity "+string(pq.granularity))
			return
		}

		cells := make([]domain.Cell, 0, len(panel.Cells))
		for _, c := range panel.Cells {
			if pq.match(c) {
				cells = append(cells, c)
			}
		}
		writeJSON(w, http.StatusOK, domain.Panel{
			Granularity: panel.Granularity,
			RefreshedAt: panel.RefreshedAt,
			Cells:       cells,
		})
	}
}
