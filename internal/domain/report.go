package domain

import "time"

// RefreshReport summarizes one complete refresh run.
type RefreshReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Records    int             `json:"records"`
	Incidents  int             `json:"incidents"`
	Categories CategoryReport  `json:"categories"`
	Clean      CleanReport     `json:"clean"`
	Geocode    GeocodeReport   `json:"geocode"`
	Translate  TranslateReport `json:"translate"`
	// GeoDropped counts incidents dropped by the geo merge, including
	// those without coordinates.
	GeoDropped int `json:"geo_dropped"`
	// Ungeocoded is the part of GeoDropped without coordinates.
	Ungeocoded int `json:"ungeocoded"`
	// EmptyDistricts counts boundary districts without any incident.
	EmptyDistricts int                 `json:"empty_districts"`
	Cells          map[Granularity]int `json:"cells"`
}
