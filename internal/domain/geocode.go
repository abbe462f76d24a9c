package domain

import (
	"context"
	"log/slog"
)

// GeocodingResult contains location data returned by a geocoding provider.
// A zero result means the address was not found.
type GeocodingResult struct {
	Address          string
	FormattedAddress string
	Lat              float64
	Lon              float64
}

// Found reports whether the provider returned coordinates.
func (r GeocodingResult) Found() bool {
	return r.Lat != 0 || r.Lon != 0
}

// Geocoder resolves a free-form address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodingResult, error)
}

// GeocodeReport summarizes one enrichment pass over unique addresses.
type GeocodeReport struct {
	Addresses int `json:"addresses"`
	Resolved  int `json:"resolved"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
}

// EnrichWithGeocoding resolves each distinct address once and attaches the
// coordinates. Failed and unknown addresses leave Geo nil (graceful
// degradation). Incidents that already carry coordinates are kept as is.
func EnrichWithGeocoding(ctx context.Context, incidents []Incident, geocoder Geocoder, logger *slog.Logger) ([]Incident, GeocodeReport) {
	var report GeocodeReport
	out := make([]Incident, len(incidents))
	copy(out, incidents)
	if geocoder == nil {
		return out, report
	}

	resolved := make(map[string]*Geo)
	for i := range out {
		if out[i].Geo != nil || out[i].Address == "" {
			continue
		}
		addr := out[i].Address
		geo, seen := resolved[addr]
		if !seen {
			report.Addresses++
			geo = geocodeOne(ctx, geocoder, addr, &report, logger)
			resolved[addr] = geo
		}
		if geo != nil {
			g := *geo
			out[i].Geo = &g
		}
	}
	return out, report
}

func geocodeOne(ctx context.Context, geocoder Geocoder, addr string, report *GeocodeReport, logger *slog.Logger) *Geo {
	result, err := geocoder.Geocode(ctx, addr)
	if err != nil {
		logger.Warn("geocoding failed",
			"address", addr,
			"error", err,
		)
		report.Failed++
		return nil
	}
	if !result.Found() {
		logger.Debug("address not found", "address", addr)
		report.NotFound++
		return nil
	}
	report.Resolved++
	return &Geo{Lat: result.Lat, Lon: result.Lon, FormattedAddress: result.FormattedAddress}
}
