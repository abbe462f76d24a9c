package geo

import "github.com/couchcryptid/arvig-etl/internal/domain"

// MergeResult is the outcome of a spatial join anchored on the district set.
type MergeResult struct {
	// Incidents are the geo-tagged incidents ordered by ID.
	Incidents []domain.Incident
	// Unmatched lists districts without any incident.
	Unmatched []domain.Locality
	// Dropped counts incidents outside every district, including those
	// without coordinates.
	Dropped int
	// Ungeocoded is the part of Dropped that had no coordinates.
	Ungeocoded int
}

// Merge assigns each incident the district containing its point. IDs are
// the position in the input slice. Incidents without a containing
// district are dropped and counted.
func Merge(incidents []domain.Incident, b *Boundaries) MergeResult {
	res := MergeResult{Incidents: make([]domain.Incident, 0, len(incidents))}
	matched := make(map[int]bool, b.Len())

	for i, inc := range incidents {
		inc.ID = i
		if inc.Geo == nil {
			res.Dropped++
			res.Ungeocoded++
			continue
		}
		loc, ok := b.Locate(inc.Geo.Lat, inc.Geo.Lon)
		if !ok {
			res.Dropped++
			continue
		}
		l := loc
		inc.Locality = &l
		matched[loc.Key] = true
		res.Incidents = append(res.Incidents, inc)
	}

	for _, loc := range b.Localities() {
		if !matched[loc.Key] {
			res.Unmatched = append(res.Unmatched, loc)
		}
	}
	return res
}
