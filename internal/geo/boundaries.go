// Package geo assigns geocoded incidents to district polygons.
package geo

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Property names in the district boundary file (official AGS, name,
// district type, population).
const (
	propKey  = "AGS"
	propName = "GEN"
	propType = "BEZ"
	propPop  = "EWZ"
)

// Boundary is a district polygon projected to Web Mercator.
type Boundary struct {
	Locality domain.Locality
	polygons []*geom.Polygon
	bbox     [4]float64 // minX, minY, maxX, maxY
}

// Boundaries is an immutable district set ordered by key.
type Boundaries struct {
	items []Boundary
}

// LoadBoundaries reads a GeoJSON FeatureCollection of districts.
func LoadBoundaries(path string) (*Boundaries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open boundaries: %w", err)
	}
	defer f.Close()
	return ParseBoundaries(f)
}

// ParseBoundaries decodes a GeoJSON FeatureCollection whose features carry
// AGS, GEN, BEZ and EWZ properties and polygon or multipolygon geometry in
// WGS84.
func ParseBoundaries(r io.Reader) (*Boundaries, error) {
	var doc struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode boundaries: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(doc.Features))
	for i, raw := range doc.Features {
		var f geojson.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode feature %d: %w", i, err)
		}
		features = append(features, &f)
	}
	return NewBoundaries(features)
}

// NewBoundaries projects and indexes the given features. Keys must be
// unique district keys.
func NewBoundaries(features []*geojson.Feature) (*Boundaries, error) {
	items := make([]Boundary, 0, len(features))
	seen := make(map[int]bool, len(features))

	for i, f := range features {
		loc, err := localityFromProperties(f.Properties)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if seen[loc.Key] {
			return nil, fmt.Errorf("feature %d: duplicate key %d", i, loc.Key)
		}
		seen[loc.Key] = true

		polys, err := projectGeometry(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%d): %w", i, loc.Key, err)
		}
		items = append(items, newBoundary(loc, polys))
	}

	sort.Slice(items, func(a, b int) bool { return items[a].Locality.Key < items[b].Locality.Key })
	return &Boundaries{items: items}, nil
}

// Len returns the number of districts.
func (b *Boundaries) Len() int { return len(b.items) }

// Localities returns all districts ordered by key.
func (b *Boundaries) Localities() []domain.Locality {
	out := make([]domain.Locality, len(b.items))
	for i := range b.items {
		out[i] = b.items[i].Locality
	}
	return out
}

// Locate returns the district containing the WGS84 point. A point on a
// shared border goes to the district with the smaller key.
func (b *Boundaries) Locate(lat, lon float64) (domain.Locality, bool) {
	x, y := project(lon, lat)
	for i := range b.items {
		if b.items[i].contains(x, y) {
			return b.items[i].Locality, true
		}
	}
	return domain.Locality{}, false
}

func newBoundary(loc domain.Locality, polys []*geom.Polygon) Boundary {
	bd := Boundary{Locality: loc, polygons: polys}
	first := true
	for _, p := range polys {
		bounds := p.Bounds()
		if bounds.IsEmpty() {
			continue
		}
		minX, minY, maxX, maxY := bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
		if first {
			bd.bbox = [4]float64{minX, minY, maxX, maxY}
			first = false
			continue
		}
		bd.bbox[0] = min(bd.bbox[0], minX)
		bd.bbox[1] = min(bd.bbox[1], minY)
		bd.bbox[2] = max(bd.bbox[2], maxX)
		bd.bbox[3] = max(bd.bbox[3], maxY)
	}
	return bd
}

func localityFromProperties(props map[string]interface{}) (domain.Locality, error) {
	keyStr, ok := stringProp(props, propKey)
	if !ok {
		return domain.Locality{}, fmt.Errorf("missing %s", propKey)
	}
	key, err := strconv.Atoi(keyStr)
	if err != nil {
		return domain.Locality{}, fmt.Errorf("invalid %s %q: %w", propKey, keyStr, err)
	}
	if key < domain.StateKeyDivisor {
		return domain.Locality{}, fmt.Errorf("%s %d is not a district key", propKey, key)
	}

	name, _ := stringProp(props, propName)
	typ, _ := stringProp(props, propType)

	var pop int64
	if s, ok := stringProp(props, propPop); ok && s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Locality{}, fmt.Errorf("invalid %s %q: %w", propPop, s, err)
		}
		pop = int64(f)
	}

	return domain.Locality{Key: key, Name: name, Type: typ, Population: pop}, nil
}

func stringProp(props map[string]interface{}, name string) (string, bool) {
	v, ok := props[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
