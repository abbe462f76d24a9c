package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

const (
	earthRadius = 6378137.0
	// maxMercatorLat is where spherical Mercator reaches the square world.
	maxMercatorLat = 85.05112878
)

// project converts WGS84 degrees to spherical (Web) Mercator meters.
func project(lon, lat float64) (float64, float64) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func projectGeometry(g geom.T) ([]*geom.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{projectPolygon(t)}, nil
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, projectPolygon(t.Polygon(i)))
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func projectPolygon(p *geom.Polygon) *geom.Polygon {
	stride := p.Stride()
	flat := append([]float64(nil), p.FlatCoords()...)
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = project(flat[i], flat[i+1])
	}
	ends := append([]int(nil), p.Ends()...)
	return geom.NewPolygonFlat(p.Layout(), flat, ends)
}

// contains reports whether the projected point lies inside the exterior
// ring of one of the polygons and outside its holes.
func (b *Boundary) contains(x, y float64) bool {
	if x < b.bbox[0] || x > b.bbox[2] || y < b.bbox[1] || y > b.bbox[3] {
		return false
	}
	for _, p := range b.polygons {
		if polygonContains(p, x, y) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, x, y float64) bool {
	n := p.NumLinearRings()
	if n == 0 {
		return false
	}
	layout := p.Layout()
	coord := make(geom.Coord, layout.Stride())
	coord[0], coord[1] = x, y

	if !xy.IsPointInRing(layout, coord, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < n; i++ {
		if xy.IsPointInRing(layout, coord, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
