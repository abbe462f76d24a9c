package geocode

import (
	"context"
	"fmt"
	"strconv"

	"github.com/couchcryptid/arvig-etl/internal/checkpoint"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// CacheHeader is the column layout of the persisted geocoding cache.
var CacheHeader = []string{"address", "address_formatted", "latitude", "longitude"}

// CachedGeocoder wraps a Geocoder with an in-memory cache backed by an
// append-only checkpoint file. Found and not-found results are cached;
// errors are not, so failed lookups are retried on the next run.
type CachedGeocoder struct {
	inner domain.Geocoder
	mem   *gocache.Cache
	store *checkpoint.Store
}

// NewCachedGeocoder creates a cache decorator around a geocoder. The store
// may be nil for a memory-only cache.
func NewCachedGeocoder(inner domain.Geocoder, store *checkpoint.Store) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		mem:   gocache.New(gocache.NoExpiration, 0),
		store: store,
	}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	if v, ok := c.mem.Get(address); ok {
		return v.(domain.GeocodingResult), nil
	}
	if c.store != nil {
		if row, ok := c.store.Get(address); ok {
			result, err := fromRow(row)
			if err == nil {
				c.mem.Set(address, result, gocache.NoExpiration)
				return result, nil
			}
		}
	}

	result, err := c.inner.Geocode(ctx, address)
	if err != nil {
		return result, err
	}
	result.Address = address
	c.mem.Set(address, result, gocache.NoExpiration)
	if c.store != nil {
		if err := c.store.Append(toRow(result)); err != nil {
			return result, fmt.Errorf("persist geocode result: %w", err)
		}
	}
	return result, nil
}

func toRow(r domain.GeocodingResult) []string {
	if !r.Found() {
		return []string{r.Address, r.FormattedAddress, "", ""}
	}
	return []string{
		r.Address,
		r.FormattedAddress,
		strconv.FormatFloat(r.Lat, 'f', -1, 64),
		strconv.FormatFloat(r.Lon, 'f', -1, 64),
	}
}

func fromRow(row []string) (domain.GeocodingResult, error) {
	result := domain.GeocodingResult{Address: row[0], FormattedAddress: row[1]}
	if row[2] == "" && row[3] == "" {
		return result, nil
	}
	lat, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse latitude %q: %w", row[2], err)
	}
	lon, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse longitude %q: %w", row[3], err)
	}
	result.Lat, result.Lon = lat, lon
	return result, nil
}
