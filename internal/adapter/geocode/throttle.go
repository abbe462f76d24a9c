package geocode

import (
	"context"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	"golang.org/x/time/rate"
)

// ThrottledGeocoder spaces requests to the wrapped geocoder at least
// interval apart.
type ThrottledGeocoder struct {
	inner   domain.Geocoder
	limiter *rate.Limiter
}

func NewThrottledGeocoder(inner domain.Geocoder, interval time.Duration) *ThrottledGeocoder {
	return &ThrottledGeocoder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (t *ThrottledGeocoder) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return domain.GeocodingResult{}, err
	}
	return t.inner.Geocode(ctx, address)
}
