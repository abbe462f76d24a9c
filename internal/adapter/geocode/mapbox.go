// Package geocode resolves chronicle addresses to coordinates using Mapbox or
// Nominatim, with rate limiting and a persistent CSV cache.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

const mapboxBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// MapboxClient implements domain.Geocoder using the Mapbox Geocoding API.
type MapboxClient struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewMapboxClient creates a Mapbox geocoding client.
func NewMapboxClient(token string, timeout time.Duration) *MapboxClient {
	return &MapboxClient{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    mapboxBaseURL,
	}
}

// Geocode converts an address to coordinates, restricted to places in Germany.
func (c *MapboxClient) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(address))
	params := url.Values{
		"access_token": {c.token},
		"country":      {"de"},
		"limit":        {"1"},
		"types":        {"place,locality"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("mapbox geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	result := domain.GeocodingResult{Address: address}
	if len(mapboxResp.Features) == 0 {
		return result, nil
	}

	f := mapboxResp.Features[0]
	if len(f.Center) == 2 {
		result.FormattedAddress = f.PlaceName
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}
	return result, nil
}

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
}
