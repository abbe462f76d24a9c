package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/domain"
)

const (
	nominatimBaseURL = "https://nominatim.openstreetmap.org/search"
	userAgent        = "arvig-etl/1.0 (+https://github.com/couchcryptid/arvig-etl)"
)

// NominatimClient implements domain.Geocoder using the OpenStreetMap
// Nominatim search API. It needs no token but requires an identifying
// User-Agent and at most one request per second.
type NominatimClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewNominatimClient(timeout time.Duration) *NominatimClient {
	return &NominatimClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    nominatimBaseURL,
	}
}

func (c *NominatimClient) Geocode(ctx context.Context, address string) (domain.GeocodingResult, error) {
	params := url.Values{
		"q":            {address},
		"format":       {"jsonv2"},
		"countrycodes": {"de"},
		"limit":        {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "de")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.GeocodingResult{}, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	result := domain.GeocodingResult{Address: address}
	if len(places) == 0 {
		return result, nil
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("parse longitude %q: %w", p.Lon, err)
	}
	result.FormattedAddress = p.DisplayName
	result.Lat = lat
	result.Lon = lon
	return result, nil
}

// Nominatim returns coordinates as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
