package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

const mapboxGeocodingBase = "https://api.mapbox.com/geocoding/v5/mapbox.places"

var ErrNoResult = errors.New("no geocoding result")

// Feature is one geocoding match, center in (lng, lat) order.
type Feature struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Center      [2]float64 `json:"center"`
}

// Client queries the Mapbox geocoding API for forward search and reverse
// lookups. The credential is injected at construction.
type Client struct {
	Token    string
	Endpoint string
	HTTP     *http.Client
}

func NewClient(token string) *Client {
	return &Client{Token: token, Endpoint: mapboxGeocodingBase, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

// Search returns up to limit matches for query, biased toward center and
// bounded to radiusMiles around it.
func (c *Client) Search(ctx context.Context, query string, center models.Coord, radiusMiles float64, limit int) ([]Feature, error) {
	if limit <= 0 {
		limit = 8
	}
	if radiusMiles <= 0 {
		radiusMiles = 20
	}
	bbox := BBox(center, radiusMiles)
	u := fmt.Sprintf("%s/%s.json?access_token=%s&autocomplete=true&proximity=%.6f,%.6f&types=address,poi,place&limit=%d&bbox=%.6f,%.6f,%.6f,%.6f",
		c.Endpoint, url.PathEscape(query), url.QueryEscape(c.Token),
		center.Lng, center.Lat, limit, bbox[0], bbox[1], bbox[2], bbox[3])

	features, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		if len(f.Center) < 2 {
			continue
		}
		out = append(out, Feature{ID: f.ID, DisplayName: f.PlaceName, Center: [2]float64{f.Center[0], f.Center[1]}})
	}
	return out, nil
}

// Reverse returns the best display name for a coordinate, shortened to the
// leading address components.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	u := fmt.Sprintf("%s/%.6f,%.6f.json?access_token=%s&limit=1&types=place,locality,address",
		c.Endpoint, lng, lat, url.QueryEscape(c.Token))
	features, err := c.fetch(ctx, u)
	if err != nil {
		return "", err
	}
	if len(features) == 0 || features[0].PlaceName == "" {
		return "", ErrNoResult
	}
	return FormatAddress(features[0].PlaceName), nil
}

type rawFeature struct {
	ID        string    `json:"id"`
	PlaceName string    `json:"place_name"`
	Center    []float64 `json:"center"`
}

func (c *Client) fetch(ctx context.Context, u string) ([]rawFeature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding status %d", resp.StatusCode)
	}
	var out struct {
		Features []rawFeature `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("geocoding decode: %w", err)
	}
	return out.Features, nil
}

// BBox is the [minLng, minLat, maxLng, maxLat] box radiusMiles around
// center.
func BBox(center models.Coord, radiusMiles float64) [4]float64 {
	radiusKm := radiusMiles * 1.60934
	latDeg := radiusKm / 111.32
	lngDeg := radiusKm / (111.32 * math.Cos(center.Lat*math.Pi/180))
	return [4]float64{
		center.Lng - lngDeg,
		center.Lat - latDeg,
		center.Lng + lngDeg,
		center.Lat + latDeg,
	}
}

// FormatAddress shortens a full place name to its leading two components,
// typically street and district.
func FormatAddress(addr string) string {
	parts := strings.Split(addr, ",")
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			trimmed = append(trimmed, p)
		}
	}
	switch {
	case len(trimmed) >= 2:
		return trimmed[0] + ", " + trimmed[1]
	case len(trimmed) == 1:
		return trimmed[0]
	default:
		return addr
	}
}
