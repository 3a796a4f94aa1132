package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

const mapboxDirectionsBase = "https://api.mapbox.com/directions/v5/mapbox/driving"

// MapboxClient performs route lookups against the Mapbox Directions API.
type MapboxClient struct {
	Token    string
	Endpoint string
	Client   *http.Client
}

func NewMapboxClient(token string) *MapboxClient {
	return &MapboxClient{
		Token:    token,
		Endpoint: mapboxDirectionsBase,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (m *MapboxClient) Provider() string { return "mapbox" }

func (m *MapboxClient) DrivingRoute(ctx context.Context, origin, destination models.Coord) (models.RouteLeg, error) {
	u := fmt.Sprintf("%s/%.6f,%.6f;%.6f,%.6f?access_token=%s&geometries=geojson&overview=full",
		m.Endpoint, origin.Lng, origin.Lat, destination.Lng, destination.Lat, url.QueryEscape(m.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.RouteLeg{}, err
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		return models.RouteLeg{}, fmt.Errorf("mapbox directions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.RouteLeg{}, fmt.Errorf("mapbox directions status %d: %w", resp.StatusCode, ErrRouteUnavailable)
	}

	var out struct {
		Routes []struct {
			Geometry struct {
				Coordinates [][2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteLeg{}, fmt.Errorf("mapbox directions decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 || len(out.Routes[0].Geometry.Coordinates) < 2 {
		return models.RouteLeg{}, fmt.Errorf("mapbox code %q: %w", out.Code, ErrRouteUnavailable)
	}
	r := out.Routes[0]
	return models.RouteLeg{
		Geometry: r.Geometry.Coordinates,
		Summary: models.RouteSummary{
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
		},
	}, nil
}
