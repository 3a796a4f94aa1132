package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

const publicOSRMEndpoint = "https://router.project-osrm.org"

// OSRMClient performs route lookups against an OSRM HTTP server. It needs
// no credential, which makes it the fallback provider when no Mapbox token
// is configured.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	if endpoint == "" {
		endpoint = publicOSRMEndpoint
	}
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (o *OSRMClient) Provider() string { return "osrm" }

func (o *OSRMClient) DrivingRoute(ctx context.Context, origin, destination models.Coord) (models.RouteLeg, error) {
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	u := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, origin.Lng, origin.Lat, destination.Lng, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.RouteLeg{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteLeg{}, fmt.Errorf("osrm route: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.RouteLeg{}, fmt.Errorf("osrm status %d: %w", resp.StatusCode, ErrRouteUnavailable)
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
		return models.RouteLeg{}, fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 || len(out.Routes[0].Geometry.Coordinates) < 2 {
		return models.RouteLeg{}, fmt.Errorf("osrm code %q: %w", out.Code, ErrRouteUnavailable)
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
