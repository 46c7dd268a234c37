package routing

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/medtransit/transport-bridge/internal/models"
)

// GoogleDirectionsProvider resolves routes through the Google Directions API.
type GoogleDirectionsProvider struct {
	client *maps.Client
}

// NewGoogleDirectionsProvider creates a provider from an API key.
func NewGoogleDirectionsProvider(apiKey string) (*GoogleDirectionsProvider, error) {
	if apiKey == "" {
		return nil, ErrServiceUnavailable
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return &GoogleDirectionsProvider{client: c}, nil
}

// Route fetches the driving route between origin and dest.
func (g *GoogleDirectionsProvider) Route(ctx context.Context, origin, dest models.LatLng) (models.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return models.Route{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.Route{}, ErrNoRoute
	}

	best := routes[0]
	leg := best.Legs[0]

	route := models.Route{
		Polyline:     best.OverviewPolyline.Points,
		DistanceText: leg.Distance.HumanReadable,
		DurationText: formatDuration(leg.Duration),
	}

	if decoded, err := best.OverviewPolyline.Decode(); err == nil {
		route.Points = make([]models.LatLng, 0, len(decoded))
		for _, p := range decoded {
			route.Points = append(route.Points, models.LatLng{Lat: p.Lat, Lng: p.Lng})
		}
	}

	return route, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "1 min"
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	if hours == 0 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%d hr %d min", hours, minutes)
}
