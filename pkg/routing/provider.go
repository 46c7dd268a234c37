package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/geo"
)

var (
	// ErrNoRoute means the routing service answered but found no route
	// between the two points.
	ErrNoRoute = errors.New("no route found")

	// ErrServiceUnavailable means the routing service could not be reached
	// or is unconfigured (missing credentials). Callers degrade to a
	// straight-line indicator rather than surfacing an error.
	ErrServiceUnavailable = errors.New("routing service unavailable")
)

// Provider resolves a drivable route between two coordinates.
type Provider interface {
	Route(ctx context.Context, origin, dest models.LatLng) (models.Route, error)
}

// StraightLine is the degraded fallback used when no routing provider is
// available: a two-point line with the great-circle distance attached.
func StraightLine(origin, dest models.LatLng) models.Route {
	distance := geo.Haversine(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	return models.Route{
		Points:       []models.LatLng{origin, dest},
		DistanceText: fmt.Sprintf("%.1f mi", distance),
		DurationText: "unknown",
		StraightLine: true,
	}
}

// Unconfigured is a Provider that always fails with ErrServiceUnavailable,
// used when no API key is configured.
type Unconfigured struct{}

// Route implements Provider.
func (Unconfigured) Route(ctx context.Context, origin, dest models.LatLng) (models.Route, error) {
	return models.Route{}, ErrServiceUnavailable
}
