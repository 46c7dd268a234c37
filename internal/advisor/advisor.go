package advisor

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/internal/processor"
	"github.com/medtransit/transport-bridge/pkg/geo"
	"github.com/medtransit/transport-bridge/pkg/routing"
)

// DefaultSuggestionCount is how many candidate facilities a triage
// suggestion carries.
const DefaultSuggestionCount = 5

// Suggestion is a redirect proposal raised on a critical alert: the alert
// itself, the origin it was computed from and the nearest candidate
// facilities, closest first.
type Suggestion struct {
	Alert      models.Alert              `json:"alert"`
	Origin     models.PathPoint          `json:"origin"`
	Facilities []models.FacilityDistance `json:"facilities"`
}

// Advisor suggests alternate destination facilities when the alerting
// engine's most recent alert is critical. It only reads processor state and
// returns candidates; accepting a suggestion never mutates navigation state,
// that stays with the caller.
type Advisor struct {
	processor *processor.Processor
	index     *geo.FacilityIndex
	router    routing.Provider
	logger    zerolog.Logger

	mu               sync.Mutex
	accepted         *models.Facility
	dismissedAlertID string
}

// NewAdvisor wires the advisor to the processor's derived state, the
// facility index and a routing provider. The provider may be
// routing.Unconfigured{}; route previews then degrade to straight lines.
func NewAdvisor(proc *processor.Processor, index *geo.FacilityIndex, router routing.Provider,
	logger zerolog.Logger) *Advisor {
	if router == nil {
		router = routing.Unconfigured{}
	}
	return &Advisor{
		processor: proc,
		index:     index,
		router:    router,
		logger:    logger,
	}
}

// Suggest returns a redirect proposal when the latest alert is critical, no
// redirect has been accepted yet and the device location is known. The
// facility query is read-only and safe to run concurrently with ingestion.
func (a *Advisor) Suggest(k int) (Suggestion, bool) {
	if k <= 0 {
		k = DefaultSuggestionCount
	}

	alert, ok := a.processor.LatestAlert()
	if !ok || alert.Severity != models.AlertSeverityCritical {
		return Suggestion{}, false
	}

	a.mu.Lock()
	dismissed := a.dismissedAlertID == alert.ID
	accepted := a.accepted != nil
	a.mu.Unlock()
	if dismissed || accepted {
		return Suggestion{}, false
	}

	origin, ok := a.processor.CurrentLocation()
	if !ok {
		return Suggestion{}, false
	}

	return Suggestion{
		Alert:      alert,
		Origin:     origin,
		Facilities: a.index.Nearest(origin.Lat, origin.Lng, k),
	}, true
}

// Accept records the chosen facility. Downstream destination state is
// updated by the caller.
func (a *Advisor) Accept(facility models.Facility) {
	a.mu.Lock()
	a.accepted = &facility
	a.mu.Unlock()
	a.logger.Info().Str("facility", facility.Name).Msg("Redirect accepted")
}

// Reject dismisses the triage for the current critical alert; a later
// critical alert raises a fresh suggestion.
func (a *Advisor) Reject() {
	alert, ok := a.processor.LatestAlert()
	if !ok {
		return
	}
	a.mu.Lock()
	a.dismissedAlertID = alert.ID
	a.mu.Unlock()
	a.logger.Info().Str("alert_id", alert.ID).Msg("Redirect rejected")
}

// AcceptedRedirect returns the accepted facility, if any.
func (a *Advisor) AcceptedRedirect() (models.Facility, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accepted == nil {
		return models.Facility{}, false
	}
	return *a.accepted, true
}

// RoutePreview resolves a route from origin to the facility, degrading to a
// straight line when the routing collaborator is unavailable or finds no
// route.
func (a *Advisor) RoutePreview(ctx context.Context, origin models.LatLng, facility models.Facility) models.Route {
	dest := models.LatLng{Lat: facility.Lat, Lng: facility.Lng}

	route, err := a.router.Route(ctx, origin, dest)
	if err != nil {
		if !errors.Is(err, routing.ErrServiceUnavailable) && !errors.Is(err, routing.ErrNoRoute) {
			a.logger.Warn().Err(err).Msg("Routing lookup failed")
		}
		return routing.StraightLine(origin, dest)
	}
	return route
}
