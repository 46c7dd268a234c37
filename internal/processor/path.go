package processor

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/medtransit/transport-bridge/internal/models"
)

// syntheticOrigin anchors pseudo-paths for devices that never report GPS.
var syntheticOrigin = models.LatLng{Lat: 37.7749, Lng: -122.4194}

// updatePath appends the reading's location to the traveled path. Without a
// valid fix, and when enabled, a deterministic synthetic point stands in so
// the trail never goes blank; synthetic points carry the Synthetic tag and
// are never mixed up with real fixes.
func (p *Processor) updatePath(reading models.Reading, at time.Time) {
	if loc, ok := reading.Location(); ok {
		p.appendPathPoint(models.PathPoint{Lat: loc.Lat, Lng: loc.Lng, At: at})
		return
	}
	if p.cfg.SynthesizePath {
		p.appendPathPoint(p.syntheticPoint(reading.DeviceID, at))
	}
}

// appendPathPoint drops points within the adjacency epsilon of the previous
// one, so a stationary device does not flood the trail. Capacity overflow
// evicts the oldest point.
func (p *Processor) appendPathPoint(point models.PathPoint) {
	if n := len(p.path); n > 0 {
		last := p.path[n-1]
		if last.Synthetic == point.Synthetic &&
			math.Abs(last.Lat-point.Lat) < p.cfg.PathEpsilon &&
			math.Abs(last.Lng-point.Lng) < p.cfg.PathEpsilon {
			return
		}
	}

	p.path = append(p.path, point)
	if len(p.path) > PathCapacity {
		p.path = p.path[len(p.path)-PathCapacity:]
	}
}

// syntheticPoint derives a pseudo-location from the device identifier and
// the elapsed session time, so repeated runs trace the same deterministic
// drift per device.
func (p *Processor) syntheticPoint(deviceID string, at time.Time) models.PathPoint {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	seed := float64(h.Sum32() % 1000)

	elapsed := at.Sub(p.sessionStart).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	return models.PathPoint{
		Lat:       syntheticOrigin.Lat + seed*0.00001 + elapsed*0.00005,
		Lng:       syntheticOrigin.Lng - seed*0.00001 + elapsed*0.00003,
		At:        at,
		Synthetic: true,
	}
}
