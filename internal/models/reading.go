package models

import "time"

// Reading is the canonical telemetry record every ingestion path produces.
// Pointer fields distinguish "absent from the source" from a zero value;
// Shock defaults to 0 when no impact was reported. ReceivedAt is stamped by
// the hub at broadcast time and is the only field added downstream of
// normalization.
type Reading struct {
	DeviceID    string    `json:"deviceId"`
	Temperature *float64  `json:"temp,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Shock       float64   `json:"shock"`
	Latitude    *float64  `json:"lat,omitempty"`
	Longitude   *float64  `json:"lng,omitempty"`
	At          time.Time `json:"at"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location returns the reading's coordinates when both are present and
// within valid ranges.
func (r Reading) Location() (LatLng, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return LatLng{}, false
	}
	lat, lng := *r.Latitude, *r.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return LatLng{}, false
	}
	return LatLng{Lat: lat, Lng: lng}, true
}

// DeviceSnapshot holds the last known state for a single device. Fields
// absent from a reading retain their prior values.
type DeviceSnapshot struct {
	DeviceID    string      `json:"deviceId"`
	Temperature *float64    `json:"temperature,omitempty"`
	Humidity    *float64    `json:"humidity,omitempty"`
	LastShock   *ShockEvent `json:"lastShock,omitempty"`
	LastReading time.Time   `json:"lastReadingAt"`
}
