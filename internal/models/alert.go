package models

import "time"

// Shock severity classes derived from fixed g-force thresholds.
const (
	ShockSeverityOK      = "ok"
	ShockSeverityWarning = "warning"
	ShockSeverityAlert   = "alert"
)

// Alert kinds and severities.
const (
	AlertKindTemperature = "temperature"
	AlertKindShock       = "shock"

	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// ShockEvent records a single impact reported by a device.
type ShockEvent struct {
	ID       string    `json:"id"`
	DeviceID string    `json:"deviceId"`
	GForce   float64   `json:"gForce"`
	At       time.Time `json:"at"`
	Severity string    `json:"severity"`
}

// Alert is an append-only fact describing a threshold violation. Alerts are
// never mutated, deduplicated or rate-limited; repeated violations produce
// repeated alerts.
type Alert struct {
	ID       string    `json:"id"`
	Kind     string    `json:"type"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// PathPoint is one fix on a device's traveled path. Synthetic marks points
// generated in the absence of a real GPS fix so they are never conflated
// with real ones.
type PathPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	At        time.Time `json:"at"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// LatLng returns the point's coordinates without the metadata.
func (p PathPoint) LatLng() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}
