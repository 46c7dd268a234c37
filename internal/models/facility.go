package models

// Facility is a static candidate destination point, loaded once at startup
// from the precomputed facility list and immutable for the process lifetime.
type Facility struct {
	Name  string  `json:"name"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	City  string  `json:"city,omitempty"`
	State string  `json:"state,omitempty"`
}

// FacilityDistance pairs a facility with its great-circle distance in miles
// from a query point.
type FacilityDistance struct {
	Facility
	Distance float64 `json:"distance"`
}

// Route is the result of a routing lookup between two coordinates.
type Route struct {
	Polyline     string   `json:"polyline"`
	Points       []LatLng `json:"points,omitempty"`
	DistanceText string   `json:"distanceText"`
	DurationText string   `json:"durationText"`
	StraightLine bool     `json:"straightLine,omitempty"`
}
