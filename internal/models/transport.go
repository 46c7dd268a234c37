package models

// TempRange is an inclusive safe temperature window in °C for a transported
// payload.
type TempRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether t falls inside the range.
func (r TempRange) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}
