package telemetry

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/medtransit/transport-bridge/internal/models"
)

// DefaultDeviceID is assigned when a source omits the device identifier.
const DefaultDeviceID = "DEV-001"

// ErrUnrecognizedFormat is returned when no parser strategy matches a raw
// line. Callers log and continue; the error is never fatal.
var ErrUnrecognizedFormat = errors.New("unrecognized telemetry format")

// parserFunc attempts to turn one raw line into a canonical reading. A false
// return means "no match, try the next strategy", not an error.
type parserFunc func(line string, now time.Time) (models.Reading, bool)

// Normalizer converts heterogeneous raw telemetry lines into canonical
// readings by running an ordered chain of parser strategies, short-circuiting
// on the first match.
type Normalizer struct {
	defaultDeviceID string
	parsers         []parserFunc
}

// NewNormalizer creates a Normalizer with the full strategy chain: structured
// JSON first, then NMEA GPS sentences, then the fixed text grammar.
func NewNormalizer(defaultDeviceID string) *Normalizer {
	if defaultDeviceID == "" {
		defaultDeviceID = DefaultDeviceID
	}
	n := &Normalizer{defaultDeviceID: defaultDeviceID}
	n.parsers = []parserFunc{
		n.parseStructured,
		n.parseNMEA,
		n.parseTextGrammar,
	}
	return n
}

// Normalize parses one raw line. The returned reading has ReceivedAt unset;
// the hub stamps it at broadcast time.
func (n *Normalizer) Normalize(line string, now time.Time) (models.Reading, error) {
	line = strings.TrimSpace(line)
	for _, parse := range n.parsers {
		if reading, ok := parse(line, now); ok {
			return reading, nil
		}
	}
	return models.Reading{}, ErrUnrecognizedFormat
}

// CoerceFloat converts the loosely-typed values produced by JSON decoding
// into a float64. Numeric strings are accepted to match what field firmware
// actually sends.
func CoerceFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseStructured handles compact JSON object lines with aliased keys
// (temp|temperature, shock|gForce).
func (n *Normalizer) parseStructured(line string, now time.Time) (models.Reading, bool) {
	if !strings.HasPrefix(line, "{") {
		return models.Reading{}, false
	}

	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return models.Reading{}, false
	}

	reading := models.Reading{
		DeviceID: n.defaultDeviceID,
		At:       now,
	}

	if id, ok := payload["deviceId"].(string); ok && id != "" {
		reading.DeviceID = id
	}
	if at, ok := payload["at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			reading.At = t
		}
	}

	if temp, ok := coerceAlias(payload, "temp", "temperature"); ok {
		reading.Temperature = &temp
	}
	if shock, ok := coerceAlias(payload, "shock", "gForce"); ok && shock > 0 {
		reading.Shock = shock
	}
	if humidity, ok := coerceAlias(payload, "humidity"); ok {
		reading.Humidity = &humidity
	}

	setLocation(&reading, payload)

	return reading, true
}

// parseNMEA handles raw GPS sentences from a serial-attached receiver. Only
// GGA fixes carry a position; everything else falls through the chain.
func (n *Normalizer) parseNMEA(line string, now time.Time) (models.Reading, bool) {
	if !strings.HasPrefix(line, "$") {
		return models.Reading{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return models.Reading{}, false
	}

	gga, ok := sentence.(nmea.GGA)
	if !ok {
		return models.Reading{}, false
	}

	reading := models.Reading{
		DeviceID: n.defaultDeviceID,
		At:       now,
	}
	lat, lng := gga.Latitude, gga.Longitude
	if validCoordinates(lat, lng) {
		reading.Latitude = &lat
		reading.Longitude = &lng
	}
	return reading, true
}

// textGrammar matches lines like
//
//	Shock: 1.2 | Temp: 4.5C | Humidity: 45%
//	Shock: -0.3 | Temp: 4.5C | Humidity: 45% | Lat: 37.77 | Lng: -122.41
//
// Shock and coordinates may be signed; temperature and humidity accept
// decimals.
var textGrammar = regexp.MustCompile(
	`^Shock:\s*(-?\d+(?:\.\d+)?)\s*\|\s*Temp:\s*(\d+(?:\.\d+)?)C\s*\|\s*Humidity:\s*(\d+(?:\.\d+)?)%` +
		`(?:\s*\|\s*Lat:\s*(-?\d+(?:\.\d+)?)\s*\|\s*Lng:\s*(-?\d+(?:\.\d+)?))?$`)

func (n *Normalizer) parseTextGrammar(line string, now time.Time) (models.Reading, bool) {
	match := textGrammar.FindStringSubmatch(line)
	if match == nil {
		return models.Reading{}, false
	}

	shock, _ := strconv.ParseFloat(match[1], 64)
	temp, _ := strconv.ParseFloat(match[2], 64)
	humidity, _ := strconv.ParseFloat(match[3], 64)

	reading := models.Reading{
		DeviceID:    n.defaultDeviceID,
		Temperature: &temp,
		Humidity:    &humidity,
		At:          now,
	}
	if shock > 0 {
		reading.Shock = shock
	}

	if match[4] != "" && match[5] != "" {
		lat, _ := strconv.ParseFloat(match[4], 64)
		lng, _ := strconv.ParseFloat(match[5], 64)
		if validCoordinates(lat, lng) {
			reading.Latitude = &lat
			reading.Longitude = &lng
		}
	}

	return reading, true
}

// coerceAlias returns the first key present in the payload that coerces to a
// float.
func coerceAlias(payload map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if f, ok := CoerceFloat(raw); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func setLocation(reading *models.Reading, payload map[string]any) {
	lat, okLat := coerceAlias(payload, "lat")
	lng, okLng := coerceAlias(payload, "lng")
	if okLat && okLng && validCoordinates(lat, lng) {
		reading.Latitude = &lat
		reading.Longitude = &lng
	}
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
