package processor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/models"
)

// Rolling state capacities. Newest entries come first; the oldest are
// evicted silently.
const (
	ShockRingCapacity = 20
	AlertListCapacity = 50
	PathCapacity      = 500
)

// Default thresholds and ranges, matching the transport hardware spec sheet.
const (
	DefaultShockWarningThreshold = 1.5
	DefaultShockAlertThreshold   = 2.5
)

// DefaultTempRange is the safe cold-chain range applied when a device has no
// organ assignment.
var DefaultTempRange = models.TempRange{Min: 2, Max: 6}

// Config tunes the alerting engine. Zero values fall back to the defaults
// above.
type Config struct {
	ShockWarningThreshold float64
	ShockAlertThreshold   float64
	DefaultTempRange      models.TempRange
	// OrganRanges maps an organ/payload type to its safe temperature range.
	OrganRanges map[string]models.TempRange
	// DeviceOrgans maps a device ID to the organ type it carries.
	DeviceOrgans map[string]string
	// SynthesizePath enables deterministic pseudo-path points when a reading
	// carries no GPS fix, so the display always has a trail to show.
	SynthesizePath bool
	// PathEpsilon is the adjacency de-duplication window in degrees.
	PathEpsilon float64
}

func (c Config) withDefaults() Config {
	if c.ShockWarningThreshold <= 0 {
		c.ShockWarningThreshold = DefaultShockWarningThreshold
	}
	if c.ShockAlertThreshold <= 0 {
		c.ShockAlertThreshold = DefaultShockAlertThreshold
	}
	if c.DefaultTempRange == (models.TempRange{}) {
		c.DefaultTempRange = DefaultTempRange
	}
	if c.PathEpsilon <= 0 {
		c.PathEpsilon = 0.00005
	}
	return c
}

// Processor consumes the stream of canonical readings for one logical
// subscriber connection and maintains the derived state the display layer
// reads: per-device snapshots, the shock ring, the alert list and the
// traveled path.
//
// All ingestion goes through a single entry point (HandleMessage) on the
// supervisor's delivery goroutine, so there is one writer. The mutex exists
// for the readers: Reset on disconnect is atomic with respect to concurrent
// reads, so a consumer never observes a half-cleared session.
type Processor struct {
	cfg    Config
	logger zerolog.Logger

	mu            sync.RWMutex
	snapshots     cmap.ConcurrentMap[string, models.DeviceSnapshot]
	primaryID     string
	shocks        []models.ShockEvent
	alerts        []models.Alert
	path          []models.PathPoint
	lastReadingAt time.Time
	sessionStart  time.Time
}

// NewProcessor creates a processor with empty session state.
func NewProcessor(cfg Config, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:          cfg.withDefaults(),
		logger:       logger,
		snapshots:    cmap.New[models.DeviceSnapshot](),
		sessionStart: time.Now().UTC(),
	}
}

// HandleMessage is the ingestion callback wired to the reconnection
// supervisor. Malformed messages are logged and dropped.
func (p *Processor) HandleMessage(raw []byte) {
	var reading models.Reading
	if err := json.Unmarshal(raw, &reading); err != nil {
		p.logger.Warn().Str("payload", string(raw)).Msg("Dropping invalid broadcast message")
		return
	}
	p.Process(reading)
}

// Process applies one canonical reading to the session state.
func (p *Processor) Process(reading models.Reading) {
	p.mu.Lock()
	defer p.mu.Unlock()

	at := reading.ReceivedAt
	if at.IsZero() {
		at = reading.At
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p.lastReadingAt = at

	p.updateSnapshot(reading, at)
	p.updatePath(reading, at)

	if reading.Shock > 0 {
		p.recordShock(reading, at)
	}
	if reading.Temperature != nil {
		p.checkTemperature(reading, at)
	}
}

// updateSnapshot applies the fields present in the reading; absent fields
// retain their prior values. The snapshot is overwritten in arrival order,
// last writer wins.
func (p *Processor) updateSnapshot(reading models.Reading, at time.Time) {
	snap, _ := p.snapshots.Get(reading.DeviceID)
	snap.DeviceID = reading.DeviceID
	snap.LastReading = at
	if reading.Temperature != nil {
		temp := *reading.Temperature
		snap.Temperature = &temp
	}
	if reading.Humidity != nil {
		humidity := *reading.Humidity
		snap.Humidity = &humidity
	}
	p.snapshots.Set(reading.DeviceID, snap)
	p.primaryID = reading.DeviceID
}

func (p *Processor) recordShock(reading models.Reading, at time.Time) {
	severity := p.classifyShock(reading.Shock)

	event := models.ShockEvent{
		ID:       uuid.New().String(),
		DeviceID: reading.DeviceID,
		GForce:   reading.Shock,
		At:       at,
		Severity: severity,
	}

	p.shocks = append([]models.ShockEvent{event}, p.shocks...)
	if len(p.shocks) > ShockRingCapacity {
		p.shocks = p.shocks[:ShockRingCapacity]
	}

	if snap, ok := p.snapshots.Get(reading.DeviceID); ok {
		snap.LastShock = &event
		p.snapshots.Set(reading.DeviceID, snap)
	}

	if severity == models.ShockSeverityOK {
		return
	}

	alertSeverity := models.AlertSeverityWarning
	if severity == models.ShockSeverityAlert {
		alertSeverity = models.AlertSeverityCritical
	}
	p.appendAlert(models.Alert{
		ID:       uuid.New().String(),
		Kind:     models.AlertKindShock,
		Severity: alertSeverity,
		Message:  fmt.Sprintf("%s: Shock event %.1fg detected", reading.DeviceID, reading.Shock),
		At:       at,
	})
}

// classifyShock is monotonic in g-force: ok below the warning threshold,
// warning up to the alert threshold, alert above it.
func (p *Processor) classifyShock(gForce float64) string {
	switch {
	case gForce >= p.cfg.ShockAlertThreshold:
		return models.ShockSeverityAlert
	case gForce >= p.cfg.ShockWarningThreshold:
		return models.ShockSeverityWarning
	default:
		return models.ShockSeverityOK
	}
}

func (p *Processor) checkTemperature(reading models.Reading, at time.Time) {
	temp := *reading.Temperature
	safeRange := p.rangeFor(reading.DeviceID)
	if safeRange.Contains(temp) {
		return
	}

	p.appendAlert(models.Alert{
		ID:       uuid.New().String(),
		Kind:     models.AlertKindTemperature,
		Severity: models.AlertSeverityCritical,
		Message: fmt.Sprintf("%s: Temperature %.1f°C — outside safe range (%g–%g°C)",
			reading.DeviceID, temp, safeRange.Min, safeRange.Max),
		At: at,
	})
}

// rangeFor resolves the safe temperature range for a device via its organ
// assignment. Unknown devices and organs fall back to the default range.
func (p *Processor) rangeFor(deviceID string) models.TempRange {
	organ, ok := p.cfg.DeviceOrgans[deviceID]
	if !ok {
		return p.cfg.DefaultTempRange
	}
	if r, ok := p.cfg.OrganRanges[organ]; ok {
		return r
	}
	return p.cfg.DefaultTempRange
}

// appendAlert prepends without deduplication or rate limiting: every
// violating reading produces a new alert.
func (p *Processor) appendAlert(alert models.Alert) {
	p.alerts = append([]models.Alert{alert}, p.alerts...)
	if len(p.alerts) > AlertListCapacity {
		p.alerts = p.alerts[:AlertListCapacity]
	}
	p.logger.Warn().
		Str("kind", alert.Kind).
		Str("severity", alert.Severity).
		Msg(alert.Message)
}

// Reset clears all session-scoped state on disconnect. Runs atomically with
// respect to the read accessors.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snapshots.Clear()
	p.primaryID = ""
	p.shocks = nil
	p.alerts = nil
	p.path = nil
	p.lastReadingAt = time.Time{}
	p.sessionStart = time.Now().UTC()

	p.logger.Info().Msg("Session state cleared")
}

// Snapshot returns the last known state for one device.
func (p *Processor) Snapshot(deviceID string) (models.DeviceSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshots.Get(deviceID)
}

// PrimaryDevice returns the snapshot of the device most recently heard from.
func (p *Processor) PrimaryDevice() (models.DeviceSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.primaryID == "" {
		return models.DeviceSnapshot{}, false
	}
	return p.snapshots.Get(p.primaryID)
}

// RecentShocks returns a copy of the shock ring, newest first.
func (p *Processor) RecentShocks() []models.ShockEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.ShockEvent, len(p.shocks))
	copy(out, p.shocks)
	return out
}

// Alerts returns a copy of the alert list, newest first.
func (p *Processor) Alerts() []models.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Alert, len(p.alerts))
	copy(out, p.alerts)
	return out
}

// LatestAlert returns the most recent alert, if any.
func (p *Processor) LatestAlert() (models.Alert, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.alerts) == 0 {
		return models.Alert{}, false
	}
	return p.alerts[0], true
}

// Path returns a copy of the traveled path, oldest first.
func (p *Processor) Path() []models.PathPoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.PathPoint, len(p.path))
	copy(out, p.path)
	return out
}

// CurrentLocation returns the most recent path point. The boolean second
// result reports whether any point exists; check PathPoint.Synthetic to tell
// a pseudo-location from a real fix.
func (p *Processor) CurrentLocation() (models.PathPoint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.path) == 0 {
		return models.PathPoint{}, false
	}
	return p.path[len(p.path)-1], true
}

// LastReadingAt returns the timestamp of the most recent reading.
func (p *Processor) LastReadingAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastReadingAt
}
