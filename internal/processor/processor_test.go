package processor

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtransit/transport-bridge/internal/models"
)

func newTestProcessor(cfg Config) *Processor {
	return NewProcessor(cfg, zerolog.Nop())
}

func reading(deviceID string, temp *float64, shock float64) models.Reading {
	return models.Reading{
		DeviceID:    deviceID,
		Temperature: temp,
		Shock:       shock,
		At:          time.Now().UTC(),
		ReceivedAt:  time.Now().UTC(),
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestShockSeverityClassification(t *testing.T) {
	p := newTestProcessor(Config{})

	for _, tc := range []struct {
		gForce   float64
		severity string
	}{
		{0.1, models.ShockSeverityOK},
		{1.4999, models.ShockSeverityOK},
		{1.5, models.ShockSeverityWarning},
		{2.4999, models.ShockSeverityWarning},
		{2.5, models.ShockSeverityAlert},
		{9.0, models.ShockSeverityAlert},
	} {
		p.Reset()
		p.Process(reading("DEV-001", nil, tc.gForce))

		shocks := p.RecentShocks()
		require.Len(t, shocks, 1, "g-force %v", tc.gForce)
		assert.Equal(t, tc.severity, shocks[0].Severity, "g-force %v", tc.gForce)
	}
}

func TestShockRing_CapacityAndOrder(t *testing.T) {
	p := newTestProcessor(Config{})

	for i := 1; i <= ShockRingCapacity+5; i++ {
		p.Process(reading("DEV-001", nil, float64(i)))
	}

	shocks := p.RecentShocks()
	require.Len(t, shocks, ShockRingCapacity)
	assert.Equal(t, float64(ShockRingCapacity+5), shocks[0].GForce)
	assert.Equal(t, float64(6), shocks[len(shocks)-1].GForce)

	// Unique IDs even under rapid succession.
	seen := map[string]struct{}{}
	for _, s := range shocks {
		_, dup := seen[s.ID]
		assert.False(t, dup)
		seen[s.ID] = struct{}{}
	}
}

func TestAlertList_CapacityAndNoDeduplication(t *testing.T) {
	p := newTestProcessor(Config{})

	for i := 0; i < AlertListCapacity+10; i++ {
		p.Process(reading("DEV-001", floatPtr(7.8), 0))
	}

	alerts := p.Alerts()
	require.Len(t, alerts, AlertListCapacity)
	for _, a := range alerts {
		assert.Equal(t, models.AlertKindTemperature, a.Kind)
		assert.Equal(t, models.AlertSeverityCritical, a.Severity)
	}
}

func TestTemperatureAlert_MessageAndSingleEmission(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(reading("DEV-003", floatPtr(7.8), 0))

	alerts := p.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertKindTemperature, alerts[0].Kind)
	assert.Equal(t, models.AlertSeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "7.8")
	assert.Contains(t, alerts[0].Message, "DEV-003")
}

func TestShockAndTemperatureTogether(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(reading("DEV-001", floatPtr(4), 2.6))

	shocks := p.RecentShocks()
	require.Len(t, shocks, 1)
	assert.Equal(t, models.ShockSeverityAlert, shocks[0].Severity)

	alerts := p.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertKindShock, alerts[0].Kind)
	assert.Equal(t, models.AlertSeverityCritical, alerts[0].Severity)
}

func TestInRangeReadingProducesNothing(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(reading("DEV-001", floatPtr(4), 0))

	assert.Empty(t, p.RecentShocks())
	assert.Empty(t, p.Alerts())
}

func TestWarningShockProducesWarningAlert(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(reading("DEV-001", nil, 2.0))

	alerts := p.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSeverityWarning, alerts[0].Severity)
}

func TestOrganRangeLookup(t *testing.T) {
	p := newTestProcessor(Config{
		OrganRanges:  map[string]models.TempRange{"liver": {Min: 2, Max: 8}},
		DeviceOrgans: map[string]string{"DEV-002": "liver", "DEV-009": "pancreas"},
	})

	// Liver tolerates 7°C.
	p.Process(reading("DEV-002", floatPtr(7), 0))
	assert.Empty(t, p.Alerts())

	// Unassigned device falls back to the 2-6°C default.
	p.Process(reading("DEV-001", floatPtr(7), 0))
	assert.Len(t, p.Alerts(), 1)

	// Unknown organ type also falls back to the default rather than erroring.
	p.Process(reading("DEV-009", floatPtr(7), 0))
	assert.Len(t, p.Alerts(), 2)
}

func TestSnapshotPartialUpdates(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(models.Reading{DeviceID: "DEV-001", Temperature: floatPtr(4.2), At: time.Now()})
	p.Process(models.Reading{DeviceID: "DEV-001", Humidity: floatPtr(45), At: time.Now()})

	snap, ok := p.Snapshot("DEV-001")
	require.True(t, ok)
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 4.2, *snap.Temperature)
	require.NotNil(t, snap.Humidity)
	assert.Equal(t, 45.0, *snap.Humidity)
}

func TestSnapshotLastWriterWins(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(models.Reading{DeviceID: "DEV-001", Temperature: floatPtr(4.2), At: time.Now()})
	p.Process(models.Reading{DeviceID: "DEV-001", Temperature: floatPtr(5.1), At: time.Now()})

	snap, ok := p.Snapshot("DEV-001")
	require.True(t, ok)
	assert.Equal(t, 5.1, *snap.Temperature)
}

func TestPrimaryDeviceTracksLatestReading(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(reading("DEV-001", floatPtr(4), 0))
	p.Process(reading("DEV-002", floatPtr(4), 0))

	snap, ok := p.PrimaryDevice()
	require.True(t, ok)
	assert.Equal(t, "DEV-002", snap.DeviceID)
}

func TestPath_RealFixesAndAdjacencyDedup(t *testing.T) {
	p := newTestProcessor(Config{})

	withLocation := func(lat, lng float64) models.Reading {
		return models.Reading{
			DeviceID: "DEV-001",
			Latitude: &lat, Longitude: &lng,
			At: time.Now().UTC(),
		}
	}

	p.Process(withLocation(37.7749, -122.4194))
	p.Process(withLocation(37.7749, -122.4194)) // stationary, dropped
	p.Process(withLocation(37.7750, -122.4195))

	path := p.Path()
	require.Len(t, path, 2)
	assert.False(t, path[0].Synthetic)
	assert.Equal(t, 37.7749, path[0].Lat)
	assert.Equal(t, 37.7750, path[1].Lat)
}

func TestPath_CapacityEvictsOldest(t *testing.T) {
	p := newTestProcessor(Config{})

	const overflow = 25
	for i := 0; i < PathCapacity+overflow; i++ {
		lat := 37 + float64(i)*0.001
		lng := -122.0
		p.Process(models.Reading{
			DeviceID: "DEV-001",
			Latitude: &lat, Longitude: &lng,
			At: time.Now().UTC(),
		})
	}

	path := p.Path()
	require.Len(t, path, PathCapacity)
	// The first overflow points are gone; the trail keeps the newest fixes
	// oldest-first.
	assert.InDelta(t, 37+float64(overflow)*0.001, path[0].Lat, 1e-9)
	assert.InDelta(t, 37+float64(PathCapacity+overflow-1)*0.001, path[len(path)-1].Lat, 1e-9)
}

func TestPath_SyntheticFallback(t *testing.T) {
	p := newTestProcessor(Config{SynthesizePath: true})

	p.Process(models.Reading{DeviceID: "DEV-001", At: time.Now().UTC(), ReceivedAt: time.Now().UTC()})

	path := p.Path()
	require.Len(t, path, 1)
	assert.True(t, path[0].Synthetic)
}

func TestPath_SyntheticDisabledByDefault(t *testing.T) {
	p := newTestProcessor(Config{})

	p.Process(models.Reading{DeviceID: "DEV-001", At: time.Now().UTC()})
	assert.Empty(t, p.Path())
}

func TestReset_ClearsAllSessionState(t *testing.T) {
	p := newTestProcessor(Config{SynthesizePath: true})

	lat, lng := 37.7749, -122.4194
	p.Process(models.Reading{
		DeviceID:    "DEV-001",
		Temperature: floatPtr(7.8),
		Shock:       2.6,
		Latitude:    &lat,
		Longitude:   &lng,
		At:          time.Now().UTC(),
	})
	require.NotEmpty(t, p.Alerts())

	p.Reset()

	_, hasSnapshot := p.Snapshot("DEV-001")
	assert.False(t, hasSnapshot)
	_, hasPrimary := p.PrimaryDevice()
	assert.False(t, hasPrimary)
	assert.Empty(t, p.RecentShocks())
	assert.Empty(t, p.Alerts())
	assert.Empty(t, p.Path())
	assert.True(t, p.LastReadingAt().IsZero())
}

func TestReset_ConcurrentWithReadersAndWrites(t *testing.T) {
	p := newTestProcessor(Config{SynthesizePath: true})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			p.Process(reading("DEV-001", floatPtr(7.8), 2.6))
		}
	}()

	// Every read must return a self-consistent view no matter how Reset
	// interleaves: capacities hold and entries are fully formed, never
	// half-cleared.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				alerts := p.Alerts()
				assert.LessOrEqual(t, len(alerts), AlertListCapacity)
				for _, a := range alerts {
					assert.NotEmpty(t, a.ID)
					assert.NotEmpty(t, a.Message)
					assert.False(t, a.At.IsZero())
				}
				shocks := p.RecentShocks()
				assert.LessOrEqual(t, len(shocks), ShockRingCapacity)
				for _, s := range shocks {
					assert.NotEmpty(t, s.ID)
					assert.Positive(t, s.GForce)
				}
				if alert, ok := p.LatestAlert(); ok {
					assert.NotEmpty(t, alert.ID)
				}
				_ = p.Path()
				_, _ = p.PrimaryDevice()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		p.Reset()
	}
	close(stop)
	wg.Wait()

	p.Reset()
	assert.Empty(t, p.Alerts())
	assert.Empty(t, p.RecentShocks())
	assert.Empty(t, p.Path())
}

func TestHandleMessage_DropsInvalidPayloads(t *testing.T) {
	p := newTestProcessor(Config{})

	p.HandleMessage([]byte("not json"))
	assert.Empty(t, p.Alerts())
	assert.True(t, p.LastReadingAt().IsZero())
}

func TestHandleMessage_ProcessesBroadcastPayload(t *testing.T) {
	p := newTestProcessor(Config{})

	payload := fmt.Sprintf(`{"deviceId":"DEV-003","temp":7.8,"shock":0,"at":%q,"receivedAt":%q}`,
		time.Now().UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano))
	p.HandleMessage([]byte(payload))

	alerts := p.Alerts()
	require.Len(t, alerts, 1)
	assert.True(t, strings.Contains(alerts[0].Message, "7.8"))
}
