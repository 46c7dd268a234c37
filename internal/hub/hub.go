package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/telemetry"
)

// subscriberBuffer bounds each subscriber's outbound queue. A subscriber
// whose buffer is full is treated as not ready and skipped for that message.
const subscriberBuffer = 16

// ErrInvalidPayload is returned by SubmitReading when the payload is missing
// a numeric temperature field.
var ErrInvalidPayload = errors.New("invalid payload: expected { temp, shock?, deviceId? }")

// Subscriber is one live connection receiving serialized readings.
type Subscriber struct {
	id string
	ch chan []byte
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// Messages is the subscriber's outbound queue. It is closed when the
// subscriber is removed from the hub.
func (s *Subscriber) Messages() <-chan []byte {
	return s.ch
}

// Hub relays canonical readings to every connected subscriber. It knows
// nothing about reading semantics: it stamps the receive time, serializes
// once and fans the same byte payload out, fire-and-forget. Subscribe,
// Unsubscribe and Publish are safe under concurrent use; a publish delivers
// to a consistent snapshot of the subscriber set at call time.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	defaultDeviceID string
	logger          zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(defaultDeviceID string, logger zerolog.Logger) *Hub {
	if defaultDeviceID == "" {
		defaultDeviceID = telemetry.DefaultDeviceID
	}
	return &Hub{
		subscribers:     make(map[string]*Subscriber),
		defaultDeviceID: defaultDeviceID,
		logger:          logger,
	}
}

// Subscribe registers a new connection and returns its subscriber handle.
// Readings published before this call are not replayed.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.New().String(),
		ch: make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info().Str("subscriber_id", sub.id).Int("subscribers", count).Msg("Subscriber connected")
	return sub
}

// Unsubscribe removes a connection and closes its queue. Unknown subscribers
// are ignored.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		close(sub.ch)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info().Str("subscriber_id", sub.id).Int("subscribers", count).Msg("Subscriber disconnected")
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish stamps the reading's receive time, serializes it once and delivers
// the payload to every subscriber that can accept it without blocking. It
// returns the number of subscribers the message was handed to.
func (h *Hub) Publish(reading models.Reading) int {
	reading.ReceivedAt = time.Now().UTC()

	payload, err := json.Marshal(reading)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize reading for broadcast")
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			// Not ready, skip. No queued redelivery.
			h.logger.Warn().Str("subscriber_id", sub.id).Msg("Subscriber not ready, skipping delivery")
		}
	}

	h.logger.Debug().
		Str("device_id", reading.DeviceID).
		Int("delivered", delivered).
		Msg("Reading broadcast")
	return delivered
}

// SubmitReading is the synchronous ingestion entry point for sources that
// cannot stream raw lines, e.g. manual test submissions. The payload must
// carry a numeric temperature field (numeric strings are coerced); other
// fields are optional. The constructed reading bypasses the line normalizer
// and is published immediately.
func (h *Hub) SubmitReading(raw []byte) (models.Reading, error) {
	var payload map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return models.Reading{}, ErrInvalidPayload
	}

	temp, ok := telemetry.CoerceFloat(payload["temp"])
	if !ok {
		return models.Reading{}, ErrInvalidPayload
	}

	reading := models.Reading{
		DeviceID:    h.defaultDeviceID,
		Temperature: &temp,
		At:          time.Now().UTC(),
	}
	if id, ok := payload["deviceId"].(string); ok && id != "" {
		reading.DeviceID = id
	}
	if shock, ok := telemetry.CoerceFloat(payload["shock"]); ok && shock > 0 {
		reading.Shock = shock
	}
	if humidity, ok := telemetry.CoerceFloat(payload["humidity"]); ok {
		reading.Humidity = &humidity
	}
	lat, okLat := telemetry.CoerceFloat(payload["lat"])
	lng, okLng := telemetry.CoerceFloat(payload["lng"])
	if okLat && okLng && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
		reading.Latitude = &lat
		reading.Longitude = &lng
	}

	h.Publish(reading)
	return reading, nil
}
