package services

import (
	"errors"
	"strings"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/pkg/mqtt"
	"github.com/medtransit/transport-bridge/pkg/telemetry"
)

// MQTTIngestionService is the alternate ingestion transport for field
// devices that publish their raw telemetry lines over MQTT instead of a
// serial link. Payloads go through the same normalizer chain as serial
// lines.
type MQTTIngestionService struct {
	topic string
	qos   int

	hub        *hub.Hub
	mqttClient mqtt.MQTTClient
	normalizer *telemetry.Normalizer
	logger     zerolog.Logger

	running bool
}

// NewMQTTIngestionService creates a new MQTTIngestionService instance.
func NewMQTTIngestionService(topic string, qos int, mqttClient mqtt.MQTTClient,
	broadcastHub *hub.Hub, normalizer *telemetry.Normalizer, logger zerolog.Logger) *MQTTIngestionService {
	return &MQTTIngestionService{
		topic:      topic,
		qos:        qos,
		hub:        broadcastHub,
		mqttClient: mqttClient,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Start subscribes to the ingestion topic.
func (m *MQTTIngestionService) Start() error {
	if m.running {
		m.logger.Warn().Msg("MQTTIngestionService is already running")
		return errors.New("mqtt ingestion service is already running")
	}

	token := m.mqttClient.Subscribe(m.topic, byte(m.qos), m.handleMessage)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	m.running = true
	m.logger.Info().Str("topic", m.topic).Int("qos", m.qos).Msg("MQTTIngestionService started")
	return nil
}

// Stop unsubscribes from the ingestion topic.
func (m *MQTTIngestionService) Stop() error {
	if !m.running {
		m.logger.Warn().Msg("MQTTIngestionService is not running")
		return errors.New("mqtt ingestion service is not running")
	}

	token := m.mqttClient.Unsubscribe(m.topic)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}

	m.running = false
	m.logger.Info().Msg("MQTTIngestionService stopped")
	return nil
}

// handleMessage normalizes one MQTT payload and publishes the reading.
func (m *MQTTIngestionService) handleMessage(_ MQTT.Client, msg MQTT.Message) {
	line := strings.TrimSpace(string(msg.Payload()))
	if line == "" {
		return
	}

	reading, err := m.normalizer.Normalize(line, time.Now().UTC())
	if err != nil {
		m.logger.Warn().Str("topic", msg.Topic()).Str("payload", line).
			Msg("Dropping unrecognized telemetry payload")
		return
	}

	m.hub.Publish(reading)
}
