package services

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/telemetry"
)

// newPipedService wires the service to an in-memory pipe so tests can feed
// telemetry lines without a serial port.
func newPipedService(t *testing.T) (*SerialIngestionService, *io.PipeWriter, *hub.Hub) {
	t.Helper()

	broadcastHub := hub.NewHub("", zerolog.Nop())
	normalizer := telemetry.NewNormalizer("")
	service := NewSerialIngestionService("/dev/ttyUSB0", 9600, broadcastHub, normalizer, zerolog.Nop())

	reader, writer := io.Pipe()
	service.openTransport = func() (io.ReadCloser, error) {
		return reader, nil
	}
	return service, writer, broadcastHub
}

func receiveReading(t *testing.T, sub *hub.Subscriber) models.Reading {
	t.Helper()
	select {
	case payload, ok := <-sub.Messages():
		require.True(t, ok, "subscriber channel closed")
		var reading models.Reading
		require.NoError(t, json.Unmarshal(payload, &reading))
		return reading
	case <-time.After(2 * time.Second):
		t.Fatal("no reading published within timeout")
		return models.Reading{}
	}
}

func TestSerialIngestion_PublishesNormalizedLines(t *testing.T) {
	service, writer, broadcastHub := newPipedService(t)
	sub := broadcastHub.Subscribe()
	defer broadcastHub.Unsubscribe(sub)

	require.NoError(t, service.Start())
	defer service.Stop()

	_, err := writer.Write([]byte(`{"temp": 4.2, "shock": 1.8, "deviceId": "DEV-002"}` + "\n"))
	require.NoError(t, err)

	reading := receiveReading(t, sub)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 4.2, *reading.Temperature)
	assert.Equal(t, 1.8, reading.Shock)
	assert.Equal(t, "DEV-002", reading.DeviceID)
	assert.False(t, reading.ReceivedAt.IsZero())
}

func TestSerialIngestion_HandlesMixedFormats(t *testing.T) {
	service, writer, broadcastHub := newPipedService(t)
	sub := broadcastHub.Subscribe()
	defer broadcastHub.Unsubscribe(sub)

	require.NoError(t, service.Start())
	defer service.Stop()

	_, err := writer.Write([]byte("Shock: 0.8 | Temp: 5.1C | Humidity: 40%\n"))
	require.NoError(t, err)

	reading := receiveReading(t, sub)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 5.1, *reading.Temperature)
	require.NotNil(t, reading.Humidity)
	assert.Equal(t, 40.0, *reading.Humidity)
}

func TestSerialIngestion_SkipsGarbageAndEmptyLines(t *testing.T) {
	service, writer, broadcastHub := newPipedService(t)
	sub := broadcastHub.Subscribe()
	defer broadcastHub.Unsubscribe(sub)

	require.NoError(t, service.Start())
	defer service.Stop()

	lines := "\n" + "   \n" + "garbage that matches nothing\n" + `{"temp": 3.9}` + "\n"
	_, err := writer.Write([]byte(lines))
	require.NoError(t, err)

	// Only the final valid line comes through.
	reading := receiveReading(t, sub)
	require.NotNil(t, reading.Temperature)
	assert.Equal(t, 3.9, *reading.Temperature)

	select {
	case payload := <-sub.Messages():
		t.Fatalf("unexpected extra publish: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSerialIngestion_StartFailsWhenTransportUnavailable(t *testing.T) {
	broadcastHub := hub.NewHub("", zerolog.Nop())
	normalizer := telemetry.NewNormalizer("")
	service := NewSerialIngestionService("/dev/ttyUSB0", 9600, broadcastHub, normalizer, zerolog.Nop())
	service.openTransport = func() (io.ReadCloser, error) {
		return nil, errors.New("no such device")
	}

	err := service.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/ttyUSB0")

	// Manual submissions still work without the serial source.
	_, err = broadcastHub.SubmitReading([]byte(`{"temp": 4.0}`))
	assert.NoError(t, err)
}

func TestSerialIngestion_StopUnblocksReadLoop(t *testing.T) {
	service, writer, _ := newPipedService(t)
	defer writer.Close()

	require.NoError(t, service.Start())

	done := make(chan error, 1)
	go func() { done <- service.Stop() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; read loop still blocked")
	}

	assert.Error(t, service.Stop())
}
