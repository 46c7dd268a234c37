package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/api"
	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/internal/registry"
	"github.com/medtransit/transport-bridge/internal/services"
	"github.com/medtransit/transport-bridge/internal/utils"
	"github.com/medtransit/transport-bridge/pkg/file"
	"github.com/medtransit/transport-bridge/pkg/geo"
	"github.com/medtransit/transport-bridge/pkg/mqtt"
	"github.com/medtransit/transport-bridge/pkg/routing"
	"github.com/medtransit/transport-bridge/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "bridge").Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	normalizer := telemetry.NewNormalizer(config.Telemetry.DefaultDeviceID)
	broadcastHub := hub.NewHub(config.Telemetry.DefaultDeviceID, logger)

	// The facility set is optional for the bridge; without it the nearest
	// lookup just returns empty results.
	facilityIndex := geo.NewFacilityIndex(nil)
	if config.Facilities.File != "" {
		exists, err := fileClient.IsFileExists(config.Facilities.File)
		if err != nil || !exists {
			logger.Warn().Err(err).Str("file", config.Facilities.File).
				Msg("Facility list not found, nearest lookups disabled")
		} else if facilityIndex, err = geo.LoadFacilityIndex(config.Facilities.File, fileClient); err != nil {
			logger.Warn().Err(err).Msg("Facility list unreadable, nearest lookups disabled")
			facilityIndex = geo.NewFacilityIndex(nil)
		} else {
			logger.Info().Int("facilities", facilityIndex.Len()).Msg("Facility index loaded")
		}
	}

	var routeProvider routing.Provider = routing.Unconfigured{}
	if apiKey := os.Getenv("GOOGLE_MAPS_API_KEY"); apiKey != "" {
		provider, err := routing.NewGoogleDirectionsProvider(apiKey)
		if err != nil {
			logger.Warn().Err(err).Msg("Directions provider unavailable, using straight-line fallback")
		} else {
			routeProvider = provider
		}
	} else {
		logger.Info().Msg("GOOGLE_MAPS_API_KEY not set, directions degrade to straight lines")
	}

	serviceRegistry := registry.NewServiceRegistry(logger)

	if config.Sources.Serial.Enabled {
		// Optional: an unreachable port leaves the hub serving manual
		// submissions.
		serviceRegistry.RegisterOptionalService("serial", services.NewSerialIngestionService(
			config.Sources.Serial.Port,
			config.Sources.Serial.BaudRate,
			broadcastHub,
			normalizer,
			logger,
		))
	} else {
		logger.Info().Msg("Serial source disabled, use POST /api/readings for testing")
	}

	var mqttClient *mqtt.MqttService
	if config.Sources.MQTT.Enabled {
		mqttClient = mqtt.NewMqttService(fileClient)
		clientID := config.Sources.MQTT.ClientID + "-" + uuid.New().String()
		err := mqttClient.Initialize(config.Sources.MQTT.Broker, clientID, config.Sources.MQTT.CACertificate)
		if err != nil {
			logger.Warn().Err(err).Msg("MQTT source unavailable")
			mqttClient = nil
		} else {
			serviceRegistry.RegisterOptionalService("mqtt", services.NewMQTTIngestionService(
				config.Sources.MQTT.Topic,
				config.Sources.MQTT.QOS,
				mqttClient,
				broadcastHub,
				normalizer,
				logger,
			))
		}
	}

	sourceStatus := func() map[string]string {
		status := map[string]string{"serial": "disabled", "mqtt": "disabled"}
		for name, state := range serviceRegistry.Status() {
			if name == "serial" || name == "mqtt" {
				status[name] = state
			}
		}
		return status
	}

	serviceRegistry.RegisterService("api", api.NewServer(
		config.Server.Addr,
		broadcastHub,
		facilityIndex,
		routeProvider,
		sourceStatus,
		logger,
	))

	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	_ = serviceRegistry.StopServices()
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
