package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/advisor"
	"github.com/medtransit/transport-bridge/internal/processor"
	"github.com/medtransit/transport-bridge/internal/supervisor"
	"github.com/medtransit/transport-bridge/internal/utils"
	"github.com/medtransit/transport-bridge/pkg/file"
	"github.com/medtransit/transport-bridge/pkg/geo"
	"github.com/medtransit/transport-bridge/pkg/routing"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "monitor").Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	proc := processor.NewProcessor(processor.Config{
		ShockWarningThreshold: config.Alerting.ShockWarningThreshold,
		ShockAlertThreshold:   config.Alerting.ShockAlertThreshold,
		DefaultTempRange:      config.Alerting.DefaultTempRange,
		OrganRanges:           config.Alerting.OrganRanges,
		DeviceOrgans:          config.Alerting.DeviceOrgans,
		SynthesizePath:        config.Alerting.SynthesizePath,
	}, logger)

	facilityIndex := geo.NewFacilityIndex(nil)
	if config.Facilities.File != "" {
		exists, err := fileClient.IsFileExists(config.Facilities.File)
		if err != nil || !exists {
			logger.Warn().Err(err).Str("file", config.Facilities.File).
				Msg("Facility list not found, redirect suggestions disabled")
		} else if facilityIndex, err = geo.LoadFacilityIndex(config.Facilities.File, fileClient); err != nil {
			logger.Warn().Err(err).Msg("Facility list unreadable, redirect suggestions disabled")
			facilityIndex = geo.NewFacilityIndex(nil)
		}
	}

	var routeProvider routing.Provider = routing.Unconfigured{}
	if apiKey := os.Getenv("GOOGLE_MAPS_API_KEY"); apiKey != "" {
		if provider, err := routing.NewGoogleDirectionsProvider(apiKey); err == nil {
			routeProvider = provider
		}
	}

	redirectAdvisor := advisor.NewAdvisor(proc, facilityIndex, routeProvider, logger)

	sup := supervisor.NewSupervisor(
		config.Monitor.BridgeURL,
		config.Monitor.ReconnectDelay*time.Second,
		proc.HandleMessage,
		proc.Reset,
		logger,
	)
	if err := sup.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start supervisor")
	}

	// Periodic summary of the derived state the display layer would render.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logSummary(logger, sup, proc, redirectAdvisor, config.Monitor.SuggestionCount)
			}
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	cancel()
	_ = sup.Stop()
}

func logSummary(logger zerolog.Logger, sup *supervisor.Supervisor, proc *processor.Processor,
	redirectAdvisor *advisor.Advisor, suggestionCount int) {
	event := logger.Info().Bool("live", sup.IsLive()).
		Int("alerts", len(proc.Alerts())).
		Int("shocks", len(proc.RecentShocks())).
		Int("path_points", len(proc.Path()))

	if snap, ok := proc.PrimaryDevice(); ok {
		event = event.Str("primary_device", snap.DeviceID)
		if snap.Temperature != nil {
			event = event.Float64("temperature_c", *snap.Temperature)
		}
	}
	event.Msg("Monitor state")

	suggestion, ok := redirectAdvisor.Suggest(suggestionCount)
	if !ok || len(suggestion.Facilities) == 0 {
		return
	}

	best := suggestion.Facilities[0]
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	route := redirectAdvisor.RoutePreview(ctx,
		suggestion.Origin.LatLng(),
		best.Facility)

	logger.Warn().
		Str("alert", suggestion.Alert.Message).
		Str("facility", best.Name).
		Float64("distance_mi", best.Distance).
		Str("route_distance", route.DistanceText).
		Str("route_duration", route.DurationText).
		Bool("straight_line", route.StraightLine).
		Msg("Redirect suggested")
}
