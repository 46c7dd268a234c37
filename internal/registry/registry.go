package registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Service is the interface every managed component implements: the ingestion
// sources and the API server all start and stop through it.
type Service interface {
	Start() error
	Stop() error
}

// ServiceRegistry manages the lifecycle of the bridge's services. Services
// start in registration order and stop in reverse order.
type ServiceRegistry struct {
	services    map[string]Service
	serviceKeys []string
	// optional services may fail to start without aborting the bridge;
	// an unreachable serial port must not take down manual ingestion.
	optional map[string]bool
	started  []string
	// failed records services whose last start attempt errored, so Status
	// can tell a failed source from one that was stopped cleanly.
	failed map[string]bool
	logger zerolog.Logger
}

// NewServiceRegistry initializes an empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]Service),
		optional: make(map[string]bool),
		failed:   make(map[string]bool),
		logger:   logger,
	}
}

// RegisterService adds a required service to the registry. A start failure
// of a required service aborts startup and rolls back.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	sr.register(name, svc, false)
}

// RegisterOptionalService adds a service whose start failure is logged and
// tolerated.
func (sr *ServiceRegistry) RegisterOptionalService(name string, svc Service) {
	sr.register(name, svc, true)
}

func (sr *ServiceRegistry) register(name string, svc Service, optional bool) {
	if _, exists := sr.services[name]; exists {
		sr.logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.optional[name] = optional
	sr.logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order. If a required
// service fails to start, already started services are stopped before the
// error is returned.
func (sr *ServiceRegistry) StartServices() error {
	sr.failed = make(map[string]bool)
	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.logger.Info().Msgf("Starting service: %s", name)

		if err := svc.Start(); err != nil {
			sr.failed[name] = true
			if sr.optional[name] {
				sr.logger.Warn().Err(err).Msgf("Optional service %s unavailable, continuing without it", name)
				continue
			}

			sr.logger.Error().Err(err).Msgf("Failed to start service: %s", name)
			sr.logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(sr.started) - 1; i >= 0; i-- {
				_ = sr.services[sr.started[i]].Stop()
			}
			sr.started = nil
			return err
		}
		sr.started = append(sr.started, name)
	}

	return nil
}

// StopServices stops all started services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.started) - 1; i >= 0; i-- {
		name := sr.started[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	sr.started = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// Status reports each registered service's state: "running", "failed" or
// "stopped".
func (sr *ServiceRegistry) Status() map[string]string {
	running := make(map[string]bool, len(sr.started))
	for _, name := range sr.started {
		running[name] = true
	}

	status := make(map[string]string, len(sr.serviceKeys))
	for _, name := range sr.serviceKeys {
		switch {
		case running[name]:
			status[name] = "running"
		case sr.failed[name]:
			status[name] = "failed"
		default:
			status[name] = "stopped"
		}
	}
	return status
}
