package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/medtransit/transport-bridge/internal/health"
	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/pkg/geo"
	"github.com/medtransit/transport-bridge/pkg/routing"
)

// SourceStatus reports the state of each configured ingestion source,
// e.g. {"serial": "running", "mqtt": "disabled"}.
type SourceStatus func() map[string]string

// Server exposes the bridge over HTTP: manual reading submission, the
// websocket broadcast channel, facility lookups, the directions proxy and a
// status endpoint.
type Server struct {
	addr string

	hub          *hub.Hub
	index        *geo.FacilityIndex
	router       routing.Provider
	sourceStatus SourceStatus
	health       *health.Registry
	logger       zerolog.Logger

	httpServer *http.Server
	wg         sync.WaitGroup
	startedAt  time.Time
}

// NewServer creates a new Server instance. The routing provider may be
// routing.Unconfigured{}; directions then degrade to straight lines.
func NewServer(addr string, broadcastHub *hub.Hub, index *geo.FacilityIndex,
	routeProvider routing.Provider, sourceStatus SourceStatus, logger zerolog.Logger) *Server {
	if routeProvider == nil {
		routeProvider = routing.Unconfigured{}
	}
	if sourceStatus == nil {
		sourceStatus = func() map[string]string { return nil }
	}
	return &Server{
		addr:         addr,
		hub:          broadcastHub,
		index:        index,
		router:       routeProvider,
		sourceStatus: sourceStatus,
		health: health.NewRegistry(
			&health.UptimeCollector{Logger: logger},
			&health.MemoryCollector{Logger: logger},
			&health.CPUCollector{Logger: logger},
			&health.GoroutineCollector{Logger: logger},
		),
		logger: logger,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Post("/readings", s.handleSubmitReading)
		r.Get("/facilities/nearest", s.handleNearestFacilities)
		r.Get("/directions", s.handleDirections)
		r.Get("/status", s.handleStatus)
	})
	return r
}

// Start begins serving in a separate goroutine.
func (s *Server) Start() error {
	if s.httpServer != nil {
		s.logger.Warn().Msg("API server is already running")
		return errors.New("api server is already running")
	}

	s.startedAt = time.Now().UTC()
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("API server started")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		s.logger.Warn().Msg("API server is not running")
		return errors.New("api server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.httpServer = nil

	s.logger.Info().Msg("API server stopped")
	return err
}
