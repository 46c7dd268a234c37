package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/internal/models"
	"github.com/medtransit/transport-bridge/pkg/routing"
)

const maxSubmissionBytes = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleSubmitReading accepts a structured payload for testing without
// hardware: { temp (required), shock?, humidity?, deviceId?, lat?, lng? }.
func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	if _, err := s.hub.SubmitReading(body); err != nil {
		if errors.Is(err, hub.ErrInvalidPayload) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleWebSocket upgrades the connection, registers it with the hub and
// pumps broadcast payloads until the peer goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := s.hub.Subscribe()

	// Drain inbound frames so close handshakes are processed; subscribers
	// have nothing to say to the bridge.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unsubscribe(sub)
				conn.Close()
				return
			}
		}
	}()

	for payload := range sub.Messages() {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.hub.Unsubscribe(sub)
			conn.Close()
			return
		}
	}
	conn.Close()
}

// handleNearestFacilities serves nearest-K lookups over the static facility
// set.
func (s *Server) handleNearestFacilities(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lng query parameters are required"})
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	writeJSON(w, http.StatusOK, s.index.Nearest(lat, lng, limit))
}

// handleDirections proxies the routing collaborator. Failures degrade to a
// straight-line route rather than an error, so the display always has a line
// to draw.
func (s *Server) handleDirections(w http.ResponseWriter, r *http.Request) {
	origin, errO := parseLatLng(r.URL.Query().Get("origin"))
	dest, errD := parseLatLng(r.URL.Query().Get("destination"))
	if errO != nil || errD != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "origin and destination must be lat,lng pairs"})
		return
	}

	route, err := s.router.Route(r.Context(), origin, dest)
	if err != nil {
		route = routing.StraightLine(origin, dest)
	}
	writeJSON(w, http.StatusOK, route)
}

type statusResponse struct {
	Subscribers   int                    `json:"subscribers"`
	Sources       map[string]string      `json:"sources,omitempty"`
	Facilities    int                    `json:"facilities"`
	UptimeSeconds float64                `json:"uptimeSeconds"`
	Host          map[string]interface{} `json:"host,omitempty"`
}

// handleStatus reports ingestion source state, subscriber count and host
// health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Subscribers:   s.hub.SubscriberCount(),
		Sources:       s.sourceStatus(),
		Facilities:    s.index.Len(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Host:          s.health.Snapshot(r.Context()),
	})
}

func parseLatLng(raw string) (models.LatLng, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return models.LatLng{}, errors.New("expected lat,lng")
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		return models.LatLng{}, errors.New("expected lat,lng")
	}
	return models.LatLng{Lat: lat, Lng: lng}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
