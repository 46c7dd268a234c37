package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Connection states. The machine cycles Disconnected → Connecting →
// Connected → Disconnected indefinitely; it only stops on explicit shutdown.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// DefaultReconnectDelay is the fixed delay between reconnect attempts.
const DefaultReconnectDelay = 3 * time.Second

// MessageHandler receives every inbound broadcast message while connected.
type MessageHandler func(payload []byte)

// Supervisor owns one logical connection to the broadcast hub. It reconnects
// on drop after a fixed delay with no retry limit, and attempts are
// serialized: there is never more than one pending attempt. On leaving the
// connected state the disconnect hook fires so the consumer can reset its
// session-scoped state.
type Supervisor struct {
	url            string
	reconnectDelay time.Duration
	handler        MessageHandler
	onDisconnect   func()
	logger         zerolog.Logger

	mu    sync.RWMutex
	state string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor for the given websocket URL. The
// disconnect hook may be nil.
func NewSupervisor(url string, reconnectDelay time.Duration, handler MessageHandler,
	onDisconnect func(), logger zerolog.Logger) *Supervisor {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &Supervisor{
		url:            url,
		reconnectDelay: reconnectDelay,
		handler:        handler,
		onDisconnect:   onDisconnect,
		logger:         logger,
		state:          StateDisconnected,
	}
}

// Start launches the connection loop in a separate goroutine.
func (s *Supervisor) Start() error {
	if s.ctx != nil {
		s.logger.Warn().Msg("Supervisor is already running")
		return errors.New("supervisor is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runConnectionLoop()
	}()

	s.logger.Info().Str("url", s.url).Msg("Supervisor started")
	return nil
}

// Stop shuts the supervisor down, cancelling any pending reconnect timer and
// closing the live connection.
func (s *Supervisor) Stop() error {
	if s.ctx == nil {
		s.logger.Warn().Msg("Supervisor is not running")
		return errors.New("supervisor is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil
	s.setState(StateDisconnected)

	s.logger.Info().Msg("Supervisor stopped")
	return nil
}

// IsLive reports whether the connection is currently established.
func (s *Supervisor) IsLive() bool {
	return s.State() == StateConnected
}

// State returns the current connection state.
func (s *Supervisor) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) runConnectionLoop() {
	for {
		s.setState(StateConnecting)

		conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
		if err != nil {
			s.setState(StateDisconnected)
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("Connection failed")
			if !s.waitForRetry() {
				return
			}
			continue
		}

		s.setState(StateConnected)
		s.logger.Info().Str("url", s.url).Msg("Connected to hub")

		s.readMessages(conn)

		s.setState(StateDisconnected)
		if s.onDisconnect != nil {
			s.onDisconnect()
		}

		if s.ctx.Err() != nil {
			return
		}
		s.logger.Warn().Dur("retry_in", s.reconnectDelay).Msg("Connection lost, reconnecting")
		if !s.waitForRetry() {
			return
		}
	}
}

// readMessages forwards every inbound message to the handler until the
// connection drops or the supervisor shuts down.
func (s *Supervisor) readMessages(conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	// Unblock the read when shutdown is requested.
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if s.handler != nil {
			s.handler(payload)
		}
	}
}

// waitForRetry blocks for the fixed reconnect delay. It returns false when
// shutdown was requested while waiting.
func (s *Supervisor) waitForRetry() bool {
	timer := time.NewTimer(s.reconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}
