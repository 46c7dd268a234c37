package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"github.com/medtransit/transport-bridge/internal/hub"
	"github.com/medtransit/transport-bridge/pkg/telemetry"
)

// SerialIngestionService owns one line-oriented serial transport. Every line
// is trimmed, normalized and published to the hub; rejected lines are logged
// and skipped, never terminating the stream. A transport error halts
// ingestion but leaves the hub serving manual submissions.
type SerialIngestionService struct {
	// Configuration fields
	portName string
	baudRate int

	// Dependencies
	hub        *hub.Hub
	normalizer *telemetry.Normalizer
	logger     zerolog.Logger

	// openTransport is swapped in tests to feed lines without hardware.
	openTransport func() (io.ReadCloser, error)

	// Internal state management
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	transport io.ReadCloser
}

// NewSerialIngestionService creates a new SerialIngestionService instance.
func NewSerialIngestionService(portName string, baudRate int, broadcastHub *hub.Hub,
	normalizer *telemetry.Normalizer, logger zerolog.Logger) *SerialIngestionService {
	s := &SerialIngestionService{
		portName:   portName,
		baudRate:   baudRate,
		hub:        broadcastHub,
		normalizer: normalizer,
		logger:     logger,
	}
	s.openTransport = func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: s.portName, Baud: s.baudRate})
	}
	return s
}

// Start opens the serial port and begins reading lines. An open failure is
// returned to the caller, which logs and continues in
// manual-submission-only mode.
func (s *SerialIngestionService) Start() error {
	if s.ctx != nil {
		s.logger.Warn().Msg("SerialIngestionService is already running")
		return errors.New("serial ingestion service is already running")
	}

	transport, err := s.openTransport()
	if err != nil {
		return fmt.Errorf("failed to open serial transport %s: %w", s.portName, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.transport = transport

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLines(transport)
	}()

	s.logger.Info().
		Str("port", s.portName).
		Int("baud_rate", s.baudRate).
		Msg("SerialIngestionService started")
	return nil
}

// Stop closes the transport and waits for the read loop to exit.
func (s *SerialIngestionService) Stop() error {
	if s.ctx == nil {
		s.logger.Warn().Msg("SerialIngestionService is not running")
		return errors.New("serial ingestion service is not running")
	}

	s.cancel()
	s.transport.Close()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil
	s.transport = nil

	s.logger.Info().Msg("SerialIngestionService stopped")
	return nil
}

// readLines consumes the transport until it fails or the service stops.
func (s *SerialIngestionService) readLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if s.ctx.Err() != nil {
			return
		}
		s.handleLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.logger.Error().Err(err).
			Msg("Serial transport error, ingestion halted; hub keeps serving manual submissions")
	}
}

// handleLine runs one raw line through the normalizer and publishes the
// result. Empty lines are skipped; unrecognized lines are dropped with a
// log entry.
func (s *SerialIngestionService) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	reading, err := s.normalizer.Normalize(line, time.Now().UTC())
	if err != nil {
		s.logger.Warn().Str("line", line).Msg("Dropping unrecognized telemetry line")
		return
	}

	s.hub.Publish(reading)
}
