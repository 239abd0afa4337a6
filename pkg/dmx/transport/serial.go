package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
)

// DefaultBaudRate is the DMX512 data rate (E1.11 Section 8.1).
const DefaultBaudRate = 250000

// SerialConfig configures a Serial connection.
type SerialConfig struct {
	// Device is the serial device path, e.g. "/dev/ttyUSB0". Required.
	Device string

	// BaudRate overrides the DMX default of 250000.
	BaudRate int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Serial is a Conn backed by a real serial port in 8N2 framing.
// The RS-485 transceiver direction is driven through RTS.
type Serial struct {
	port serial.Port
	log  logging.LeveledLogger

	mu  sync.Mutex
	dir Direction
}

// OpenSerial opens the configured serial device for DMX use.
func OpenSerial(config SerialConfig) (*Serial, error) {
	if config.Device == "" {
		return nil, fmt.Errorf("serial: no device path configured")
	}
	baud := config.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	}
	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", config.Device, err)
	}

	s := &Serial{port: port, dir: DirReceive}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("transport-serial")
	}
	return s, nil
}

// Read reads received bytes. A deadline expiry surfaces as ErrTimeout.
// Break conditions are not observable on receive through this
// transport; reply framing relies on message lengths and idle gaps.
func (s *Serial) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		// go.bug.st/serial signals a read timeout with (0, nil).
		return 0, ErrTimeout
	}
	return n, nil
}

// Write transmits bytes on the port.
func (s *Serial) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// SendBreak holds TX in the break condition for d. The call returns
// after the break has ended.
func (s *Serial) SendBreak(d time.Duration) error {
	return s.port.Break(d)
}

// SetDirection drives the transceiver direction through RTS.
func (s *Serial) SetDirection(dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == dir {
		return nil
	}
	if err := s.port.SetRTS(dir == DirTransmit); err != nil {
		return err
	}
	s.dir = dir
	if s.log != nil {
		s.log.Tracef("direction %s", dir)
	}
	return nil
}

// SetReadDeadline bounds future reads. Serial ports use a relative
// timeout, so the deadline is converted at call time.
func (s *Serial) SetReadDeadline(t time.Time) error {
	if t.IsZero() {
		return s.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	return s.port.SetReadTimeout(d)
}

// ResetInput discards the receive FIFO.
func (s *Serial) ResetInput() error { return s.port.ResetInputBuffer() }

// ResetOutput discards the transmit FIFO.
func (s *Serial) ResetOutput() error { return s.port.ResetOutputBuffer() }

// Close closes the port, unblocking a pending Read.
func (s *Serial) Close() error { return s.port.Close() }

var _ Conn = (*Serial)(nil)
