// Package transport provides the UART-like connection the DMX driver
// transmits and receives through: a real serial port for hardware, and
// an in-memory pipe pair for deterministic tests.
package transport

import (
	"errors"
	"time"
)

// Direction is the line driver direction of an RS-485 transceiver.
type Direction int

const (
	// DirReceive enables the receiver (RTS de-asserted).
	DirReceive Direction = iota

	// DirTransmit enables the driver (RTS asserted).
	DirTransmit
)

func (d Direction) String() string {
	if d == DirTransmit {
		return "transmit"
	}
	return "receive"
}

// Errors returned by transport connections.
var (
	// ErrBreak is returned by Read when a break condition is the next
	// event on the line. Transports that cannot observe breaks on
	// receive (real UARTs without framing-error plumbing) never
	// return it.
	ErrBreak = errors.New("transport: break condition")

	// ErrTimeout is returned by Read when the read deadline passes
	// with no data.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: connection closed")
)

// Conn is a bidirectional, half-duplex serial connection. It mirrors
// the subset of a UART peripheral the driver needs: byte transmit and
// receive with FIFO resets, break generation, and transceiver
// direction control.
//
// Conn is used by one writer and one reader goroutine at a time; it is
// not a general concurrent-safe abstraction.
type Conn interface {
	// Read reads the next span of received bytes, honoring the read
	// deadline. It may return ErrBreak instead of data.
	Read(p []byte) (int, error)

	// Write transmits bytes. Writes while the direction is DirReceive
	// go nowhere, like a tristated line driver.
	Write(p []byte) (int, error)

	// SendBreak holds the line in the break condition for d.
	SendBreak(d time.Duration) error

	// SetDirection switches the transceiver direction.
	SetDirection(dir Direction) error

	// SetReadDeadline bounds future Read calls. The zero time means
	// no deadline.
	SetReadDeadline(t time.Time) error

	// ResetInput discards any received but unread bytes.
	ResetInput() error

	// ResetOutput discards any written but untransmitted bytes.
	ResetOutput() error

	// Close releases the connection and unblocks a pending Read.
	Close() error
}
