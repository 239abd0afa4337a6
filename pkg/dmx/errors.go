package dmx

import "errors"

// Errors returned by the dmx package.
var (
	// ErrInvalidPort is returned for a port number outside [0, MaxPorts).
	ErrInvalidPort = errors.New("dmx: invalid port number")

	// ErrInstalled is returned when installing over an existing driver.
	ErrInstalled = errors.New("dmx: driver already installed on port")

	// ErrNotInstalled is returned when no driver is installed on a port.
	ErrNotInstalled = errors.New("dmx: no driver installed on port")

	// ErrNilTransport is returned when Config.Transport is missing.
	ErrNilTransport = errors.New("dmx: transport connection is required")

	// ErrSending is returned for operations that must wait for an
	// in-flight send to complete: staging new data, starting another
	// send, or switching to read mode. Retry after WaitSent.
	ErrSending = errors.New("dmx: send in flight")

	// ErrInvalidMode is returned when an operation requires the other
	// port mode.
	ErrInvalidMode = errors.New("dmx: operation not valid in current mode")

	// ErrSize is returned for out-of-range buffer sizes or slot indexes.
	ErrSize = errors.New("dmx: size out of range")

	// ErrSendTimeout is returned by WaitSent when the completion signal
	// does not fire in time.
	ErrSendTimeout = errors.New("dmx: send completion timed out")

	// ErrReadTimeout is returned by Receive when no packet arrives in
	// time. Distinct from a malformed reply: the bus stayed silent.
	ErrReadTimeout = errors.New("dmx: receive timed out")

	// ErrClosed is returned after the driver is uninstalled.
	ErrClosed = errors.New("dmx: driver closed")
)
