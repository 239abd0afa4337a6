// Package dmx drives DMX512 output and reception on a UART-like serial
// transport: break/mark-after-break generation through a programmable
// timer, a 513-byte frame buffer per port, and a read loop that
// reassembles received frames and hands them to waiting callers.
package dmx

import (
	"sync"
	"time"

	"github.com/backkem/dmx/pkg/dmx/transport"
	"github.com/pion/logging"
)

// Port and frame limits (E1.11).
const (
	// MaxPorts is the number of installable DMX ports.
	MaxPorts = 2

	// PacketSize is the start code plus 512 slots.
	PacketSize = 513
)

// Reset sequence timing (E1.11 Section 8.9). Values outside the legal
// transmit range are clamped at install.
const (
	// DefaultBreakLen is the typical transmitted break length.
	DefaultBreakLen = 176 * time.Microsecond

	// MinBreakLen is the shortest legal transmitted break.
	MinBreakLen = 92 * time.Microsecond

	// MaxBreakLen keeps a misconfigured break from wedging the port.
	MaxBreakLen = time.Second

	// DefaultMABLen is the typical mark-after-break length.
	DefaultMABLen = 12 * time.Microsecond

	// MinMABLen is the shortest legal transmitted mark-after-break.
	MinMABLen = 12 * time.Microsecond

	// MaxMABLen bounds the mark-after-break.
	MaxMABLen = time.Second
)

// readPollInterval bounds each blocking transport read, so that an
// idle gap terminates a frame with no observable break and so the
// read loop notices shutdown.
const readPollInterval = 5 * time.Millisecond

// Mode is the port direction state.
type Mode int

const (
	// ModeRead listens for frames on the bus.
	ModeRead Mode = iota

	// ModeWrite owns the bus for transmission.
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// Config configures a driver instance.
type Config struct {
	// Transport is the serial connection to drive. Required.
	Transport transport.Conn

	// Timer generates the break interval. Defaults to the monotonic
	// runtime timer.
	Timer Timer

	// BreakLen is the transmitted break length, clamped to the legal
	// range. Defaults to DefaultBreakLen.
	BreakLen time.Duration

	// MABLen is the transmitted mark-after-break length, clamped to
	// the legal range. Defaults to DefaultMABLen.
	MABLen time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Driver owns one DMX port: its frame buffer, mode state machine and
// send cycle. All public methods are meant for a single logical caller;
// the internal mutex exists to exclude the IO goroutines, not to
// arbitrate concurrent callers.
type Driver struct {
	port  int
	conn  transport.Conn
	timer Timer
	log   logging.LeveledLogger

	breakLen time.Duration
	mabLen   time.Duration

	mu         sync.Mutex
	buf        frameBuffer
	mode       Mode
	dir        transport.Direction
	sending    bool
	txSize     int
	delivering bool
	resetRx    bool
	sentCh     chan struct{}

	frames  chan Packet
	closeCh chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

// Port registry. Ports are installed explicitly and owned exclusively
// by their driver instance until uninstalled.
var (
	registryMu sync.Mutex
	registry   [MaxPorts]*Driver
)

// Install creates the driver for a port and starts its read loop.
// The port begins in ModeRead.
func Install(port int, config Config) (*Driver, error) {
	if port < 0 || port >= MaxPorts {
		return nil, ErrInvalidPort
	}
	if config.Transport == nil {
		return nil, ErrNilTransport
	}

	d := &Driver{
		port:     port,
		conn:     config.Transport,
		timer:    config.Timer,
		breakLen: clampDuration(config.BreakLen, DefaultBreakLen, MinBreakLen, MaxBreakLen),
		mabLen:   clampDuration(config.MABLen, DefaultMABLen, MinMABLen, MaxMABLen),
		mode:     ModeRead,
		dir:      transport.DirReceive,
		frames:   make(chan Packet, 4),
		closeCh:  make(chan struct{}),
		sentCh:   make(chan struct{}),
	}
	if d.timer == nil {
		d.timer = NewTimer()
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("dmx")
	}

	registryMu.Lock()
	if registry[port] != nil {
		registryMu.Unlock()
		return nil, ErrInstalled
	}
	registry[port] = d
	registryMu.Unlock()

	// No send in flight yet.
	d.buf.completeSend()
	close(d.sentCh)

	d.timer.OnExpire(d.onBreakExpired)
	d.delivering = true
	d.conn.ResetInput()
	d.conn.SetDirection(transport.DirReceive)

	d.wg.Add(1)
	go d.readLoop()

	if d.log != nil {
		d.log.Infof("installed port %d (break %v, mab %v)", port, d.breakLen, d.mabLen)
	}
	return d, nil
}

// Uninstall stops the port's driver and releases the port.
func Uninstall(port int) error {
	if port < 0 || port >= MaxPorts {
		return ErrInvalidPort
	}
	registryMu.Lock()
	d := registry[port]
	registry[port] = nil
	registryMu.Unlock()
	if d == nil {
		return ErrNotInstalled
	}
	return d.close()
}

// Port returns the installed driver for a port, if any.
func Port(port int) (*Driver, bool) {
	if port < 0 || port >= MaxPorts {
		return nil, false
	}
	registryMu.Lock()
	d := registry[port]
	registryMu.Unlock()
	return d, d != nil
}

// IsInstalled reports whether a driver is installed on the port.
func IsInstalled(port int) bool {
	_, ok := Port(port)
	return ok
}

func (d *Driver) close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.timer.Stop()
	close(d.closeCh)
	err := d.conn.Close()
	d.wg.Wait()
	if d.log != nil {
		d.log.Infof("uninstalled port %d", d.port)
	}
	return err
}

// PortNum returns the port number this driver is installed on.
func (d *Driver) PortNum() int { return d.port }

// BreakLen returns the configured break length.
func (d *Driver) BreakLen() time.Duration { return d.breakLen }

// MABLen returns the configured mark-after-break length.
func (d *Driver) MABLen() time.Duration { return d.mabLen }

// Mode returns the current port mode.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode switches the port between reading and writing the bus.
// Switching away from ModeWrite while a send is in flight is refused
// with ErrSending and changes nothing; retry after WaitSent.
func (d *Driver) SetMode(mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.mode == mode {
		return nil
	}
	if d.mode == ModeWrite && !d.buf.completed {
		return ErrSending
	}

	d.mode = mode
	if mode == ModeRead {
		// Stale bytes must not be accepted until the next frame start.
		d.buf.completeSend()
		d.resetRx = true
		d.conn.ResetInput()
		d.conn.SetDirection(transport.DirReceive)
		d.dir = transport.DirReceive
		d.delivering = true
	} else {
		d.delivering = false
		d.buf.clear()
		d.buf.completeSend()
		d.conn.ResetOutput()
		d.conn.SetDirection(transport.DirTransmit)
		d.dir = transport.DirTransmit
	}
	if d.log != nil {
		d.log.Debugf("port %d mode %s", d.port, mode)
	}
	return nil
}

// Write stages a complete frame, starting at the start code, for the
// next send. Refused while a send is in flight. In write mode the
// transceiver is turned back to transmit if a previous receive left it
// listening.
func (d *Driver) Write(data []byte) (int, error) {
	if len(data) > PacketSize {
		return 0, ErrSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	if !d.buf.completed {
		return 0, ErrSending
	}
	if d.mode == ModeWrite && d.dir != transport.DirTransmit {
		d.conn.SetDirection(transport.DirTransmit)
		d.dir = transport.DirTransmit
		d.delivering = false
	}
	return d.buf.stage(data), nil
}

// WriteSlot stages a single slot value.
func (d *Driver) WriteSlot(slot int, value byte) error {
	if slot < 0 || slot >= PacketSize {
		return ErrSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.buf.completed {
		return ErrSending
	}
	d.buf.data[slot] = value
	if d.buf.length <= slot {
		d.buf.length = slot + 1
	}
	return nil
}

// Read copies the frame buffer into buf and returns the number of
// bytes copied: the staged frame in write mode, or the most recently
// received frame in read mode.
func (d *Driver) Read(buf []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.copyOut(buf)
}

// ReadSlot returns one slot from the frame buffer.
func (d *Driver) ReadSlot(slot int) (byte, error) {
	if slot < 0 || slot >= PacketSize {
		return 0, ErrSize
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot >= d.buf.length {
		return 0, ErrSize
	}
	return d.buf.data[slot], nil
}

// Send transmits size bytes of the staged frame: the break timer is
// programmed with the configured break length, the break condition is
// generated, and on timer expiry the mark-after-break runs before the
// bytes stream out. Send returns once the cycle is started; WaitSent
// blocks until it completes. A size of 0 sends the staged length.
func (d *Driver) Send(size int) error {
	if size < 0 || size > PacketSize {
		return ErrSize
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.mode != ModeWrite {
		d.mu.Unlock()
		return ErrInvalidMode
	}
	if !d.buf.completed {
		d.mu.Unlock()
		return ErrSending
	}
	if size == 0 {
		size = d.buf.length
	}
	if size == 0 {
		d.mu.Unlock()
		return ErrSize
	}
	if d.dir != transport.DirTransmit {
		d.conn.SetDirection(transport.DirTransmit)
		d.dir = transport.DirTransmit
		d.delivering = false
	}

	d.buf.beginSend()
	d.sending = true
	d.txSize = size
	d.sentCh = make(chan struct{})
	breakLen := d.breakLen
	d.mu.Unlock()

	d.timer.Set(breakLen)
	d.timer.Start()
	if err := d.conn.SendBreak(breakLen); err != nil && d.log != nil {
		d.log.Warnf("port %d break: %v", d.port, err)
	}
	return nil
}

// onBreakExpired is the timer expiry handler: it ends the break,
// observes the mark-after-break, streams the frame and signals
// completion.
func (d *Driver) onBreakExpired() {
	d.mu.Lock()
	if !d.sending {
		d.mu.Unlock()
		return
	}
	size := d.txSize
	data := make([]byte, size)
	copy(data, d.buf.data[:size])
	mab := d.mabLen
	d.mu.Unlock()

	if mab > 0 {
		time.Sleep(mab)
	}
	if _, err := d.conn.Write(data); err != nil && d.log != nil {
		d.log.Warnf("port %d write: %v", d.port, err)
	}

	d.mu.Lock()
	d.sending = false
	d.buf.completeSend()
	close(d.sentCh)
	d.mu.Unlock()

	if d.log != nil {
		d.log.Tracef("port %d sent %d bytes", d.port, size)
	}
}

// WaitSent blocks until the in-flight send completes, or the timeout
// elapses.
func (d *Driver) WaitSent(timeout time.Duration) error {
	d.mu.Lock()
	if d.buf.completed {
		d.mu.Unlock()
		return nil
	}
	ch := d.sentCh
	d.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-t.C:
		return ErrSendTimeout
	case <-d.closeCh:
		return ErrClosed
	}
}

// Receive waits for the next received frame. If the port is in write
// mode with the send completed, the line is first turned around to
// listen for a reply. A timeout does not turn it back: the port stays
// in write mode and the next Write or Send re-enables the line driver.
func (d *Driver) Receive(timeout time.Duration) (Packet, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Packet{}, ErrClosed
	}
	if d.mode == ModeWrite && d.dir == transport.DirTransmit {
		if !d.buf.completed {
			d.mu.Unlock()
			return Packet{}, ErrSending
		}
		d.conn.SetDirection(transport.DirReceive)
		d.dir = transport.DirReceive
		// Anything still queued predates the frame just sent.
		for len(d.frames) > 0 {
			<-d.frames
		}
		d.delivering = true
		if d.log != nil {
			d.log.Tracef("port %d turnaround", d.port)
		}
	}
	d.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case pkt := <-d.frames:
		return pkt, nil
	case <-t.C:
		return Packet{}, ErrReadTimeout
	case <-d.closeCh:
		return Packet{}, ErrClosed
	}
}

// readLoop is the single receive goroutine: it reassembles frames from
// transport reads and pushes completed packets through the frame
// channel (and into the frame buffer) when delivery is enabled.
func (d *Driver) readLoop() {
	defer d.wg.Done()

	acc := make([]byte, 0, PacketSize)
	chunk := make([]byte, PacketSize)
	var lineErr error

	flush := func() {
		if len(acc) == 0 {
			return
		}
		d.deliver(acc, lineErr)
		acc = acc[:0]
		lineErr = nil
	}

	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		d.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := d.conn.Read(chunk)

		d.mu.Lock()
		if d.resetRx {
			d.resetRx = false
			acc = acc[:0]
			lineErr = nil
		}
		d.mu.Unlock()

		switch err {
		case nil:
		case transport.ErrBreak:
			// A break terminates the previous frame and starts a new one.
			flush()
			continue
		case transport.ErrTimeout:
			// An idle gap terminates a frame on transports that cannot
			// surface breaks.
			flush()
			continue
		case transport.ErrClosed:
			return
		default:
			// Line error: keep collecting, mark the frame suspect.
			lineErr = err
			continue
		}

		if n == 0 {
			continue
		}
		room := PacketSize - len(acc)
		if n > room {
			n = room
			lineErr = ErrSize
		}
		acc = append(acc, chunk[:n]...)

		// An RDM frame is complete as soon as its declared length plus
		// checksum has arrived. Other frames wait for a break or idle.
		if len(acc) >= 3 && acc[0] == 0xCC {
			if want := int(acc[2]) + 2; len(acc) >= want {
				flush()
			}
		}
	}
}

// deliver copies a completed frame into the frame buffer and hands it
// to a waiting Receive, when delivery is enabled. Frames nobody is
// around to take are dropped, oldest first.
func (d *Driver) deliver(frame []byte, lineErr error) {
	d.mu.Lock()
	if !d.delivering || d.closed {
		d.mu.Unlock()
		return
	}
	d.buf.stage(frame)
	d.mu.Unlock()

	pkt := Packet{
		Data:      append([]byte(nil), frame...),
		Size:      len(frame),
		StartCode: frame[0],
		IsRDM:     frame[0] == 0xCC,
		Err:       lineErr,
	}
	for {
		select {
		case d.frames <- pkt:
			return
		default:
		}
		select {
		case <-d.frames:
			// Drop the oldest queued frame.
			if d.log != nil {
				d.log.Debugf("port %d dropping stale frame", d.port)
			}
		default:
		}
	}
}

// clampDuration applies the default for zero and clamps to [min, max].
func clampDuration(d, def, min, max time.Duration) time.Duration {
	if d == 0 {
		d = def
	}
	if d < min {
		d = min
	}
	if d > max {
		d = max
	}
	return d
}
