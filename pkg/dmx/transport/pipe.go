package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/packetio"
)

// Pipe event tags. Each delivered packet is prefixed with one.
const (
	pipeTagData  = 0x00
	pipeTagBreak = 0x01
)

// pipeMTU bounds one delivered event: tag plus a full DMX frame.
const pipeMTU = 1 + 513

// Pipe is one endpoint of an in-memory serial link. Writes on one
// endpoint surface as reads on the other, with break conditions
// delivered in-band as events. Use NewPipePair to create a linked pair
// for tests that need both ends of the bus.
type Pipe struct {
	in   *packetio.Buffer
	log  logging.LeveledLogger
	peer *Pipe

	mu     sync.Mutex
	dir    Direction
	closed bool
}

// PipeConfig configures a pipe pair.
type PipeConfig struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewPipePair creates two linked pipe endpoints.
func NewPipePair() (*Pipe, *Pipe) {
	return NewPipePairWithConfig(PipeConfig{})
}

// NewPipePairWithConfig creates two linked pipe endpoints with the
// given configuration.
func NewPipePairWithConfig(config PipeConfig) (*Pipe, *Pipe) {
	a := &Pipe{in: packetio.NewBuffer(), dir: DirReceive}
	b := &Pipe{in: packetio.NewBuffer(), dir: DirReceive}
	a.peer = b
	b.peer = a
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("transport-pipe")
		b.log = config.LoggerFactory.NewLogger("transport-pipe")
	}
	return a, b
}

// Read returns the next event from the peer: a span of bytes, or
// ErrBreak for a break condition.
func (p *Pipe) Read(buf []byte) (int, error) {
	var pkt [pipeMTU]byte
	n, err := p.in.Read(pkt[:])
	if err != nil {
		return 0, mapPacketioErr(err)
	}
	if n < 1 {
		return 0, nil
	}
	if pkt[0] == pipeTagBreak {
		return 0, ErrBreak
	}
	m := copy(buf, pkt[1:n])
	return m, nil
}

// Write delivers bytes to the peer. Writes from an endpoint whose
// direction is DirReceive are dropped, like a tristated line driver.
func (p *Pipe) Write(data []byte) (int, error) {
	p.mu.Lock()
	closed, dir := p.closed, p.dir
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	if dir != DirTransmit {
		if p.log != nil {
			p.log.Debugf("dropping %d bytes written while receiving", len(data))
		}
		return len(data), nil
	}

	pkt := make([]byte, 1+len(data))
	pkt[0] = pipeTagData
	copy(pkt[1:], data)
	if _, err := p.peer.in.Write(pkt); err != nil {
		return 0, mapPacketioErr(err)
	}
	return len(data), nil
}

// SendBreak delivers a break event to the peer and holds the caller
// for the break duration, approximating the line timing.
func (p *Pipe) SendBreak(d time.Duration) error {
	p.mu.Lock()
	closed, dir := p.closed, p.dir
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if dir != DirTransmit {
		return nil
	}
	if _, err := p.peer.in.Write([]byte{pipeTagBreak}); err != nil {
		return mapPacketioErr(err)
	}
	if d > 0 {
		time.Sleep(d)
	}
	return nil
}

// SetDirection switches the simulated transceiver direction.
func (p *Pipe) SetDirection(dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.dir = dir
	return nil
}

// SetReadDeadline bounds future Read calls.
func (p *Pipe) SetReadDeadline(t time.Time) error {
	return p.in.SetReadDeadline(t)
}

// ResetInput discards queued but unread events.
func (p *Pipe) ResetInput() error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	// Reads with events queued return immediately, so drain by count
	// rather than by deadline.
	var pkt [pipeMTU]byte
	for p.in.Count() > 0 {
		if _, err := p.in.Read(pkt[:]); err != nil {
			break
		}
	}
	return nil
}

// ResetOutput is a no-op: pipe writes are delivered immediately.
func (p *Pipe) ResetOutput() error { return nil }

// Close closes this endpoint, unblocking a pending Read.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.in.Close()
}

// mapPacketioErr converts packetio errors to transport sentinels.
func mapPacketioErr(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

var _ Conn = (*Pipe)(nil)
