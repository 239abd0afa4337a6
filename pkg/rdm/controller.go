package rdm

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/backkem/dmx/pkg/dmx"
	"github.com/pion/logging"
)

// DefaultRequestTimeout bounds the wait for a unicast response. The
// wire allows a responder only a few milliseconds, but USB serial
// adapters buffer aggressively, so the default is generous.
const DefaultRequestTimeout = 50 * time.Millisecond

// ackTimerUnit is the granularity of the delay estimate carried by an
// ACK_TIMER response (E1.20 Section 6.3.3).
const ackTimerUnit = 10 * time.Millisecond

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// UID is the controller's own UID, used as the source address of
	// every request. Required; must not be null or broadcast.
	UID UID

	// PortID identifies the controller port in requests, 1-255.
	// Defaults to the driver port number plus one.
	PortID uint8

	// RequestTimeout bounds the wait for a unicast response. Defaults
	// to DefaultRequestTimeout.
	RequestTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Controller runs RDM transactions over a DMX driver: it stamps and
// sends requests, turns the line around, and validates and classifies
// whatever comes back. One transaction runs at a time.
type Controller struct {
	drv     *dmx.Driver
	uid     UID
	portID  uint8
	timeout time.Duration
	log     logging.LeveledLogger

	mu sync.Mutex
	tn uint8
}

// NewController creates a controller on an installed driver.
func NewController(drv *dmx.Driver, config ControllerConfig) (*Controller, error) {
	if drv == nil {
		return nil, ErrNilDriver
	}
	if config.UID.IsNull() {
		return nil, ErrDestNull
	}
	if config.UID.IsBroadcast() {
		return nil, ErrSourceBroadcast
	}

	c := &Controller{
		drv:     drv,
		uid:     config.UID,
		portID:  config.PortID,
		timeout: config.RequestTimeout,
	}
	if c.portID == 0 {
		c.portID = uint8(drv.PortNum() + 1)
	}
	if c.timeout == 0 {
		c.timeout = DefaultRequestTimeout
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("rdm")
	}
	return c, nil
}

// UID returns the controller's own UID.
func (c *Controller) UID() UID { return c.uid }

// TN returns the transaction number the next request will carry.
func (c *Controller) TN() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tn
}

// Request describes one RDM request. The parameter data is raw wire
// bytes; use a Format's Emplace to build it from host-order values.
type Request struct {
	// DestUID is the destination, possibly a broadcast pattern.
	DestUID UID

	// SubDevice addresses a sub-device. SubDeviceAll is valid only
	// for SET.
	SubDevice SubDevice

	// CC is the request command class.
	CC CommandClass

	// PID is the parameter ID.
	PID PID

	// PD is the parameter data in wire order, at most MaxPDL bytes.
	PD []byte

	// Timeout overrides the controller's response timeout when nonzero.
	Timeout time.Duration
}

// Response is the outcome of one transaction. Header and PD are set
// only when a response validated (Ack.Type is one of the wire types).
type Response struct {
	// Ack classifies the outcome.
	Ack Ack

	// Header is the validated response header.
	Header *Header

	// PD is the response parameter data, owned by the caller.
	PD []byte
}

// Do runs one complete transaction: validate arguments, stamp the
// transaction number, send the request, and wait for and classify the
// response. Broadcast requests (other than DISC_UNIQUE_BRANCH, which
// is answered despite being broadcast) expect no response and return
// ResponseTypeNone without listening.
//
// The transaction number advances after every attempt, answered or not.
func (c *Controller) Do(req *Request) (*Response, error) {
	if req.DestUID.IsNull() {
		return nil, ErrDestNull
	}
	if !req.CC.IsRequest() {
		return nil, ErrBadCommandClass
	}
	if req.SubDevice > MaxSubDevice && req.SubDevice != SubDeviceAll {
		return nil, ErrBadSubDevice
	}
	if req.SubDevice == SubDeviceAll && req.CC == GetCommand {
		return nil, ErrBadSubDevice
	}
	if len(req.PD) > MaxPDL {
		return nil, ErrPDTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tn := c.tn
	c.tn++

	h := &Header{
		DestUID:   req.DestUID,
		SrcUID:    c.uid,
		TN:        tn,
		PortID:    c.portID,
		SubDevice: req.SubDevice,
		CC:        req.CC,
		PID:       req.PID,
	}

	var buf [MaxMessageSize]byte
	n, err := EncodeMessage(buf[:], h, req.PD)
	if err != nil {
		return nil, err
	}

	if c.drv.Mode() != dmx.ModeWrite {
		if err := c.drv.SetMode(dmx.ModeWrite); err != nil {
			return nil, err
		}
	}
	if _, err := c.drv.Write(buf[:n]); err != nil {
		return nil, err
	}
	if err := c.drv.Send(n); err != nil {
		return nil, err
	}
	if err := c.drv.WaitSent(time.Second); err != nil {
		return nil, err
	}

	if c.log != nil {
		c.log.Tracef("tn %d: %s %s -> %s", tn, h.CC, h.PID, h.DestUID)
	}

	// A broadcast hits every responder at once; except for the
	// discovery unique-branch command, none of them may answer.
	if req.DestUID.IsBroadcast() &&
		!(req.CC == DiscoverCommand && req.PID == PIDDiscUniqueBranch) {
		return &Response{Ack: Ack{Type: ResponseTypeNone}}, nil
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	pkt, err := c.drv.Receive(timeout)
	if err != nil {
		return &Response{Ack: Ack{Type: ResponseTypeNone, Err: err}}, nil
	}

	return c.classify(h, pkt), nil
}

// classify validates a received frame against the request that
// solicited it and produces the transaction outcome.
func (c *Controller) classify(req *Header, pkt dmx.Packet) *Response {
	// A discovery response is not a framed message: it is a bare
	// redundancy-coded UID, sent without a break, so the start code is
	// the first encoded byte.
	if req.CC == DiscoverCommand && req.PID == PIDDiscUniqueBranch &&
		pkt.StartCode != StartCode {
		uid, _, err := DecodeEUID(pkt.Data[:pkt.Size])
		if err != nil {
			return &Response{Ack: Ack{Type: ResponseTypeInvalid, Err: err}}
		}
		return &Response{
			Ack: Ack{Type: ResponseTypeAck, Size: pkt.Size},
			Header: &Header{
				DestUID:      c.uid,
				SrcUID:       uid,
				TN:           req.TN,
				ResponseType: ResponseTypeAck,
				SubDevice:    SubDeviceRoot,
				CC:           DiscoverCommandResponse,
				PID:          PIDDiscUniqueBranch,
			},
		}
	}

	h, pd, err := DecodeMessage(pkt.Data[:pkt.Size])
	if err != nil {
		return &Response{Ack: Ack{Type: ResponseTypeInvalid, Err: err}}
	}

	// The response must pair with the request: matching command class,
	// parameter, transaction number, and reciprocal addressing. The
	// source must be a device the request could have reached, and the
	// destination must be this controller.
	switch {
	case h.CC != req.CC.Response(),
		h.PID != req.PID,
		h.TN != req.TN,
		!h.DestUID.Equal(req.SrcUID),
		!h.SrcUID.IsTargetOf(req.DestUID),
		!h.ResponseType.IsValid():
		if c.log != nil {
			c.log.Debugf("tn %d: mismatched response from %s", req.TN, h.SrcUID)
		}
		return &Response{Ack: Ack{Type: ResponseTypeInvalid}}
	}

	resp := &Response{
		Ack:    Ack{Type: h.ResponseType},
		Header: h,
		PD:     append([]byte(nil), pd...),
	}
	switch h.ResponseType {
	case ResponseTypeAck:
		resp.Ack.Size = pkt.Size
	case ResponseTypeAckOverflow:
		// Overflow continuation is not implemented; the caller gets
		// only this first block and a zero size.
		if c.log != nil {
			c.log.Warnf("tn %d: ACK_OVERFLOW from %s not reassembled", req.TN, h.SrcUID)
		}
	case ResponseTypeAckTimer:
		if len(pd) >= 2 {
			resp.Ack.Timer = time.Duration(binary.BigEndian.Uint16(pd)) * ackTimerUnit
		}
	case ResponseTypeNackReason:
		if len(pd) >= 2 {
			resp.Ack.Nack = NackReason(binary.BigEndian.Uint16(pd))
		}
	}
	if c.log != nil {
		c.log.Tracef("tn %d: %s from %s", req.TN, resp.Ack.Type, h.SrcUID)
	}
	return resp
}

// Write encodes a message and stages it in the driver's frame buffer
// without sending. A null source UID is replaced with the controller
// UID. Returns the staged message size.
func (c *Controller) Write(h *Header, pd []byte) (int, error) {
	if h.SrcUID.IsNull() {
		h.SrcUID = c.uid
	}
	var buf [MaxMessageSize]byte
	n, err := EncodeMessage(buf[:], h, pd)
	if err != nil {
		return 0, err
	}
	return c.drv.Write(buf[:n])
}

// Read decodes the message currently held in the driver's frame buffer.
func (c *Controller) Read() (*Header, []byte, error) {
	var buf [dmx.PacketSize]byte
	n := c.drv.Read(buf[:])
	h, pd, err := DecodeMessage(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	return h, append([]byte(nil), pd...), nil
}
