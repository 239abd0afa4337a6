package rdm

import (
	"encoding/binary"
)

// Header is the fixed 24-byte RDM message header (E1.20 Section 6.2).
// The byte at offset 16 is the port ID in requests and the response
// type in responses; both fields are kept and the command class selects
// which one goes on the wire.
type Header struct {
	// DestUID is the destination device, possibly a broadcast pattern.
	DestUID UID

	// SrcUID is the sender. Never a broadcast pattern.
	SrcUID UID

	// TN is the transaction number. The controller stamps it on
	// requests; responders echo it.
	TN uint8

	// PortID identifies the controller port, 1-255. Requests only.
	PortID uint8

	// ResponseType classifies a response. Responses only.
	ResponseType ResponseType

	// MessageCount is the number of queued messages a responder holds.
	// Always zero in requests.
	MessageCount uint8

	// SubDevice addresses a sub-device, or SubDeviceAll.
	SubDevice SubDevice

	// CC is the command class.
	CC CommandClass

	// PID is the parameter ID.
	PID PID

	// PDL is the parameter data length. Set by DecodeMessage; on
	// encode it is derived from the parameter data.
	PDL uint8
}

// IsResponse reports whether the header carries a response command class.
func (h *Header) IsResponse() bool {
	return h.CC == DiscoverCommandResponse || h.CC == GetCommandResponse ||
		h.CC == SetCommandResponse
}

// EncodeMessage serializes a complete RDM message into buf: start code,
// sub start code, message length, the 24-byte header, the parameter
// data, and the big-endian checksum over everything before it. Returns
// the total number of bytes written.
func EncodeMessage(buf []byte, h *Header, pd []byte) (int, error) {
	if len(pd) > MaxPDL {
		return 0, ErrPDTooLong
	}
	msgLen := HeaderSize + len(pd)
	if len(buf) < msgLen+ChecksumSize {
		return 0, ErrMessageTooShort
	}

	buf[0] = StartCode
	buf[1] = SubStartCode
	buf[2] = byte(msgLen)
	h.DestUID.EncodeTo(buf[3:9])
	h.SrcUID.EncodeTo(buf[9:15])
	buf[15] = h.TN
	if h.IsResponse() {
		buf[16] = byte(h.ResponseType)
	} else {
		buf[16] = h.PortID
	}
	buf[17] = h.MessageCount
	binary.BigEndian.PutUint16(buf[18:20], uint16(h.SubDevice))
	buf[20] = byte(h.CC)
	binary.BigEndian.PutUint16(buf[21:23], uint16(h.PID))
	buf[23] = byte(len(pd))
	copy(buf[HeaderSize:msgLen], pd)

	binary.BigEndian.PutUint16(buf[msgLen:], checksum(buf[:msgLen]))
	return msgLen + ChecksumSize, nil
}

// DecodeMessage validates and parses a complete RDM message. The start
// code, sub start code, declared length and checksum are all verified;
// a failure on any of them means the buffer holds no usable response.
// The returned parameter data aliases data.
func DecodeMessage(data []byte) (*Header, []byte, error) {
	if len(data) < HeaderSize+ChecksumSize {
		return nil, nil, ErrMessageTooShort
	}
	if data[0] != StartCode || data[1] != SubStartCode {
		return nil, nil, ErrBadStartCode
	}

	msgLen := int(data[2])
	if msgLen < HeaderSize || msgLen+ChecksumSize > len(data) {
		return nil, nil, ErrBadLength
	}
	if checksum(data[:msgLen]) != binary.BigEndian.Uint16(data[msgLen:]) {
		return nil, nil, ErrBadChecksum
	}

	h := &Header{
		TN:           data[15],
		PortID:       data[16],
		ResponseType: ResponseType(data[16]),
		MessageCount: data[17],
		SubDevice:    SubDevice(binary.BigEndian.Uint16(data[18:20])),
		CC:           CommandClass(data[20]),
		PID:          PID(binary.BigEndian.Uint16(data[21:23])),
		PDL:          data[23],
	}
	h.DestUID, _ = DecodeUID(data[3:9])
	h.SrcUID, _ = DecodeUID(data[9:15])

	if HeaderSize+int(h.PDL) > msgLen {
		return nil, nil, ErrBadLength
	}
	return h, data[HeaderSize : HeaderSize+int(h.PDL)], nil
}

// checksum is the arithmetic sum of data, mod 65536.
func checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
