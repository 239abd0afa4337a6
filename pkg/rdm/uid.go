package rdm

import (
	"encoding/binary"
	"fmt"
)

// UID is the 48-bit unique identifier of an RDM device (E1.20 Section 5.1).
// It is ordered lexicographically by (ManufacturerID, DeviceID).
type UID struct {
	// ManufacturerID is the ESTA-assigned 16-bit manufacturer ID.
	ManufacturerID uint16

	// DeviceID is the manufacturer-scoped 32-bit device ID.
	DeviceID uint32
}

// Reserved UID values.
var (
	// NullUID is the all-zero UID. It is never a valid device address;
	// a null source UID in a request means "fill in the controller UID".
	NullUID = UID{}

	// BroadcastUID addresses every device on the bus.
	BroadcastUID = UID{ManufacturerID: 0xFFFF, DeviceID: 0xFFFFFFFF}
)

// BroadcastManufacturerUID returns the UID that addresses every device
// of a single manufacturer.
func BroadcastManufacturerUID(man uint16) UID {
	return UID{ManufacturerID: man, DeviceID: 0xFFFFFFFF}
}

// Equal reports whether u and v are the same UID.
func (u UID) Equal(v UID) bool {
	return u.ManufacturerID == v.ManufacturerID && u.DeviceID == v.DeviceID
}

// Less reports whether u sorts before v.
func (u UID) Less(v UID) bool {
	return u.ManufacturerID < v.ManufacturerID ||
		(u.ManufacturerID == v.ManufacturerID && u.DeviceID < v.DeviceID)
}

// Greater reports whether u sorts after v.
func (u UID) Greater(v UID) bool {
	return u.ManufacturerID > v.ManufacturerID ||
		(u.ManufacturerID == v.ManufacturerID && u.DeviceID > v.DeviceID)
}

// LessEqual reports whether u sorts before v or equals it.
func (u UID) LessEqual(v UID) bool { return !u.Greater(v) }

// GreaterEqual reports whether u sorts after v or equals it.
func (u UID) GreaterEqual(v UID) bool { return !u.Less(v) }

// IsBroadcast reports whether u is a broadcast address, either to all
// devices or to all devices of one manufacturer.
func (u UID) IsBroadcast() bool { return u.DeviceID == 0xFFFFFFFF }

// IsNull reports whether u is the null UID.
func (u UID) IsNull() bool { return u.ManufacturerID == 0 && u.DeviceID == 0 }

// IsTargetOf reports whether a message addressed to alias is received
// by the device u. This is true when alias broadcasts to all devices,
// when alias broadcasts to u's manufacturer, or when the two are equal.
func (u UID) IsTargetOf(alias UID) bool {
	if (alias.ManufacturerID == 0xFFFF || alias.ManufacturerID == u.ManufacturerID) &&
		alias.DeviceID == 0xFFFFFFFF {
		return true
	}
	return u.Equal(alias)
}

// String renders the UID in the conventional xxxx:xxxxxxxx form.
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.ManufacturerID, u.DeviceID)
}

// ParseUID parses the xxxx:xxxxxxxx form produced by String.
func ParseUID(s string) (UID, error) {
	var u UID
	if _, err := fmt.Sscanf(s, "%4x:%8x", &u.ManufacturerID, &u.DeviceID); err != nil {
		return UID{}, fmt.Errorf("rdm: invalid uid %q: %w", s, err)
	}
	return u, nil
}

// UIDSize is the encoded size of a UID on the wire.
const UIDSize = 6

// EncodeTo writes the UID in network order (manufacturer ID first) into
// buf, which must be at least UIDSize bytes long.
func (u UID) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint16(buf[0:2], u.ManufacturerID)
	binary.BigEndian.PutUint32(buf[2:6], u.DeviceID)
	return UIDSize
}

// DecodeUID reads a network-order UID from data.
func DecodeUID(data []byte) (UID, error) {
	if len(data) < UIDSize {
		return UID{}, ErrMessageTooShort
	}
	return UID{
		ManufacturerID: binary.BigEndian.Uint16(data[0:2]),
		DeviceID:       binary.BigEndian.Uint32(data[2:6]),
	}, nil
}

// Discovery response framing (E1.20 Section 7.7).
const (
	// EUIDPreamble is the preamble byte preceding an encoded UID.
	EUIDPreamble = 0xFE

	// EUIDDelimiter separates the preamble from the encoded UID.
	EUIDDelimiter = 0xAA

	// MaxPreambleLen is the longest permitted preamble.
	MaxPreambleLen = 7

	// euidDataSize is the delimiter plus 12 redundancy-coded UID bytes
	// plus 4 redundancy-coded checksum bytes.
	euidDataSize = 1 + 12 + 4
)

// EncodeEUID writes the redundancy-coded form of uid used in discovery
// responses: preambleLen preamble bytes (clamped to MaxPreambleLen), a
// delimiter, then each raw UID byte b emitted as the pair b|0xAA, b|0x55,
// followed by a 16-bit checksum of the 12 redundancy bytes encoded the
// same way. The pair coding lets a receiver detect collisions on the
// shared bus: AND-ing an uncollided pair recovers b, while overlapping
// transmissions corrupt the fixed high bits.
//
// buf must hold preambleLen+17 bytes. Returns the number of bytes written.
func EncodeEUID(buf []byte, uid UID, preambleLen int) int {
	if preambleLen > MaxPreambleLen {
		preambleLen = MaxPreambleLen
	}
	if preambleLen < 0 {
		preambleLen = 0
	}
	for i := 0; i < preambleLen; i++ {
		buf[i] = EUIDPreamble
	}
	buf[preambleLen] = EUIDDelimiter

	var raw [UIDSize]byte
	uid.EncodeTo(raw[:])

	d := buf[preambleLen+1:]
	for i, b := range raw {
		d[i*2] = b | 0xAA
		d[i*2+1] = b | 0x55
	}

	var checksum uint16
	for i := 0; i < 12; i++ {
		checksum += uint16(d[i])
	}
	d[12] = byte(checksum>>8) | 0xAA
	d[13] = byte(checksum>>8) | 0x55
	d[14] = byte(checksum) | 0xAA
	d[15] = byte(checksum) | 0x55

	return preambleLen + euidDataSize
}

// DecodeEUID decodes a redundancy-coded UID from a discovery response.
// It scans at most MaxPreambleLen bytes for the delimiter and recovers
// each raw byte as the AND of its redundancy pair. Returns the decoded
// UID and the number of bytes consumed.
//
// The embedded checksum is deliberately not re-verified, matching the
// behavior this driver is modeled on: the discovery transaction treats
// any later mute failure as the corruption signal. Callers that want a
// stricter check can sum data[preamble+1 : preamble+13] themselves.
func DecodeEUID(data []byte) (UID, int, error) {
	if len(data) < euidDataSize {
		return UID{}, 0, ErrMessageTooShort
	}

	preambleLen := 0
	for ; preambleLen <= MaxPreambleLen; preambleLen++ {
		if data[preambleLen] == EUIDDelimiter {
			break
		}
	}
	if preambleLen > MaxPreambleLen {
		return UID{}, 0, ErrNoDelimiter
	}
	if len(data) < preambleLen+euidDataSize {
		return UID{}, 0, ErrMessageTooShort
	}

	d := data[preambleLen+1:]
	var raw [UIDSize]byte
	for i := range raw {
		raw[i] = d[i*2] & d[i*2+1]
	}

	uid, err := DecodeUID(raw[:])
	if err != nil {
		return UID{}, 0, err
	}
	return uid, preambleLen + euidDataSize, nil
}
