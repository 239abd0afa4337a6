package rdm

// Start codes (E1.11 Section 8.5, E1.20 Section 5).
const (
	// StartCode is the RDM alternate start code.
	StartCode byte = 0xCC

	// SubStartCode identifies the RDM message format.
	SubStartCode byte = 0x01

	// NullStartCode is the DMX512 dimmer data start code.
	NullStartCode byte = 0x00
)

// Message size limits.
const (
	// HeaderSize is the fixed size of the RDM message header, from the
	// start code through the parameter data length field.
	HeaderSize = 24

	// ChecksumSize is the size of the trailing message checksum.
	ChecksumSize = 2

	// MaxPDL is the largest parameter data length. The message data
	// block is capped at 257 bytes, minus the 24-byte header and the
	// 2-byte checksum.
	MaxPDL = 231

	// MaxMessageSize is the largest complete RDM message on the wire.
	MaxMessageSize = HeaderSize + MaxPDL + ChecksumSize
)

// CommandClass identifies the type of an RDM command (E1.20 Table A-1).
type CommandClass uint8

// Command classes. Each request class pairs with the response class of
// value cc+1.
const (
	DiscoverCommand         CommandClass = 0x10
	DiscoverCommandResponse CommandClass = 0x11
	GetCommand              CommandClass = 0x20
	GetCommandResponse      CommandClass = 0x21
	SetCommand              CommandClass = 0x30
	SetCommandResponse      CommandClass = 0x31
)

// IsRequest reports whether cc is one of the three request classes.
func (cc CommandClass) IsRequest() bool {
	return cc == DiscoverCommand || cc == GetCommand || cc == SetCommand
}

// Response returns the response class paired with a request class.
func (cc CommandClass) Response() CommandClass { return cc + 1 }

func (cc CommandClass) String() string {
	switch cc {
	case DiscoverCommand:
		return "DISCOVER_COMMAND"
	case DiscoverCommandResponse:
		return "DISCOVER_COMMAND_RESPONSE"
	case GetCommand:
		return "GET_COMMAND"
	case GetCommandResponse:
		return "GET_COMMAND_RESPONSE"
	case SetCommand:
		return "SET_COMMAND"
	case SetCommandResponse:
		return "SET_COMMAND_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// PID is an RDM parameter ID (E1.20 Table A-3).
type PID uint16

// Parameter IDs used by the controller surface of this driver.
const (
	PIDDiscUniqueBranch     PID = 0x0001
	PIDDiscMute             PID = 0x0002
	PIDDiscUnMute           PID = 0x0003
	PIDSupportedParameters  PID = 0x0050
	PIDDeviceInfo           PID = 0x0060
	PIDSoftwareVersionLabel PID = 0x00C0
	PIDDMXStartAddress      PID = 0x00F0
	PIDDeviceLabel          PID = 0x0082
	PIDIdentifyDevice       PID = 0x1000
)

// ResponseType classifies the reply to a request (E1.20 Table A-2).
// The Invalid and None values are local classifications, not wire values.
type ResponseType uint8

const (
	// ResponseTypeAck is a successful response.
	ResponseTypeAck ResponseType = 0x00

	// ResponseTypeAckTimer asks the controller to retry after an
	// estimated delay carried in the parameter data.
	ResponseTypeAckTimer ResponseType = 0x01

	// ResponseTypeNackReason is a refusal with a reason code.
	ResponseTypeNackReason ResponseType = 0x02

	// ResponseTypeAckOverflow indicates a multi-part response. Not
	// supported by this driver; reported but not reassembled.
	ResponseTypeAckOverflow ResponseType = 0x03

	// ResponseTypeNone means no response was received. Expected for
	// broadcast requests; for unicast it means the device is absent.
	ResponseTypeNone ResponseType = 0xFE

	// ResponseTypeInvalid means a response arrived but failed
	// validation (checksum, pairing, or addressing).
	ResponseTypeInvalid ResponseType = 0xFF
)

// IsValid reports whether rt is one of the four wire response types.
func (rt ResponseType) IsValid() bool {
	return rt <= ResponseTypeAckOverflow
}

func (rt ResponseType) String() string {
	switch rt {
	case ResponseTypeAck:
		return "ACK"
	case ResponseTypeAckTimer:
		return "ACK_TIMER"
	case ResponseTypeNackReason:
		return "NACK_REASON"
	case ResponseTypeAckOverflow:
		return "ACK_OVERFLOW"
	case ResponseTypeNone:
		return "NONE"
	case ResponseTypeInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// SubDevice addresses a sub-device within a root device.
type SubDevice uint16

const (
	// SubDeviceRoot addresses the root device.
	SubDeviceRoot SubDevice = 0x0000

	// SubDeviceAll addresses every sub-device. Not valid for GET.
	SubDeviceAll SubDevice = 0xFFFF

	// MaxSubDevice is the highest addressable sub-device number.
	MaxSubDevice SubDevice = 512
)

// NackReason is the reason code carried by a NACK_REASON response
// (E1.20 Table A-17).
type NackReason uint16

const (
	NackUnknownPID        NackReason = 0x0000
	NackFormatError       NackReason = 0x0001
	NackHardwareFault     NackReason = 0x0002
	NackProxyReject       NackReason = 0x0003
	NackWriteProtect      NackReason = 0x0004
	NackUnsupportedCC     NackReason = 0x0005
	NackDataOutOfRange    NackReason = 0x0006
	NackBufferFull        NackReason = 0x0007
	NackPacketSizeUnsup   NackReason = 0x0008
	NackSubDeviceOOR      NackReason = 0x0009
	NackProxyBufferFull   NackReason = 0x000A
)
