package rdm

import "errors"

// Errors returned by the rdm package.
var (
	// Codec errors.
	ErrMessageTooShort = errors.New("rdm: data too short")
	ErrMessageTooLong  = errors.New("rdm: message exceeds maximum size")
	ErrNoDelimiter     = errors.New("rdm: no delimiter within preamble window")
	ErrBadStartCode    = errors.New("rdm: bad start code or sub start code")
	ErrBadChecksum     = errors.New("rdm: checksum mismatch")
	ErrBadLength       = errors.New("rdm: declared message length out of range")
	ErrPDTooLong       = errors.New("rdm: parameter data exceeds 231 bytes")

	// Format mini-language errors. These indicate a malformed format
	// string, which is a programmer error rather than a wire condition.
	ErrFormatUnknownToken   = errors.New("rdm: unknown token in parameter format")
	ErrFormatMisplacedToken = errors.New("rdm: token must be last in parameter format")
	ErrFormatBadString      = errors.New("rdm: fixed-length string has no size")
	ErrFormatBadLiteral     = errors.New("rdm: malformed integer literal")
	ErrFormatTooBig         = errors.New("rdm: parameter format exceeds 231 bytes")
	ErrFormatEmpty          = errors.New("rdm: parameter format encodes nothing")

	// Request argument errors, checked eagerly before any transmission.
	ErrNilDriver        = errors.New("rdm: driver is nil")
	ErrDestNull         = errors.New("rdm: destination UID must not be null")
	ErrSourceBroadcast  = errors.New("rdm: source UID must not be broadcast")
	ErrBadCommandClass  = errors.New("rdm: command class must be DISCOVER, GET or SET")
	ErrBadSubDevice     = errors.New("rdm: sub-device out of range for command class")
	ErrBadStartAddress  = errors.New("rdm: dmx start address out of range")
)
